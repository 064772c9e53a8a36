// Package schema compares a live table definition with the one the
// migrations create.
package schema

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrMismatch is wrapped when columns are missing or differ.
	ErrMismatch = errors.New("schema mismatch")
	// ErrNoTable is wrapped when the table has no columns at all.
	ErrNoTable = errors.New("table does not exist")
)

// Column is the part of a column definition the repos depend on.
type Column struct {
	Type     string
	Nullable bool
}

// Table maps column names to their definitions.
type Table map[string]Column

// Diff reports every column of want that is missing from got or differs in
// type or nullability. Extra columns in got are allowed. Types are compared
// case-insensitively.
func Diff(table string, want, got Table) error {
	if len(got) == 0 {
		return fmt.Errorf("table %s: %w", table, ErrNoTable)
	}

	var missing, mismatched []string

	for _, name := range slices.Sorted(maps.Keys(want)) {
		w := want[name]
		g, ok := got[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if !strings.EqualFold(g.Type, w.Type) {
			mismatched = append(mismatched, fmt.Sprintf("%s: expected %s, got %s", name, w.Type, strings.ToLower(g.Type)))
		}
		if g.Nullable != w.Nullable {
			mismatched = append(mismatched, fmt.Sprintf("%s: expected nullable=%t, got nullable=%t", name, w.Nullable, g.Nullable))
		}
	}

	if len(missing) == 0 && len(mismatched) == 0 {
		return nil
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing columns: "+strings.Join(missing, ", "))
	}
	problems = append(problems, mismatched...)

	return fmt.Errorf("table %s: %w: %s", table, ErrMismatch, strings.Join(problems, "; "))
}
