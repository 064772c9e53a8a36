package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sagarc03/filekeep/database/internal/schema"
)

var fileRecordsSchema = schema.Table{
	"id":                  {Type: "text"},
	"owner_id":            {Type: "text"},
	"name":                {Type: "text"},
	"content_type":        {Type: "text"},
	"declared_size":       {Type: "integer"},
	"size":                {Type: "integer"},
	"checksum":            {Type: "text"},
	"blob_key":            {Type: "text"},
	"state":               {Type: "text"},
	"version":             {Type: "integer"},
	"created_at":          {Type: "text"},
	"updated_at":          {Type: "text"},
	"finalized_at":        {Type: "text", Nullable: true},
	"delete_requested_at": {Type: "text", Nullable: true},
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// tableColumns reads PRAGMA table_info. A missing table yields no columns.
func tableColumns(ctx context.Context, db *sql.DB, table string) (schema.Table, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdentifier(table)))
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols := schema.Table{}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, dataType   string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = schema.Column{Type: dataType, Nullable: notNull == 0}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	return cols, nil
}

func validateTableSchema(ctx context.Context, db *sql.DB, table string, want schema.Table) error {
	got, err := tableColumns(ctx, db, table)
	if err != nil {
		return err
	}
	return schema.Diff(table, want, got)
}
