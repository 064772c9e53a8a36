package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/filekeep/database/internal/schema"
)

const tsz = "timestamp with time zone"

var fileRecordsSchema = schema.Table{
	"id":                  {Type: "uuid"},
	"owner_id":            {Type: "text"},
	"name":                {Type: "text"},
	"content_type":        {Type: "text"},
	"declared_size":       {Type: "bigint"},
	"size":                {Type: "bigint"},
	"checksum":            {Type: "text"},
	"blob_key":            {Type: "text"},
	"state":               {Type: "text"},
	"version":             {Type: "bigint"},
	"created_at":          {Type: tsz},
	"updated_at":          {Type: tsz},
	"finalized_at":        {Type: tsz, Nullable: true},
	"delete_requested_at": {Type: tsz, Nullable: true},
}

const columnsQuery = `
	SELECT column_name, data_type, is_nullable = 'YES'
	FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = $1`

// tableColumns reads the table definition from information_schema in the
// current schema. A missing table yields no columns.
func tableColumns(ctx context.Context, pool *pgxpool.Pool, table string) (schema.Table, error) {
	rows, err := pool.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	cols := schema.Table{}
	for rows.Next() {
		var (
			name, dataType string
			nullable       bool
		)
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = schema.Column{Type: dataType, Nullable: nullable}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	return cols, nil
}

func validateTableSchema(ctx context.Context, pool *pgxpool.Pool, table string, want schema.Table) error {
	got, err := tableColumns(ctx, pool, table)
	if err != nil {
		return err
	}
	return schema.Diff(table, want, got)
}
