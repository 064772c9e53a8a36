// Package database provides a unified interface for connecting to metadata backends.
//
// Two backends are supported:
//
//   - PostgreSQL: the production backend, using a pgx connection pool
//   - SQLite: for development and single-node deployments
//
// Schemas are versioned with golang-migrate; each backend embeds its own
// migration files.
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{
//	    Type:        "sqlite",
//	    DSN:         "filekeep.db",
//	    AutoMigrate: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	repo := db.GetRepo()
//
// Open pings the backend, applies migrations when AutoMigrate is set and
// validates the file_records table before returning.
package database
