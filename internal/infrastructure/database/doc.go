// Package database provides SQLite connectivity for the registry store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations read from an fs.FS (embedded by package migrations)
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: each YYYYMMDD_HHMMSS_name.up.sql has a matching
// .down.sql used by MigrateDown during development.
package database
