// Package database provides SQLite connectivity for the Relaylight forwarder.
//
// The forwarder keeps its command records in a single SQLite file. This
// package opens it with WAL mode and a busy timeout, limits the pool to
// one connection (SQLite has a single writer), and applies the embedded
// schema migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// matching .down.sql, and are applied oldest first, one transaction each.
package database
