// Package database provides the SQLite store behind the provisioner.
//
// Two tables live here: device_sequences, which makes identifier
// allocation survive restarts and concurrent requests, and provisionings,
// the audit log of every POST /devices outcome.
//
// The pool is limited to one connection and WAL mode is recommended for
// file-backed databases. Schema changes ship as embedded
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs applied by Migrate.
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
package database
