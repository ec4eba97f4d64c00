// Package database provides SQLite database connectivity for the access core.
//
// This package manages:
//   - A single-connection handle with WAL mode and a busy timeout
//   - Embedded schema migrations, applied in filename order
//   - Transactions through WithTx, which rolls back on error or panic
//
// The pool is capped at one connection. Code running inside WithTx must use
// the transaction it was given; querying the outer *sql.DB from inside the
// callback blocks forever.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600
//   - Biometric templates are sealed before they reach this layer
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
// Migrations are additive-only. Each version has an .up.sql and a .down.sql
// file registered by the migrations package.
package database
