// Package database manages the gateway's SQLite reading history store.
//
// The store holds one row per meter poll plus the fixed-time cumulative
// snapshots, pruned to the configured retention window. WAL mode lets
// API queries read while the poll loop writes, and the schema ships
// embedded in the binary as migrations applied on startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or defaulted, and
// nothing is dropped or renamed, so a binary downgrade still reads the
// database. Each migration ships an .up.sql and a .down.sql.
//
// The database file is created with 0600 permissions and all queries
// use parameterised statements.
package database
