// Package database provides SQLite connectivity for Netwatch.
//
// It manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - A Handle that serialises every store operation over one shared
//     connection and recycles that connection after an unexpected failure
//
// Usage:
//
//	h, err := database.OpenHandle(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	if err := h.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and follow the
// YYYYMMDD_HHMMSS_description.{up,down}.sql naming scheme.
package database
