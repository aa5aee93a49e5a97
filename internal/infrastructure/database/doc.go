// Package database provides SQLite access for the sample-history store.
//
// It wraps database/sql with connection setup (WAL mode, busy timeout,
// foreign keys), a single-writer connection pool suited to SQLite, and a
// file-embedded migration runner. The migrations package registers its
// embedded SQL files via MigrationsFS at init time.
package database
