// Package postgres implements the sqlx-backed repositories of the ledger core.
package postgres

import (
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"creditledger/pkg/config"
)

// Connect opens a pooled database handle from config.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (23505).
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
