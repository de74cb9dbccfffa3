// Package store is the data access layer for the catalog database:
// products, scrape jobs, view history, and the navigation taxonomy.
//
// All timestamps are Unix milliseconds. Reads that miss return (nil, nil),
// not an error; the service layer decides what absence means.
package store

import "database/sql"

// Store wraps the catalog database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}
