// Package mysql provides the MySQL connection pool and schema migration
// helpers backing the settlement ledger, wallets and temple state.
package mysql
