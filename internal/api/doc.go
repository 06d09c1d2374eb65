// Package api exposes the REST surface of the settlement engine: payment
// submission, mint and ledger inspection, compliance audits, ascension
// queries and the guarded sovereign address book.
package api
