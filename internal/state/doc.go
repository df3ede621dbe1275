// Package state is the durable unit store: the single source of truth for
// which calls and recordings have been seen and what happened to each one.
// It is backed by SQLite in WAL mode with foreign-key integrity; every write
// is a single transaction, and the store only records outcomes - it never
// performs or retries external work itself.
package state
