// Package storage is the persistence layer: routes, trips, bounded price
// observation history, per-user notification state, the append-only
// notification log and user settings, all in one SQLite file.
//
// The store keeps a single write connection, so transactions opened through
// WithTx are serialized. The gate and cleanup paths rely on that: their
// read-check-update sequences run as one short transaction each and can never
// interleave for the same target.
package storage
