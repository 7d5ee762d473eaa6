// Package store provides the deterministically addressed record store that
// every protocol record lives in.
//
// A record is addressed by ir.Key.Address, a pure function of its logical
// key, and an address holds at most one record. Two backends implement the
// same Backend contract:
//   - SQLite (Open): durable, WAL mode, one connection, so every call is a
//     serialized transaction
//   - Memory (NewMemory): xsync.Map with per-key Compute for atomicity
//
// # Operations
//
//   - Create: create-only, ErrAlreadyExists when the address is occupied
//   - CreateOrGet: returns the existing record or creates the default,
//     atomically with respect to concurrent creators
//   - Get: ErrNotFound when absent
//   - Update: read-modify-write under the per-key lock, ErrNotFound when absent
//   - Upsert: create-or-update in one atomic step
//
// Mutual exclusion is a property of these calls alone; there is no lock
// exposed to callers. A mutator that returns an error leaves the record
// unchanged.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
