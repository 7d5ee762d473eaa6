// Package ir defines the records, logical keys and error codes shared by the
// registry and quorum services.
//
// This package imports nothing internal. Every other package depends on it,
// so it stays limited to plain data types and pure functions.
//
// Key design constraints:
//   - Record addresses are a pure function of the logical key (see Key.Address)
//   - All numbers are unsigned integers, never floats
//   - All JSON tags use snake_case
//   - Time is a logical tick counter, never wall-clock timestamps
package ir
