// Package storage persists render session history: one record per finished
// or cancelled session. Rendered images are never stored.
//
// Drivers:
//   - "file": JSON Lines, dependency-free
//   - "sqlite": modernc.org/sqlite (pure Go, no cgo)
package storage
