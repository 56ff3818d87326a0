// Package repository persists departure schedules, reservation holds and
// per-route fill statistics in MySQL.  Timestamps are stored as UTC
// DATETIME values.
package repository

import "errors"

// ErrNotFound is returned when an UPDATE or lookup matched no row.
var ErrNotFound = errors.New("not found")
