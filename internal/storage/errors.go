package storage

import "errors"

// ErrNegativeBalance guards the §4.11 invariant: a ledger projection write
// that would drive an account's balance below zero is rejected before commit.
var ErrNegativeBalance = errors.New("storage: token balance would go negative")

// ErrNotFound is returned by store lookups that find no matching row.
var ErrNotFound = errors.New("storage: not found")
