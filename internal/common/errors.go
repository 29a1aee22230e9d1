// Package common defines shared sentinel errors used across the groupd
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrAlreadyApproved = errors.New("already approved")

	// Key vault errors (wrong passphrase or corrupt secret blob).
	ErrVaultLocked = errors.New("vault locked")

	// Infrastructure errors.
	ErrTransport = errors.New("transport error")
)
