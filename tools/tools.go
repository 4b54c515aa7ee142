//go:build tools

package tools

// Tracks the migration CLI so `go run github.com/pressly/goose/v3/cmd/goose`
// uses the version pinned in go.mod.

import (
	_ "github.com/pressly/goose/v3/cmd/goose"
)
