// Package migrations holds the PostgreSQL schema for the kv_store backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
