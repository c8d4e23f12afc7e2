package v1

import (
	"github.com/tinoosan/bookkeeping/internal/storage/postgres"
	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

// Compile-time interface assertions for the stores wired into the API.
var (
	_ Resyncer     = (*writethrough.Store)(nil)
	_ ReadyChecker = (*postgres.Store)(nil)
)
