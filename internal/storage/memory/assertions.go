package memory

import (
	"github.com/tinoosan/bookkeeping/internal/service/aggregator"
	"github.com/tinoosan/bookkeeping/internal/service/cashbook"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ journal.Repo           = (*Store)(nil)
	_ cashbook.Repo          = (*Store)(nil)
	_ aggregator.EntryLister = (*Store)(nil)
	_ writethrough.Mirror    = (*Store)(nil)
)
