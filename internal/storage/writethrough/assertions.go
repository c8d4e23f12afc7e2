package writethrough

import (
	"github.com/tinoosan/bookkeeping/internal/service/cashbook"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
)

var (
	_ journal.Committer  = (*Store)(nil)
	_ journal.CatchUpper = (*Store)(nil)
	_ cashbook.Saver     = (*Store)(nil)
)
