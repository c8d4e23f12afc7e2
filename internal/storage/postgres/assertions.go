package postgres

import "github.com/tinoosan/bookkeeping/internal/storage/writethrough"

var (
	_ writethrough.JournalStore    = (*Store)(nil)
	_ writethrough.JournalTail     = (*Store)(nil)
	_ writethrough.LedgerRefresher = (*Store)(nil)
	_ writethrough.RecordStore     = (*Store)(nil)
)
