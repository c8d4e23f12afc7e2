package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
)

// PostingStatus describes what happened when a specialized record was auto-posted.
type PostingStatus string

const (
	PostingPosted    PostingStatus = "posted"
	PostingDuplicate PostingStatus = "duplicate"
	// PostingSkipped means fewer than two nonzero columns; the record stands alone.
	PostingSkipped  PostingStatus = "skipped"
	PostingRejected PostingStatus = "rejected"
	// PostingFailed means the journal could not be reached (lock or storage
	// failure); the record is kept and can be posted again later.
	PostingFailed PostingStatus = "failed"
)

// Posting captures the journal side of a cash record.
type Posting struct {
	Status    PostingStatus
	EntryID   string
	Reference string
	Reason    string
}

// CashReceipt is one row of the cash receipts journal.
type CashReceipt struct {
	ID           uuid.UUID
	Seq          int64
	Date         time.Time
	Reference    string
	Counterparty string
	CashDebit    money.Amount
	FeesDebit    money.Amount
	ReturnsDebit money.Amount
	NetSales     money.Amount
	OtherIncome  money.Amount
	Receivable   money.Amount
	Capital      money.Amount
	Remarks      string
	Posting      Posting
	CreatedAt    time.Time
}

// CashDisbursement is one row of the cash disbursements book.
type CashDisbursement struct {
	ID          uuid.UUID
	Seq         int64
	Date        time.Time
	Reference   string
	Payee       string
	CashCredit  money.Amount
	Materials   money.Amount
	Supplies    money.Amount
	Rent        money.Amount
	Utilities   money.Amount
	Advertising money.Amount
	Delivery    money.Amount
	Taxes       money.Amount
	Misc        money.Amount
	Remarks     string
	Posting     Posting
	CreatedAt   time.Time
}

// LedgerLine is one line of an account's ledger with its running balance.
type LedgerLine struct {
	EntryID        string
	Date           time.Time
	Reference      string
	Description    string
	Debit          money.Amount
	Credit         money.Amount
	RunningBalance money.Amount
}

// AccountSummary is the derived ledger view of one account.
type AccountSummary struct {
	Code           string
	Title          string
	NormalSide     Side
	TotalDebit     money.Amount
	TotalCredit    money.Amount
	ClosingBalance money.Amount
	Entries        []LedgerLine
}

// CommitResult reports how a write-through commit went. A degraded commit is
// still committed: the entry is in the in-memory book but not in the external store.
type CommitResult struct {
	Degraded bool
	Warning  string
}
