package ledger

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/bookkeeping/internal/meta"
)

// Side represents the accounting position of a journal line.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// Valid reports whether s is debit or credit.
func (s Side) Valid() bool { return s == SideDebit || s == SideCredit }

// Classification enumerates the broad classification of an account in the chart.
type Classification string

const (
	// ClassAsset increases on the debit side and holds resources owned by the business.
	ClassAsset Classification = "asset"
	// ClassLiability increases on the credit side and tracks obligations.
	ClassLiability Classification = "liability"
	// ClassEquity captures the owner's residual interest.
	ClassEquity Classification = "equity"
	// ClassRevenue represents inflows that increase equity.
	ClassRevenue Classification = "revenue"
	// ClassExpense represents outflows that decrease equity.
	ClassExpense Classification = "expense"
	// ClassContraAsset offsets an asset (e.g. accumulated depreciation).
	ClassContraAsset Classification = "contra_asset"
	// ClassContraRevenue offsets revenue (e.g. sales returns).
	ClassContraRevenue Classification = "contra_revenue"
)

// Valid reports whether c is a known classification.
func (c Classification) Valid() bool {
	switch c {
	case ClassAsset, ClassLiability, ClassEquity, ClassRevenue, ClassExpense, ClassContraAsset, ClassContraRevenue:
		return true
	}
	return false
}

// DefaultNormalSide returns the conventional balance side for the classification.
// Individual accounts may override it (owner's drawings is equity but debit-normal).
func (c Classification) DefaultNormalSide() Side {
	switch c {
	case ClassAsset, ClassExpense, ClassContraRevenue:
		return SideDebit
	default:
		return SideCredit
	}
}

// Account is an immutable entry of the chart of accounts.
type Account struct {
	Code           string
	Title          string
	Classification Classification
	NormalSide     Side
}

// Signed returns the effect of a debit/credit pair on the account balance,
// positive when it moves the balance towards the account's normal side.
func (a Account) Signed(debit, credit money.Amount) (money.Amount, error) {
	if a.NormalSide == SideCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// Source identifies the feed that produced a journal entry.
type Source string

const (
	SourceManual           Source = "manual"
	SourceCashReceipt      Source = "cash_receipt"
	SourceCashDisbursement Source = "cash_disbursement"
)

// JournalLine links a journal entry to an account with a debit or a credit.
type JournalLine struct {
	AccountCode string
	Description string
	Debit       money.Amount
	Credit      money.Amount
}

// Side returns the side carrying the line's value. Lines are expected to have
// exactly one nonzero side; a debit wins when both are set.
func (l JournalLine) Side() Side {
	if !l.Debit.IsZero() {
		return SideDebit
	}
	return SideCredit
}

// Value returns the nonzero amount of the line.
func (l JournalLine) Value() money.Amount {
	if l.Side() == SideDebit {
		return l.Debit
	}
	return l.Credit
}

// JournalEntry is a committed, balanced set of journal lines.
type JournalEntry struct {
	ID        string
	Seq       int64
	Date      time.Time
	Reference string
	Memo      string
	Source    Source
	// Metadata holds additional key-value attributes for the entry (e.g. originating record).
	Metadata  meta.Metadata
	CreatedAt time.Time
	Lines     []JournalLine
}

// Totals sums debits and credits of the entry in the given currency.
func (e JournalEntry) Totals(curr string) (debit, credit money.Amount, err error) {
	debit, credit = Zero(curr), Zero(curr)
	for _, ln := range e.Lines {
		if debit, err = debit.Add(ln.Debit); err != nil {
			return debit, credit, err
		}
		if credit, err = credit.Add(ln.Credit); err != nil {
			return debit, credit, err
		}
	}
	return debit, credit, nil
}

// PostedLine is the flattened, row-per-line shape exchanged with stores and exports.
type PostedLine struct {
	ID           uuid.UUID
	EntryID      string
	Seq          int64
	LineNo       int
	Date         time.Time
	Reference    string
	Memo         string
	Source       Source
	Metadata     meta.Metadata
	AccountCode  string
	AccountTitle string
	Description  string
	Debit        money.Amount
	Credit       money.Amount
	CreatedAt    time.Time
}

// Flatten expands an entry into posted rows. title resolves account titles and may be nil.
func (e JournalEntry) Flatten(title func(code string) string) []PostedLine {
	out := make([]PostedLine, 0, len(e.Lines))
	for i, ln := range e.Lines {
		var t string
		if title != nil {
			t = title(ln.AccountCode)
		}
		out = append(out, PostedLine{
			ID:           uuid.New(),
			EntryID:      e.ID,
			Seq:          e.Seq,
			LineNo:       i,
			Date:         e.Date,
			Reference:    e.Reference,
			Memo:         e.Memo,
			Source:       e.Source,
			Metadata:     e.Metadata,
			AccountCode:  ln.AccountCode,
			AccountTitle: t,
			Description:  ln.Description,
			Debit:        ln.Debit,
			Credit:       ln.Credit,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

// GroupLines rebuilds entries from posted rows. Entries are returned in Seq
// order and lines in LineNo order, regardless of the row order given.
func GroupLines(rows []PostedLine) []JournalEntry {
	sorted := make([]PostedLine, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Seq != sorted[j].Seq {
			return sorted[i].Seq < sorted[j].Seq
		}
		if sorted[i].EntryID != sorted[j].EntryID {
			return sorted[i].EntryID < sorted[j].EntryID
		}
		return sorted[i].LineNo < sorted[j].LineNo
	})
	out := make([]JournalEntry, 0)
	for _, r := range sorted {
		if n := len(out); n == 0 || out[n-1].ID != r.EntryID {
			out = append(out, JournalEntry{
				ID:        r.EntryID,
				Seq:       r.Seq,
				Date:      r.Date,
				Reference: r.Reference,
				Memo:      r.Memo,
				Source:    r.Source,
				Metadata:  r.Metadata.Clone(),
				CreatedAt: r.CreatedAt,
			})
		}
		last := &out[len(out)-1]
		last.Lines = append(last.Lines, JournalLine{AccountCode: r.AccountCode, Description: r.Description, Debit: r.Debit, Credit: r.Credit})
	}
	return out
}
