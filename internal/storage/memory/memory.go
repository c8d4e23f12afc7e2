// Package memory provides the in-memory mirror of the book. It is the read
// model for the journal engine and the only store when no external database
// is configured.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// Store keeps committed entries in sequence order together with the cash
// receipt and disbursement records. It is guarded by an RWMutex for concurrent
// reads/writes.
type Store struct {
	mu      sync.RWMutex
	entries []ledger.JournalEntry
	byID    map[string]int
	byRef   map[string]int
	// entries per calendar date, as indexes into entries
	byDate map[string][]int
	maxSeq int64

	receipts      []ledger.CashReceipt
	disbursements []ledger.CashDisbursement
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		byID:   make(map[string]int),
		byRef:  make(map[string]int),
		byDate: make(map[string][]int),
	}
}

// Reset drops everything. Used by tests.
func (s *Store) Reset() {
	s.mu.Lock()
	s.entries = nil
	s.byID = map[string]int{}
	s.byRef = map[string]int{}
	s.byDate = map[string][]int{}
	s.maxSeq = 0
	s.receipts = nil
	s.disbursements = nil
	s.mu.Unlock()
}

// AppendEntry mirrors a committed entry. Entry IDs are unique; a second append
// of the same id is an error.
func (s *Store) AppendEntry(_ context.Context, e ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[e.ID]; ok {
		return fmt.Errorf("memory: entry %s already mirrored", e.ID)
	}
	e = cloneEntry(e)
	idx := len(s.entries)
	s.entries = append(s.entries, e)
	s.byID[e.ID] = idx
	if e.Reference != "" {
		// first writer wins; the engine never commits two entries with one reference
		if _, ok := s.byRef[e.Reference]; !ok {
			s.byRef[e.Reference] = idx
		}
	}
	day := ledger.FormatDate(e.Date)
	s.byDate[day] = append(s.byDate[day], idx)
	if e.Seq > s.maxSeq {
		s.maxSeq = e.Seq
	}
	return nil
}

// NextSeq returns the sequence number the next committed entry should carry.
func (s *Store) NextSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSeq + 1, nil
}

// Len reports the number of mirrored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// EntryByID returns a single entry.
func (s *Store) EntryByID(_ context.Context, id string) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return cloneEntry(s.entries[idx]), nil
}

// EntryByReference resolves an entry through its external reference.
func (s *Store) EntryByReference(_ context.Context, ref string) (ledger.JournalEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byRef[ref]
	if !ok || ref == "" {
		return ledger.JournalEntry{}, false, nil
	}
	return cloneEntry(s.entries[idx]), true, nil
}

// EntriesOn returns the entries dated on the calendar day of date, in commit order.
func (s *Store) EntriesOn(_ context.Context, date time.Time) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byDate[ledger.FormatDate(date)]
	out := make([]ledger.JournalEntry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, cloneEntry(s.entries[i]))
	}
	return out, nil
}

// ListEntries returns a point-in-time snapshot of entries within r, in commit order.
func (s *Store) ListEntries(_ context.Context, r ledger.DateRange) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.JournalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if r.Contains(e.Date) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// AppendReceipt stores a cash receipt record.
func (s *Store) AppendReceipt(_ context.Context, r ledger.CashReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.receipts {
		if existing.ID == r.ID {
			return fmt.Errorf("memory: receipt %s already stored", r.ID)
		}
	}
	s.receipts = append(s.receipts, r)
	return nil
}

// AppendDisbursement stores a cash disbursement record.
func (s *Store) AppendDisbursement(_ context.Context, d ledger.CashDisbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.disbursements {
		if existing.ID == d.ID {
			return fmt.Errorf("memory: disbursement %s already stored", d.ID)
		}
	}
	s.disbursements = append(s.disbursements, d)
	return nil
}

// NextReceiptSeq returns the sequence for the next cash receipt record.
func (s *Store) NextReceiptSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, r := range s.receipts {
		if r.Seq > max {
			max = r.Seq
		}
	}
	return max + 1, nil
}

// NextDisbursementSeq returns the sequence for the next cash disbursement record.
func (s *Store) NextDisbursementSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for _, d := range s.disbursements {
		if d.Seq > max {
			max = d.Seq
		}
	}
	return max + 1, nil
}

// Receipts lists cash receipts within r in record order.
func (s *Store) Receipts(_ context.Context, r ledger.DateRange) ([]ledger.CashReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.CashReceipt, 0, len(s.receipts))
	for _, rec := range s.receipts {
		if r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Disbursements lists cash disbursements within r in record order.
func (s *Store) Disbursements(_ context.Context, r ledger.DateRange) ([]ledger.CashDisbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.CashDisbursement, 0, len(s.disbursements))
	for _, rec := range s.disbursements {
		if r.Contains(rec.Date) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ReceiptByID returns one cash receipt.
func (s *Store) ReceiptByID(_ context.Context, id uuid.UUID) (ledger.CashReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.receipts {
		if rec.ID == id {
			return rec, nil
		}
	}
	return ledger.CashReceipt{}, errs.ErrNotFound
}

// DisbursementByID returns one cash disbursement.
func (s *Store) DisbursementByID(_ context.Context, id uuid.UUID) (ledger.CashDisbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.disbursements {
		if rec.ID == id {
			return rec, nil
		}
	}
	return ledger.CashDisbursement{}, errs.ErrNotFound
}

// cloneEntry copies the slices and metadata so callers cannot mutate mirrored state.
func cloneEntry(e ledger.JournalEntry) ledger.JournalEntry {
	lines := make([]ledger.JournalLine, len(e.Lines))
	copy(lines, e.Lines)
	e.Lines = lines
	e.Metadata = e.Metadata.Clone()
	return e
}
