// Package writethrough is the persistence facade: every commit is written to
// the external store first and then mirrored into memory. When the external
// write fails the commit still lands in memory and is reported as degraded.
package writethrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// JournalStore is the external store collaborator.
type JournalStore interface {
	InsertJournalLines(ctx context.Context, lines []ledger.PostedLine) error
	ReadAllJournalLines(ctx context.Context, r ledger.DateRange) ([]ledger.PostedLine, error)
	UpsertAccountMetadata(ctx context.Context, a ledger.Account) error
}

// JournalTail is implemented by external stores shared between processes. It
// returns the lines of entries committed after seq.
type JournalTail interface {
	ReadJournalLinesAfter(ctx context.Context, seq int64) ([]ledger.PostedLine, error)
}

// LedgerRefresher is implemented by external stores that materialize the ledger.
type LedgerRefresher interface {
	RefreshDerivedLedger(ctx context.Context) error
}

// RecordStore is implemented by external stores that keep the cash books.
type RecordStore interface {
	InsertCashReceipt(ctx context.Context, r ledger.CashReceipt) error
	InsertCashDisbursement(ctx context.Context, d ledger.CashDisbursement) error
	ReadCashReceipts(ctx context.Context) ([]ledger.CashReceipt, error)
	ReadCashDisbursements(ctx context.Context) ([]ledger.CashDisbursement, error)
}

// Mirror is the in-memory book.
type Mirror interface {
	Len() int
	NextSeq(ctx context.Context) (int64, error)
	AppendEntry(ctx context.Context, e ledger.JournalEntry) error
	EntryByID(ctx context.Context, id string) (ledger.JournalEntry, error)
	AppendReceipt(ctx context.Context, r ledger.CashReceipt) error
	AppendDisbursement(ctx context.Context, d ledger.CashDisbursement) error
	ReceiptByID(ctx context.Context, id uuid.UUID) (ledger.CashReceipt, error)
	DisbursementByID(ctx context.Context, id uuid.UUID) (ledger.CashDisbursement, error)
}

// DefaultTimeout bounds a single external write.
const DefaultTimeout = 3 * time.Second

// Store composes an optional external store with the in-memory mirror.
type Store struct {
	mirror   Mirror
	external JournalStore
	chart    *coa.Registry
	timeout  time.Duration
	log      *slog.Logger

	mu            sync.Mutex
	pendingEntry  []string
	pendingRecv   []uuid.UUID
	pendingDisbur []uuid.UUID

	// refreshing/refreshDirty coalesce derived ledger rebuilds into one
	// background run at a time.
	refreshMu    sync.Mutex
	refreshing   bool
	refreshDirty bool
	refreshWG    sync.WaitGroup
}

// Option configures the facade.
type Option func(*Store)

// WithExternal enables write-through to an external store.
func WithExternal(js JournalStore) Option { return func(s *Store) { s.external = js } }

// WithTimeout bounds each external write.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.log = l } }

// New builds the facade. Without WithExternal it only mirrors.
func New(mirror Mirror, chart *coa.Registry, opts ...Option) *Store {
	s := &Store{mirror: mirror, chart: chart, timeout: DefaultTimeout, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// External returns the configured external store, or nil.
func (s *Store) External() JournalStore { return s.external }

// Commit writes e through to the external store and mirrors it. An external
// failure degrades the commit instead of failing it. A mirror failure, or an
// external conflict with an entry another process committed under the same
// id, is returned as an error and nothing is mirrored.
func (s *Store) Commit(ctx context.Context, e ledger.JournalEntry) (ledger.CommitResult, error) {
	if s.external == nil {
		return ledger.CommitResult{}, s.mirror.AppendEntry(ctx, e)
	}
	extErr := s.writeEntry(ctx, e)
	if errors.Is(extErr, errs.ErrConflict) {
		s.log.Error("external journal already holds this entry id", "entry_id", e.ID, "err", extErr)
		return ledger.CommitResult{}, extErr
	}
	if err := s.mirror.AppendEntry(ctx, e); err != nil {
		return ledger.CommitResult{}, err
	}
	if extErr != nil {
		s.mu.Lock()
		s.pendingEntry = append(s.pendingEntry, e.ID)
		s.mu.Unlock()
		s.log.Warn("external journal write failed; committed to memory only", "entry_id", e.ID, "err", extErr)
		return ledger.CommitResult{Degraded: true, Warning: "persistence degraded: " + extErr.Error()}, nil
	}
	s.scheduleRefresh()
	return ledger.CommitResult{}, nil
}

// writeEntry registers the referenced accounts and inserts the lines under one timeout.
func (s *Store) writeEntry(ctx context.Context, e ledger.JournalEntry) error {
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	seen := make(map[string]struct{}, len(e.Lines))
	for _, ln := range e.Lines {
		if _, ok := seen[ln.AccountCode]; ok {
			continue
		}
		seen[ln.AccountCode] = struct{}{}
		acc, err := s.chart.Lookup(ln.AccountCode)
		if err != nil {
			return err
		}
		if err := s.external.UpsertAccountMetadata(wctx, acc); err != nil {
			return fmt.Errorf("upsert account %s: %w", acc.Code, err)
		}
	}
	if err := s.external.InsertJournalLines(wctx, e.Flatten(s.chart.Title)); err != nil {
		return fmt.Errorf("insert journal lines: %w", err)
	}
	return nil
}

// scheduleRefresh rebuilds the derived ledger in the background when the
// store supports it. Requests arriving during a rebuild are folded into one
// more run.
func (s *Store) scheduleRefresh() {
	if _, ok := s.external.(LedgerRefresher); !ok {
		return
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.refreshing {
		s.refreshDirty = true
		return
	}
	s.refreshing = true
	s.refreshWG.Add(1)
	go s.refreshLoop()
}

func (s *Store) refreshLoop() {
	defer s.refreshWG.Done()
	for {
		s.refresh()
		s.refreshMu.Lock()
		if !s.refreshDirty {
			s.refreshing = false
			s.refreshMu.Unlock()
			return
		}
		s.refreshDirty = false
		s.refreshMu.Unlock()
	}
}

// refresh runs one rebuild. Failures are swallowed.
func (s *Store) refresh() {
	r := s.external.(LedgerRefresher)
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := r.RefreshDerivedLedger(ctx); err != nil {
		s.log.Debug("derived ledger refresh failed", "err", err)
	}
}

// Close waits for a running derived ledger rebuild. Call it before closing
// the external store.
func (s *Store) Close() {
	s.refreshWG.Wait()
}

// CatchUp mirrors entries that other processes committed to the shared
// external store since the last local one. It must run under the posting
// lock so the next sequence number and the duplicate checks see them.
func (s *Store) CatchUp(ctx context.Context) (int, error) {
	tail, ok := s.external.(JournalTail)
	if !ok {
		return 0, nil
	}
	next, err := s.mirror.NextSeq(ctx)
	if err != nil {
		return 0, err
	}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rows, err := tail.ReadJournalLinesAfter(rctx, next-1)
	if err != nil {
		return 0, fmt.Errorf("read journal tail: %w", err)
	}
	n := 0
	for _, e := range ledger.GroupLines(rows) {
		if _, err := s.mirror.EntryByID(ctx, e.ID); err == nil {
			continue
		}
		if err := s.mirror.AppendEntry(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.log.Info("caught up with external journal", "entries", n)
	}
	return n, nil
}

func (s *Store) records() (RecordStore, bool) {
	if s.external == nil {
		return nil, false
	}
	rs, ok := s.external.(RecordStore)
	return rs, ok
}

// SaveReceipt stores a cash receipt with the same write-through rule as Commit.
func (s *Store) SaveReceipt(ctx context.Context, r ledger.CashReceipt) (ledger.CommitResult, error) {
	rs, ok := s.records()
	if !ok {
		return ledger.CommitResult{}, s.mirror.AppendReceipt(ctx, r)
	}
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	extErr := rs.InsertCashReceipt(wctx, r)
	cancel()
	if err := s.mirror.AppendReceipt(ctx, r); err != nil {
		return ledger.CommitResult{}, err
	}
	if extErr != nil {
		s.mu.Lock()
		s.pendingRecv = append(s.pendingRecv, r.ID)
		s.mu.Unlock()
		s.log.Warn("external cash receipt write failed; stored in memory only", "record_id", r.ID, "err", extErr)
		return ledger.CommitResult{Degraded: true, Warning: "persistence degraded: " + extErr.Error()}, nil
	}
	return ledger.CommitResult{}, nil
}

// SaveDisbursement stores a cash disbursement with the same write-through rule as Commit.
func (s *Store) SaveDisbursement(ctx context.Context, d ledger.CashDisbursement) (ledger.CommitResult, error) {
	rs, ok := s.records()
	if !ok {
		return ledger.CommitResult{}, s.mirror.AppendDisbursement(ctx, d)
	}
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	extErr := rs.InsertCashDisbursement(wctx, d)
	cancel()
	if err := s.mirror.AppendDisbursement(ctx, d); err != nil {
		return ledger.CommitResult{}, err
	}
	if extErr != nil {
		s.mu.Lock()
		s.pendingDisbur = append(s.pendingDisbur, d.ID)
		s.mu.Unlock()
		s.log.Warn("external cash disbursement write failed; stored in memory only", "record_id", d.ID, "err", extErr)
		return ledger.CommitResult{Degraded: true, Warning: "persistence degraded: " + extErr.Error()}, nil
	}
	return ledger.CommitResult{}, nil
}

// HydrateStats counts what Hydrate loaded.
type HydrateStats struct {
	Entries       int
	Receipts      int
	Disbursements int
}

// Hydrate loads the external book into an empty mirror. It is a no-op when the
// mirror already holds entries or no external store is configured.
func (s *Store) Hydrate(ctx context.Context) (HydrateStats, error) {
	var st HydrateStats
	if s.external == nil || s.mirror.Len() > 0 {
		return st, nil
	}
	rows, err := s.external.ReadAllJournalLines(ctx, ledger.DateRange{})
	if err != nil {
		return st, fmt.Errorf("read journal lines: %w", err)
	}
	for _, e := range ledger.GroupLines(rows) {
		if err := s.mirror.AppendEntry(ctx, e); err != nil {
			return st, err
		}
		st.Entries++
	}
	rs, ok := s.records()
	if !ok {
		return st, nil
	}
	receipts, err := rs.ReadCashReceipts(ctx)
	if err != nil {
		return st, fmt.Errorf("read cash receipts: %w", err)
	}
	sort.SliceStable(receipts, func(i, j int) bool { return receipts[i].Seq < receipts[j].Seq })
	for _, r := range receipts {
		if err := s.mirror.AppendReceipt(ctx, r); err != nil {
			return st, err
		}
		st.Receipts++
	}
	disb, err := rs.ReadCashDisbursements(ctx)
	if err != nil {
		return st, fmt.Errorf("read cash disbursements: %w", err)
	}
	sort.SliceStable(disb, func(i, j int) bool { return disb[i].Seq < disb[j].Seq })
	for _, d := range disb {
		if err := s.mirror.AppendDisbursement(ctx, d); err != nil {
			return st, err
		}
		st.Disbursements++
	}
	s.log.Info("hydrated book from external store", "entries", st.Entries, "receipts", st.Receipts, "disbursements", st.Disbursements)
	return st, nil
}

// Pending lists what was committed in memory but never reached the external store.
type Pending struct {
	Entries       []string
	Receipts      []uuid.UUID
	Disbursements []uuid.UUID
}

// Empty reports whether nothing is pending.
func (p Pending) Empty() bool {
	return len(p.Entries) == 0 && len(p.Receipts) == 0 && len(p.Disbursements) == 0
}

// Pending returns a copy of the pending sets.
func (s *Store) Pending() Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Pending{
		Entries:       append([]string(nil), s.pendingEntry...),
		Receipts:      append([]uuid.UUID(nil), s.pendingRecv...),
		Disbursements: append([]uuid.UUID(nil), s.pendingDisbur...),
	}
}

// Resync re-pushes pending entries and records to the external store. What
// succeeds leaves the pending set; the rest stays for the next attempt.
func (s *Store) Resync(ctx context.Context) (pushed Pending, err error) {
	if s.external == nil {
		return Pending{}, nil
	}
	todo := s.Pending()
	var failures []error

	for _, id := range todo.Entries {
		e, gerr := s.mirror.EntryByID(ctx, id)
		if gerr == nil {
			gerr = s.writeEntry(ctx, e)
		}
		if gerr != nil {
			failures = append(failures, fmt.Errorf("entry %s: %w", id, gerr))
			continue
		}
		pushed.Entries = append(pushed.Entries, id)
	}
	if rs, ok := s.records(); ok {
		for _, id := range todo.Receipts {
			r, gerr := s.mirror.ReceiptByID(ctx, id)
			if gerr == nil {
				gerr = s.withTimeout(ctx, func(c context.Context) error { return rs.InsertCashReceipt(c, r) })
			}
			if gerr != nil {
				failures = append(failures, fmt.Errorf("receipt %s: %w", id, gerr))
				continue
			}
			pushed.Receipts = append(pushed.Receipts, id)
		}
		for _, id := range todo.Disbursements {
			d, gerr := s.mirror.DisbursementByID(ctx, id)
			if gerr == nil {
				gerr = s.withTimeout(ctx, func(c context.Context) error { return rs.InsertCashDisbursement(c, d) })
			}
			if gerr != nil {
				failures = append(failures, fmt.Errorf("disbursement %s: %w", id, gerr))
				continue
			}
			pushed.Disbursements = append(pushed.Disbursements, id)
		}
	}

	s.mu.Lock()
	s.pendingEntry = without(s.pendingEntry, pushed.Entries)
	s.pendingRecv = without(s.pendingRecv, pushed.Receipts)
	s.pendingDisbur = without(s.pendingDisbur, pushed.Disbursements)
	s.mu.Unlock()

	if len(pushed.Entries) > 0 {
		s.scheduleRefresh()
	}
	s.log.Info("resync finished", "entries", len(pushed.Entries), "receipts", len(pushed.Receipts), "disbursements", len(pushed.Disbursements), "failed", len(failures))
	return pushed, errors.Join(failures...)
}

func (s *Store) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(c)
}

func without[T comparable](in, drop []T) []T {
	if len(drop) == 0 {
		return in
	}
	gone := make(map[T]struct{}, len(drop))
	for _, d := range drop {
		gone[d] = struct{}{}
	}
	out := in[:0]
	for _, v := range in {
		if _, ok := gone[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
