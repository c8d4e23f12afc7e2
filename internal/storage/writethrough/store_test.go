package writethrough_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/storage/memory"
	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

// fakeExternal is an external store whose failures can be switched on.
type fakeExternal struct {
	mu         sync.Mutex
	fail       error
	insertErr  error
	refreshErr error
	lines      []ledger.PostedLine
	accounts   map[string]ledger.Account
	receipts   []ledger.CashReceipt
	disb       []ledger.CashDisbursement
	refreshes  int
}

func newFake() *fakeExternal { return &fakeExternal{accounts: map[string]ledger.Account{}} }

func (f *fakeExternal) InsertJournalLines(_ context.Context, lines []ledger.PostedLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if f.insertErr != nil {
		return f.insertErr
	}
	f.lines = append(f.lines, lines...)
	return nil
}

func (f *fakeExternal) ReadAllJournalLines(_ context.Context, r ledger.DateRange) ([]ledger.PostedLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.PostedLine
	for _, l := range f.lines {
		if r.Contains(l.Date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeExternal) ReadJournalLinesAfter(_ context.Context, seq int64) ([]ledger.PostedLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.PostedLine
	for _, l := range f.lines {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeExternal) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeExternal) UpsertAccountMetadata(_ context.Context, a ledger.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.accounts[a.Code] = a
	return nil
}

func (f *fakeExternal) RefreshDerivedLedger(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshErr
}

func (f *fakeExternal) InsertCashReceipt(_ context.Context, r ledger.CashReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.receipts = append(f.receipts, r)
	return nil
}

func (f *fakeExternal) InsertCashDisbursement(_ context.Context, d ledger.CashDisbursement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.disb = append(f.disb, d)
	return nil
}

func (f *fakeExternal) ReadCashReceipts(context.Context) ([]ledger.CashReceipt, error) {
	return append([]ledger.CashReceipt(nil), f.receipts...), nil
}

func (f *fakeExternal) ReadCashDisbursements(context.Context) ([]ledger.CashDisbursement, error) {
	return append([]ledger.CashDisbursement(nil), f.disb...), nil
}

func php(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := ledger.ParseAmount("PHP", s)
	require.NoError(t, err)
	return a
}

func entry(t *testing.T, id string, seq int64) ledger.JournalEntry {
	return ledger.JournalEntry{
		ID:     id,
		Seq:    seq,
		Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Memo:   "supplies",
		Source: ledger.SourceManual,
		Lines: []ledger.JournalLine{
			{AccountCode: coa.Supplies, Debit: php(t, "150"), Credit: php(t, "0")},
			{AccountCode: coa.CashOnHand, Debit: php(t, "0"), Credit: php(t, "150")},
		},
	}
}

func TestCommitWritesThroughAndRefreshes(t *testing.T) {
	ext := newFake()
	mirror := memory.New()
	s := writethrough.New(mirror, coa.Default(), writethrough.WithExternal(ext))

	res, err := s.Commit(context.Background(), entry(t, "JE-000001", 1))
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Len(t, ext.lines, 2)
	assert.Equal(t, "Supplies Expense", ext.lines[0].AccountTitle)
	assert.Contains(t, ext.accounts, coa.Supplies)
	assert.Contains(t, ext.accounts, coa.CashOnHand)
	assert.Equal(t, 1, mirror.Len())
	s.Close()
	assert.Equal(t, 1, ext.refreshCount())
}

// blockingRefresher holds every derived ledger rebuild until released.
type blockingRefresher struct {
	*fakeExternal
	gate chan struct{}
}

func (b blockingRefresher) RefreshDerivedLedger(ctx context.Context) error {
	<-b.gate
	return b.fakeExternal.RefreshDerivedLedger(ctx)
}

func TestRefreshRunsOutsideCommit(t *testing.T) {
	ext := blockingRefresher{fakeExternal: newFake(), gate: make(chan struct{})}
	s := writethrough.New(memory.New(), coa.Default(), writethrough.WithExternal(ext))
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := s.Commit(ctx, entry(t, journalID(i), i))
		require.NoError(t, err, "commit must not wait for the rebuild")
	}
	close(ext.gate)
	s.Close()
	n := ext.refreshCount()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, 2, "rebuilds requested during a run are coalesced")
}

func journalID(seq int64) string { return fmt.Sprintf("JE-%06d", seq) }

func TestConflictFailsWithoutMirroring(t *testing.T) {
	ext := newFake()
	ext.insertErr = fmt.Errorf("%w: entry JE-000001 line 0 already holds different content", errs.ErrConflict)
	mirror := memory.New()
	s := writethrough.New(mirror, coa.Default(), writethrough.WithExternal(ext))

	_, err := s.Commit(context.Background(), entry(t, "JE-000001", 1))
	require.ErrorIs(t, err, errs.ErrConflict)
	assert.Zero(t, mirror.Len())
	assert.True(t, s.Pending().Empty(), "a conflict is not retried by resync")
}

func TestCatchUpMirrorsOtherWriters(t *testing.T) {
	ext := newFake()
	ctx := context.Background()
	a := writethrough.New(memory.New(), coa.Default(), writethrough.WithExternal(ext))
	mirrorB := memory.New()
	b := writethrough.New(mirrorB, coa.Default(), writethrough.WithExternal(ext))

	_, err := a.Commit(ctx, entry(t, "JE-000001", 1))
	require.NoError(t, err)
	_, err = a.Commit(ctx, entry(t, "JE-000002", 2))
	require.NoError(t, err)

	n, err := b.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	next, _ := mirrorB.NextSeq(ctx)
	assert.EqualValues(t, 3, next)

	n, err = b.CatchUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	a.Close()
	b.Close()
}

func TestRefreshFailureIsSwallowed(t *testing.T) {
	ext := newFake()
	ext.refreshErr = errors.New("view locked")
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := writethrough.New(memory.New(), coa.Default(), writethrough.WithExternal(ext), writethrough.WithLogger(log))

	res, err := s.Commit(context.Background(), entry(t, "JE-000001", 1))
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	s.Close()
	assert.Contains(t, buf.String(), "derived ledger refresh failed")
}

func TestExternalFailureDegradesButMirrors(t *testing.T) {
	ext := newFake()
	ext.fail = errors.New("connection refused")
	mirror := memory.New()
	s := writethrough.New(mirror, coa.Default(), writethrough.WithExternal(ext))

	res, err := s.Commit(context.Background(), entry(t, "JE-000001", 1))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Warning, "connection refused")
	assert.Equal(t, 1, mirror.Len())
	assert.Empty(t, ext.lines)
	assert.Equal(t, []string{"JE-000001"}, s.Pending().Entries)
	s.Close()
	assert.Zero(t, ext.refreshCount())
}

func TestResyncPushesPending(t *testing.T) {
	ext := newFake()
	ext.fail = errors.New("down")
	mirror := memory.New()
	s := writethrough.New(mirror, coa.Default(), writethrough.WithExternal(ext))
	ctx := context.Background()

	_, err := s.Commit(ctx, entry(t, "JE-000001", 1))
	require.NoError(t, err)
	rec := ledger.CashReceipt{ID: uuid.New(), Seq: 1, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	res, err := s.SaveReceipt(ctx, rec)
	require.NoError(t, err)
	assert.True(t, res.Degraded)

	_, err = s.Resync(ctx)
	require.Error(t, err)
	assert.Len(t, s.Pending().Entries, 1)

	ext.fail = nil
	pushed, err := s.Resync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"JE-000001"}, pushed.Entries)
	assert.Equal(t, []uuid.UUID{rec.ID}, pushed.Receipts)
	assert.True(t, s.Pending().Empty())
	assert.Len(t, ext.lines, 2)
	assert.Len(t, ext.receipts, 1)
}

func TestMemoryOnlyCommit(t *testing.T) {
	mirror := memory.New()
	s := writethrough.New(mirror, coa.Default())
	res, err := s.Commit(context.Background(), entry(t, "JE-000001", 1))
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, mirror.Len())

	_, err = s.Commit(context.Background(), entry(t, "JE-000001", 1))
	assert.Error(t, err, "mirror rejects a second commit of the same id")
}

func TestHydrateRegroupsLines(t *testing.T) {
	ext := newFake()
	ctx := context.Background()
	seed := writethrough.New(memory.New(), coa.Default(), writethrough.WithExternal(ext))
	_, err := seed.Commit(ctx, entry(t, "JE-000001", 1))
	require.NoError(t, err)
	e2 := entry(t, "JE-000002", 2)
	e2.Date = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err = seed.Commit(ctx, e2)
	require.NoError(t, err)
	_, err = seed.SaveDisbursement(ctx, ledger.CashDisbursement{ID: uuid.New(), Seq: 1})
	require.NoError(t, err)

	// reverse the row order as an unordered SELECT might
	for i, j := 0, len(ext.lines)-1; i < j; i, j = i+1, j-1 {
		ext.lines[i], ext.lines[j] = ext.lines[j], ext.lines[i]
	}

	mirror := memory.New()
	s := writethrough.New(mirror, coa.Default(), writethrough.WithExternal(ext))
	st, err := s.Hydrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 1, st.Disbursements)

	got, err := mirror.ListEntries(ctx, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "JE-000001", got[0].ID)
	assert.Equal(t, "JE-000002", got[1].ID)
	assert.Equal(t, coa.Supplies, got[0].Lines[0].AccountCode)
	next, _ := mirror.NextSeq(ctx)
	assert.EqualValues(t, 3, next)

	again, err := s.Hydrate(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Entries, "hydrate is a no-op once the mirror has entries")
}
