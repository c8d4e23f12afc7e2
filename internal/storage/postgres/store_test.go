package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/meta"
	"github.com/tinoosan/bookkeeping/internal/storage/memory"
	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn, "PHP")
	require.NoError(t, err, "open")
	return s
}

// migrationsDir resolves db/migrations relative to this file so CWD doesn't matter.
func migrationsDir() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "db", "migrations")
}

func prepare(t *testing.T) *Store {
	t.Helper()
	s := mustOpen(t, getTestDSN(t))
	t.Cleanup(s.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := s.Migrate(ctx, migrationsDir())
	require.NoError(t, err, "migrate")
	_, err = s.pool.Exec(ctx, `truncate table general_journal, cash_receipt_journal, cash_disbursement_book, accounts cascade`)
	require.NoError(t, err)
	return s
}

func php(t *testing.T, v string) money.Amount {
	t.Helper()
	a, err := ledger.ParseAmount("PHP", v)
	require.NoError(t, err)
	return a
}

func TestStore_JournalRoundTrip(t *testing.T) {
	s := prepare(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Ready(ctx))

	chart := coa.Default()
	facade := writethrough.New(memory.New(), chart, writethrough.WithExternal(s))
	md := meta.New(nil)
	md.Set(meta.KeyJournal, "CDJ")
	entry := ledger.JournalEntry{
		ID: "JE-000001", Seq: 1, Date: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		Reference: "CDJ-1", Memo: "Landlord", Source: ledger.SourceCashDisbursement, Metadata: md,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Lines: []ledger.JournalLine{
			{AccountCode: coa.Rent, Description: "Rent", Debit: php(t, "1500.25"), Credit: ledger.Zero("PHP")},
			{AccountCode: coa.CashOnHand, Description: "Cash paid", Debit: ledger.Zero("PHP"), Credit: php(t, "1500.25")},
		},
	}
	res, err := facade.Commit(ctx, entry)
	require.NoError(t, err)
	assert.False(t, res.Degraded, res.Warning)

	// a second push of the same lines is ignored
	require.NoError(t, s.InsertJournalLines(ctx, entry.Flatten(chart.Title)))

	rows, err := s.ReadAllJournalLines(ctx, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	got := ledger.GroupLines(rows)
	require.Len(t, got, 1)
	assert.Equal(t, "JE-000001", got[0].ID)
	assert.Equal(t, "CDJ-1", got[0].Reference)
	assert.Equal(t, ledger.SourceCashDisbursement, got[0].Source)
	assert.Equal(t, "1500.25", ledger.FormatAmount(got[0].Lines[0].Debit))
	assert.Equal(t, "Rent Expense", rows[0].AccountTitle)
	j, _ := got[0].Metadata.Get(meta.KeyJournal)
	assert.Equal(t, "CDJ", j)

	after := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	none, err := s.ReadAllJournalLines(ctx, ledger.DateRange{From: &after})
	require.NoError(t, err)
	assert.Empty(t, none)

	tail, err := s.ReadJournalLinesAfter(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, tail, 2)
	tail, err = s.ReadJournalLinesAfter(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, tail)

	// same id, different content: another writer got there first
	other := entry
	other.Lines = []ledger.JournalLine{
		{AccountCode: coa.Utilities, Debit: php(t, "80"), Credit: ledger.Zero("PHP")},
		{AccountCode: coa.CashOnHand, Debit: ledger.Zero("PHP"), Credit: php(t, "80")},
	}
	err = s.InsertJournalLines(ctx, other.Flatten(chart.Title))
	require.ErrorIs(t, err, errs.ErrConflict)
	rows, err = s.ReadAllJournalLines(ctx, ledger.DateRange{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// the derived ledger is rebuilt in the background
	facade.Close()
	var running string
	require.NoError(t, s.pool.QueryRow(ctx, `select running_balance::text from general_ledger where account_code = $1`, coa.Rent).Scan(&running))
	assert.Equal(t, "1500.2500", running)
}

func TestStore_CashBooks(t *testing.T) {
	s := prepare(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	zero := ledger.Zero("PHP")
	rec := ledger.CashReceipt{
		ID: uuid.New(), Seq: 1, Date: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), Counterparty: "Buyer",
		CashDebit: php(t, "200"), FeesDebit: zero, ReturnsDebit: zero, NetSales: php(t, "200"),
		OtherIncome: zero, Receivable: zero, Capital: zero,
		Posting: ledger.Posting{Status: ledger.PostingPosted, EntryID: "JE-000001", Reference: "CRJ-1"},
	}
	require.NoError(t, s.InsertCashReceipt(ctx, rec))
	require.NoError(t, s.InsertCashReceipt(ctx, rec), "re-insert is a no-op")

	got, err := s.ReadCashReceipts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)
	assert.Equal(t, "200.00", ledger.FormatAmount(got[0].NetSales))
	assert.Equal(t, rec.Posting, got[0].Posting)

	d := ledger.CashDisbursement{
		ID: uuid.New(), Seq: 1, Date: rec.Date, Payee: "Courier",
		CashCredit: php(t, "80"), Materials: zero, Supplies: zero, Rent: zero, Utilities: zero,
		Advertising: zero, Delivery: php(t, "80"), Taxes: zero, Misc: zero,
		Posting: ledger.Posting{Status: ledger.PostingSkipped, Reason: "fewer than two nonzero columns"},
	}
	require.NoError(t, s.InsertCashDisbursement(ctx, d))
	ds, err := s.ReadCashDisbursements(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "80.00", ledger.FormatAmount(ds[0].Delivery))
	assert.Equal(t, ledger.PostingSkipped, ds[0].Posting.Status)
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	s := prepare(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	applied, err := s.Migrate(ctx, migrationsDir())
	require.NoError(t, err)
	assert.Empty(t, applied)
}
