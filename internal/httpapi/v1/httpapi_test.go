package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/export"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/service/aggregator"
	"github.com/tinoosan/bookkeeping/internal/service/cashbook"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
	"github.com/tinoosan/bookkeeping/internal/storage/memory"
	"github.com/tinoosan/bookkeeping/internal/storage/writethrough"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type postResp struct {
	Entry struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
		Source    string `json:"source"`
		Lines     []struct {
			AccountCode  string `json:"accountCode"`
			AccountTitle string `json:"accountTitle"`
			Debit        string `json:"debit"`
			Credit       string `json:"credit"`
		} `json:"lines"`
	} `json:"entry"`
	Duplicate bool   `json:"duplicate"`
	Warning   string `json:"warning"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Line  *int   `json:"line"`
}

// flakyExternal is an external journal store that can be switched off.
type flakyExternal struct {
	mu    sync.Mutex
	down  bool
	lines []ledger.PostedLine
}

func (f *flakyExternal) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *flakyExternal) InsertJournalLines(_ context.Context, lines []ledger.PostedLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.lines = append(f.lines, lines...)
	return nil
}

func (f *flakyExternal) ReadAllJournalLines(context.Context, ledger.DateRange) ([]ledger.PostedLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.PostedLine(nil), f.lines...), nil
}

func (f *flakyExternal) UpsertAccountMetadata(context.Context, ledger.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	return nil
}

type stubReady struct{ err error }

func (s stubReady) Ready(context.Context) error { return s.err }

func newServer(t *testing.T, ext writethrough.JournalStore, ready ReadyChecker) http.Handler {
	t.Helper()
	chart := coa.Default()
	store := memory.New()
	var opts []writethrough.Option
	opts = append(opts, writethrough.WithLogger(testLogger()))
	if ext != nil {
		opts = append(opts, writethrough.WithExternal(ext))
	}
	facade := writethrough.New(store, chart, opts...)
	j := journal.New(chart, store, facade, journal.WithLogger(testLogger()), journal.WithCurrency("PHP"))
	return New(Deps{
		Chart:    chart,
		Journal:  j,
		Cashbook: cashbook.New(j, store, facade, "PHP", testLogger()),
		Ledger:   aggregator.NewService(chart, store, "PHP"),
		Sync:     facade,
		Ready:    ready,
		Currency: "PHP",
		Logger:   testLogger(),
	}).Handler()
}

func setup(t *testing.T) http.Handler {
	t.Helper()
	return newServer(t, nil, nil)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func saleEntry(ref string) map[string]any {
	return map[string]any{
		"date":      "2024-07-01",
		"reference": ref,
		"memo":      "Counter sale",
		"lines": []map[string]any{
			{"accountCode": "101", "debit": "150.00"},
			{"accountCode": "401", "credit": 150},
		},
	}
}

func TestPostJournal_CreatedThenDuplicate(t *testing.T) {
	h := setup(t)

	rec := do(t, h, http.MethodPost, "/v1/journal", saleEntry("OR-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	first := decode[postResp](t, rec)
	if first.Entry.ID != "JE-000001" || first.Duplicate || len(first.Entry.Lines) != 2 {
		t.Fatalf("unexpected response: %+v", first)
	}
	if first.Entry.Lines[0].AccountTitle != "Cash on Hand" || first.Entry.Lines[1].Credit != "150.00" {
		t.Fatalf("unexpected lines: %+v", first.Entry.Lines)
	}

	rec = do(t, h, http.MethodPost, "/v1/journal", saleEntry("OR-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d: %s", rec.Code, rec.Body.String())
	}
	dup := decode[postResp](t, rec)
	if !dup.Duplicate || dup.Entry.ID != first.Entry.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Entry.ID, dup)
	}

	// same lines without a reference on the same day are still the same entry
	rec = do(t, h, http.MethodPost, "/v1/journal", saleEntry(""))
	if rec.Code != http.StatusOK || !decode[postResp](t, rec).Duplicate {
		t.Fatalf("expected content duplicate, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/journal", nil)
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one entry, got %s", rec.Body.String())
	}
}

func TestPostJournal_ValidationCodes(t *testing.T) {
	h := setup(t)
	cases := []struct {
		name  string
		lines []map[string]any
		code  string
		line  int
	}{
		{"unknown account wins over amounts", []map[string]any{
			{"accountCode": "101", "debit": "-5"},
			{"accountCode": "999", "credit": "5"},
		}, "unknown_account", 1},
		{"both sides set", []map[string]any{
			{"accountCode": "101", "debit": "5", "credit": "5"},
			{"accountCode": "401", "credit": "5"},
		}, "invalid_amount", 0},
		{"sub-centavo amount", []map[string]any{
			{"accountCode": "503", "debit": 0.004},
			{"accountCode": "101", "credit": 0.004},
		}, "invalid_amount", 0},
		{"single line", []map[string]any{
			{"accountCode": "101", "debit": "5"},
		}, "malformed_entry", -1},
		{"unbalanced", []map[string]any{
			{"accountCode": "101", "debit": "100.00"},
			{"accountCode": "401", "credit": "99.99"},
		}, "unbalanced_entry", -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/journal", map[string]any{"date": "2024-07-01", "lines": tc.lines})
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
			}
			er := decode[errResp](t, rec)
			if er.Code != tc.code {
				t.Fatalf("expected code %s, got %+v", tc.code, er)
			}
			if tc.line >= 0 && (er.Line == nil || *er.Line != tc.line) {
				t.Fatalf("expected line %d, got %+v", tc.line, er.Line)
			}
		})
	}

	rec := do(t, h, http.MethodGet, "/v1/journal", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("rejected entries must not be stored: %s", rec.Body.String())
	}
}

func TestPostJournal_RequestErrors(t *testing.T) {
	h := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/journal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/journal", strings.NewReader(`{"lines": [`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}

	body := saleEntry("")
	body["date"] = "07/01/2024"
	if rec := do(t, h, http.MethodPost, "/v1/journal", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/journal?from=yesterday", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", rec.Code)
	}
}

func TestGetEntryAndAccounts(t *testing.T) {
	h := setup(t)
	do(t, h, http.MethodPost, "/v1/journal", saleEntry("OR-9"))

	if rec := do(t, h, http.MethodGet, "/v1/journal/JE-000001", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/journal/JE-000404", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/v1/accounts", nil)
	var accts []accountResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &accts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(accts) != 24 || accts[0].Code != "101" || !accts[0].Cash {
		t.Fatalf("unexpected chart: %+v", accts)
	}
	if rec := do(t, h, http.MethodGet, "/v1/accounts/301", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"normalSide":"credit"`) {
		t.Fatalf("unexpected account: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/v1/accounts/999", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCashReceiptAutoPostsAndDedups(t *testing.T) {
	h := setup(t)

	rec := do(t, h, http.MethodPost, "/v1/cash-receipts", map[string]any{
		"date":           "2024-07-02",
		"counterparty":   "Walk-in",
		"cashDebit":      "950.00",
		"feesDebit":      "50.00",
		"netSalesCredit": "1000.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[receiptResponse](t, rec)
	if got.Posting.Status != ledger.PostingPosted || got.Posting.Reference != "CRJ-1" || got.Posting.EntryID != "JE-000001" {
		t.Fatalf("unexpected posting: %+v", got.Posting)
	}

	// a manual entry with the system reference is the same entry
	manual := map[string]any{
		"date": "2024-07-02", "reference": "CRJ-1",
		"lines": []map[string]any{{"accountCode": "102", "debit": "1"}, {"accountCode": "402", "credit": "1"}},
	}
	rec = do(t, h, http.MethodPost, "/v1/journal", manual)
	if rec.Code != http.StatusOK || !decode[postResp](t, rec).Duplicate {
		t.Fatalf("expected duplicate, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/cash-disbursements", map[string]any{
		"date":      "2024-07-02",
		"payee":     "Landlord",
		"rentDebit": "100.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if d := decode[disbursementResponse](t, rec); d.Posting.Status != ledger.PostingSkipped {
		t.Fatalf("single column must not post: %+v", d.Posting)
	}

	rec = do(t, h, http.MethodGet, "/v1/cash-receipts", nil)
	var recs []receiptResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil || len(recs) != 1 {
		t.Fatalf("expected one receipt, got %s", rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/v1/cash-disbursements?from=2024-07-03", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected no disbursements after the range start, got %s", rec.Body.String())
	}

	if rec := do(t, h, http.MethodPost, "/v1/cash-receipts", map[string]any{"cashDebit": "1", "netSalesCredit": "1"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a dateless record, got %d", rec.Code)
	}
}

func TestCashBooksReferenceNo(t *testing.T) {
	h := setup(t)

	rec := do(t, h, http.MethodPost, "/v1/cash-receipts", map[string]any{
		"date":           "2024-07-02",
		"referenceNo":    "CRJ-REF-1",
		"cashDebit":      200,
		"netSalesCredit": 200,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[receiptResponse](t, rec)
	if got.Reference != "CRJ-REF-1" || got.Posting.Status != ledger.PostingPosted || got.Posting.Reference != "CRJ-REF-1" {
		t.Fatalf("unexpected receipt: %+v", got)
	}
	if !strings.Contains(rec.Body.String(), `"referenceNo":"CRJ-REF-1"`) {
		t.Fatalf("expected referenceNo in response, got %s", rec.Body.String())
	}

	// the same fact keyed manually must not post twice
	rec = do(t, h, http.MethodPost, "/v1/journal", map[string]any{
		"date": "2024-07-05", "reference": "CRJ-REF-1",
		"lines": []map[string]any{{"accountCode": "101", "debit": 200}, {"accountCode": "401", "credit": 200}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if pr := decode[postResp](t, rec); !pr.Duplicate || pr.Entry.ID != got.Posting.EntryID {
		t.Fatalf("expected duplicate of %s, got %+v", got.Posting.EntryID, pr)
	}

	rec = do(t, h, http.MethodPost, "/v1/cash-disbursements", map[string]any{
		"date":        "2024-07-03",
		"referenceNo": "CDJ-REF-1",
		"payee":       "Landlord",
		"cashCredit":  80,
		"rentDebit":   80,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	d := decode[disbursementResponse](t, rec)
	if d.Reference != "CDJ-REF-1" || d.Posting.Status != ledger.PostingPosted || d.Posting.Reference != "CDJ-REF-1" {
		t.Fatalf("unexpected disbursement: %+v", d)
	}
	rec = do(t, h, http.MethodPost, "/v1/journal", map[string]any{
		"date": "2024-07-03", "reference": "CDJ-REF-1", "memo": "rent",
		"lines": []map[string]any{{"accountCode": "503", "debit": "80"}, {"accountCode": "101", "credit": "80"}},
	})
	if rec.Code != http.StatusOK || !decode[postResp](t, rec).Duplicate {
		t.Fatalf("expected duplicate, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLedgerAndExports(t *testing.T) {
	h := setup(t)
	do(t, h, http.MethodPost, "/v1/journal", saleEntry("OR-1"))
	do(t, h, http.MethodPost, "/v1/journal", map[string]any{
		"date": "2024-07-03", "reference": "CDV-1",
		"lines": []map[string]any{{"accountCode": "503", "debit": "40"}, {"accountCode": "101", "credit": "40"}},
	})

	rec := do(t, h, http.MethodGet, "/v1/ledger", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	lr := decode[ledgerResponse](t, rec)
	if len(lr.Accounts) != 3 || lr.TotalDebit != "190.00" || lr.TotalCredit != lr.TotalDebit {
		t.Fatalf("unexpected ledger: %+v", lr)
	}
	cash := lr.Accounts[0]
	if cash.Code != "101" || cash.ClosingBalance != "110.00" || len(cash.Entries) != 2 || cash.Entries[1].RunningBalance != "110.00" {
		t.Fatalf("unexpected cash ledger: %+v", cash)
	}

	rec = do(t, h, http.MethodGet, "/v1/ledger?summaryOnly=true&includeEmpty=true&dateTo=2024-07-01", nil)
	lr = decode[ledgerResponse](t, rec)
	if len(lr.Accounts) != 24 || lr.Accounts[0].Entries != nil || lr.TotalDebit != "150.00" {
		t.Fatalf("unexpected filtered ledger: %+v", lr)
	}
	if rec := do(t, h, http.MethodGet, "/v1/ledger?summaryOnly=maybe", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/v1/journal/export.csv", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 5 || lines[0] != export.JournalHeader {
		t.Fatalf("unexpected journal csv: %q", lines)
	}
	rec = do(t, h, http.MethodGet, "/v1/ledger/export.csv", nil)
	if !strings.HasPrefix(rec.Body.String(), export.LedgerHeader+"\n") {
		t.Fatalf("unexpected ledger csv: %s", rec.Body.String())
	}
}

// takenExternal reports every entry id as already used by another writer.
type takenExternal struct{ flakyExternal }

func (*takenExternal) InsertJournalLines(context.Context, []ledger.PostedLine) error {
	return fmt.Errorf("%w: entry id in use", errs.ErrConflict)
}

func TestPostJournal_ConflictIs409(t *testing.T) {
	h := newServer(t, &takenExternal{}, nil)
	rec := do(t, h, http.MethodPost, "/v1/journal", saleEntry("OR-1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if er := decode[errResp](t, rec); er.Code != "conflict" {
		t.Fatalf("unexpected error: %+v", er)
	}
	if rec := do(t, h, http.MethodGet, "/v1/journal", nil); strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("conflicting entry must not be kept: %s", rec.Body.String())
	}
}

func TestDegradedCommitAndResync(t *testing.T) {
	ext := &flakyExternal{down: true}
	h := newServer(t, ext, nil)

	rec := do(t, h, http.MethodPost, "/v1/journal", saleEntry("OR-1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("degraded commit is still a commit, got %d", rec.Code)
	}
	if w := decode[postResp](t, rec).Warning; !strings.Contains(w, "persistence degraded") {
		t.Fatalf("expected warning, got %q", w)
	}
	pend := decode[pendingResponse](t, do(t, h, http.MethodGet, "/v1/admin/pending", nil))
	if len(pend.Entries) != 1 || pend.Entries[0] != "JE-000001" {
		t.Fatalf("unexpected pending: %+v", pend)
	}

	if rec := do(t, h, http.MethodPost, "/v1/admin/resync", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while the store is down, got %d", rec.Code)
	}

	ext.setDown(false)
	rec = do(t, h, http.MethodPost, "/v1/admin/resync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rr := decode[resyncResponse](t, rec)
	if len(rr.Pushed.Entries) != 1 || len(rr.Pending.Entries) != 0 {
		t.Fatalf("unexpected resync: %+v", rr)
	}
	if n := len(ext.lines); n != 2 {
		t.Fatalf("expected 2 external lines, got %d", n)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	h := newServer(t, nil, stubReady{err: errors.New("db down")})
	if rec := do(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: %d", rec.Code)
	}
	if rec := do(t, setup(t), http.MethodGet, "/readyz", nil); rec.Code != http.StatusOK {
		t.Fatalf("readyz without store: %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), "bookkeeping_http_requests_total") {
		t.Fatalf("metrics missing http counter")
	}
}
