// Package postgres is the external store: a pgx-backed journal, the two cash
// books and the general_ledger materialized view. Migrations that create the
// expected schema live under db/migrations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/meta"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	curr string
}

// Open establishes a pgx pool. Amounts read back are parsed in curr.
func Open(ctx context.Context, dsn, curr string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, curr: curr}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// UpsertAccountMetadata registers or refreshes an account row.
func (s *Store) UpsertAccountMetadata(ctx context.Context, a ledger.Account) error {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (code, title, classification, normal_side)
		values ($1, $2, $3, $4)
		on conflict (code) do update
		set title = excluded.title,
		    classification = excluded.classification,
		    normal_side = excluded.normal_side,
		    updated_at = now()
	`, a.Code, a.Title, string(a.Classification), string(a.NormalSide))
	return err
}

// InsertJournalLines writes all lines of a batch in one transaction. Lines
// already present (same entry id and line number) with the same content are
// left untouched so a resync after a timed-out write does not duplicate them.
// A line slot held by different content means another writer committed the
// same entry id; the batch is rolled back with errs.ErrConflict.
func (s *Store) InsertJournalLines(ctx context.Context, lines []ledger.PostedLine) error {
	if len(lines) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	batch := &pgx.Batch{}
	for _, ln := range lines {
		md, err := ln.Metadata.MarshalStableJSON()
		if err != nil {
			return fmt.Errorf("line %s/%d metadata: %w", ln.EntryID, ln.LineNo, err)
		}
		created := ln.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		batch.Queue(`
			insert into general_journal
				(id, entry_id, seq, line_no, date, reference, memo, source, metadata,
				 account_code, account_title, description, debit, credit, created_at)
			values ($1, $2, $3, $4, $5, nullif($6, ''), $7, $8, $9, $10, $11, $12, $13::text::numeric, $14::text::numeric, $15)
			on conflict (entry_id, line_no) do nothing
		`, ln.ID, ln.EntryID, ln.Seq, ln.LineNo, ln.Date, ln.Reference, ln.Memo, string(ln.Source), md,
			ln.AccountCode, ln.AccountTitle, ln.Description,
			ledger.FormatAmount(ln.Debit), ledger.FormatAmount(ln.Credit), created)
	}
	br := tx.SendBatch(ctx, batch)
	var skipped []ledger.PostedLine
	for _, ln := range lines {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return err
		}
		if tag.RowsAffected() == 0 {
			skipped = append(skipped, ln)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	for _, ln := range skipped {
		var same bool
		err := tx.QueryRow(ctx, `
			select account_code = $3 and debit = $4::text::numeric and credit = $5::text::numeric
			       and date = $6 and coalesce(reference, '') = $7
			from general_journal
			where entry_id = $1 and line_no = $2
		`, ln.EntryID, ln.LineNo, ln.AccountCode, ledger.FormatAmount(ln.Debit), ledger.FormatAmount(ln.Credit), ln.Date, ln.Reference).Scan(&same)
		if err != nil {
			return err
		}
		if !same {
			return fmt.Errorf("%w: entry %s line %d already holds different content", errs.ErrConflict, ln.EntryID, ln.LineNo)
		}
	}
	return tx.Commit(ctx)
}

const selectJournalLines = `
	select id, entry_id, seq, line_no, date, coalesce(reference, ''), memo, source, metadata,
	       account_code, account_title, description, debit::text, credit::text, created_at
	from general_journal`

// ReadAllJournalLines returns lines within r ordered by sequence and line number.
func (s *Store) ReadAllJournalLines(ctx context.Context, r ledger.DateRange) ([]ledger.PostedLine, error) {
	rows, err := s.pool.Query(ctx, selectJournalLines+`
		where ($1::date is null or date >= $1::date)
		  and ($2::date is null or date <= $2::date)
		order by seq, line_no
	`, r.From, r.To)
	if err != nil {
		return nil, err
	}
	return s.scanLines(rows)
}

// ReadJournalLinesAfter returns the lines of entries with a sequence number
// greater than seq, i.e. what other writers committed since.
func (s *Store) ReadJournalLinesAfter(ctx context.Context, seq int64) ([]ledger.PostedLine, error) {
	rows, err := s.pool.Query(ctx, selectJournalLines+`
		where seq > $1
		order by seq, line_no
	`, seq)
	if err != nil {
		return nil, err
	}
	return s.scanLines(rows)
}

func (s *Store) scanLines(rows pgx.Rows) ([]ledger.PostedLine, error) {
	defer rows.Close()
	out := make([]ledger.PostedLine, 0)
	for rows.Next() {
		var (
			ln            ledger.PostedLine
			source        string
			mdBytes       []byte
			debit, credit string
			err           error
		)
		if err := rows.Scan(&ln.ID, &ln.EntryID, &ln.Seq, &ln.LineNo, &ln.Date, &ln.Reference, &ln.Memo, &source, &mdBytes,
			&ln.AccountCode, &ln.AccountTitle, &ln.Description, &debit, &credit, &ln.CreatedAt); err != nil {
			return nil, err
		}
		ln.Source = ledger.Source(source)
		ln.Date = ledger.DateOf(ln.Date)
		if len(mdBytes) > 0 {
			var m meta.Metadata
			if err := m.UnmarshalJSON(mdBytes); err == nil {
				ln.Metadata = m
			}
		}
		if ln.Debit, err = s.amount(debit); err != nil {
			return nil, err
		}
		if ln.Credit, err = s.amount(credit); err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

// RefreshDerivedLedger rebuilds the general_ledger materialized view.
func (s *Store) RefreshDerivedLedger(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `refresh materialized view concurrently general_ledger`)
	return err
}

// InsertCashReceipt stores a cash receipts journal row.
func (s *Store) InsertCashReceipt(ctx context.Context, r ledger.CashReceipt) error {
	_, err := s.pool.Exec(ctx, `
		insert into cash_receipt_journal
			(id, seq, date, reference, counterparty, cash_debit, fees_debit, returns_debit,
			 net_sales_credit, other_income_credit, receivable_credit, capital_credit, remarks,
			 posting_status, entry_id, posting_reference, posting_reason, created_at)
		values ($1, $2, $3, nullif($4, ''), $5,
		        $6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric,
		        $10::text::numeric, $11::text::numeric, $12::text::numeric, $13,
		        $14, nullif($15, ''), nullif($16, ''), $17, $18)
		on conflict (id) do nothing
	`, r.ID, r.Seq, r.Date, r.Reference, r.Counterparty,
		ledger.FormatAmount(r.CashDebit), ledger.FormatAmount(r.FeesDebit), ledger.FormatAmount(r.ReturnsDebit), ledger.FormatAmount(r.NetSales),
		ledger.FormatAmount(r.OtherIncome), ledger.FormatAmount(r.Receivable), ledger.FormatAmount(r.Capital), r.Remarks,
		string(r.Posting.Status), r.Posting.EntryID, r.Posting.Reference, r.Posting.Reason, createdAt(r.CreatedAt))
	return err
}

// ReadCashReceipts returns every stored cash receipt in sequence order.
func (s *Store) ReadCashReceipts(ctx context.Context) ([]ledger.CashReceipt, error) {
	rows, err := s.pool.Query(ctx, `
		select id, seq, date, coalesce(reference, ''), counterparty,
		       cash_debit::text, fees_debit::text, returns_debit::text, net_sales_credit::text,
		       other_income_credit::text, receivable_credit::text, capital_credit::text, remarks,
		       posting_status, coalesce(entry_id, ''), coalesce(posting_reference, ''), posting_reason, created_at
		from cash_receipt_journal
		order by seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.CashReceipt, 0)
	for rows.Next() {
		var (
			r      ledger.CashReceipt
			amts   [7]string
			status string
		)
		if err := rows.Scan(&r.ID, &r.Seq, &r.Date, &r.Reference, &r.Counterparty,
			&amts[0], &amts[1], &amts[2], &amts[3], &amts[4], &amts[5], &amts[6], &r.Remarks,
			&status, &r.Posting.EntryID, &r.Posting.Reference, &r.Posting.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Date = ledger.DateOf(r.Date)
		r.Posting.Status = ledger.PostingStatus(status)
		dst := []*money.Amount{&r.CashDebit, &r.FeesDebit, &r.ReturnsDebit, &r.NetSales, &r.OtherIncome, &r.Receivable, &r.Capital}
		if err := s.amounts(amts[:], dst); err != nil {
			return nil, fmt.Errorf("receipt %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertCashDisbursement stores a cash disbursements book row.
func (s *Store) InsertCashDisbursement(ctx context.Context, d ledger.CashDisbursement) error {
	_, err := s.pool.Exec(ctx, `
		insert into cash_disbursement_book
			(id, seq, date, reference, payee, cash_credit, materials_debit, supplies_debit, rent_debit,
			 utilities_debit, advertising_debit, delivery_debit, taxes_debit, misc_debit, remarks,
			 posting_status, entry_id, posting_reference, posting_reason, created_at)
		values ($1, $2, $3, nullif($4, ''), $5,
		        $6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric,
		        $10::text::numeric, $11::text::numeric, $12::text::numeric, $13::text::numeric, $14::text::numeric, $15,
		        $16, nullif($17, ''), nullif($18, ''), $19, $20)
		on conflict (id) do nothing
	`, d.ID, d.Seq, d.Date, d.Reference, d.Payee,
		ledger.FormatAmount(d.CashCredit), ledger.FormatAmount(d.Materials), ledger.FormatAmount(d.Supplies), ledger.FormatAmount(d.Rent),
		ledger.FormatAmount(d.Utilities), ledger.FormatAmount(d.Advertising), ledger.FormatAmount(d.Delivery), ledger.FormatAmount(d.Taxes),
		ledger.FormatAmount(d.Misc), d.Remarks,
		string(d.Posting.Status), d.Posting.EntryID, d.Posting.Reference, d.Posting.Reason, createdAt(d.CreatedAt))
	return err
}

// ReadCashDisbursements returns every stored cash disbursement in sequence order.
func (s *Store) ReadCashDisbursements(ctx context.Context) ([]ledger.CashDisbursement, error) {
	rows, err := s.pool.Query(ctx, `
		select id, seq, date, coalesce(reference, ''), payee,
		       cash_credit::text, materials_debit::text, supplies_debit::text, rent_debit::text,
		       utilities_debit::text, advertising_debit::text, delivery_debit::text, taxes_debit::text, misc_debit::text, remarks,
		       posting_status, coalesce(entry_id, ''), coalesce(posting_reference, ''), posting_reason, created_at
		from cash_disbursement_book
		order by seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.CashDisbursement, 0)
	for rows.Next() {
		var (
			d      ledger.CashDisbursement
			amts   [9]string
			status string
		)
		if err := rows.Scan(&d.ID, &d.Seq, &d.Date, &d.Reference, &d.Payee,
			&amts[0], &amts[1], &amts[2], &amts[3], &amts[4], &amts[5], &amts[6], &amts[7], &amts[8], &d.Remarks,
			&status, &d.Posting.EntryID, &d.Posting.Reference, &d.Posting.Reason, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Date = ledger.DateOf(d.Date)
		d.Posting.Status = ledger.PostingStatus(status)
		dst := []*money.Amount{&d.CashCredit, &d.Materials, &d.Supplies, &d.Rent, &d.Utilities, &d.Advertising, &d.Delivery, &d.Taxes, &d.Misc}
		if err := s.amounts(amts[:], dst); err != nil {
			return nil, fmt.Errorf("disbursement %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// amount parses a numeric column rendered as text, rounded to the currency scale.
func (s *Store) amount(v string) (money.Amount, error) {
	a, err := ledger.ParseAmount(s.curr, v)
	if err != nil {
		return a, err
	}
	return a.Round(a.Curr().Scale()), nil
}

func (s *Store) amounts(src []string, dst []*money.Amount) error {
	for i := range src {
		a, err := s.amount(src[i])
		if err != nil {
			return err
		}
		*dst[i] = a
	}
	return nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
