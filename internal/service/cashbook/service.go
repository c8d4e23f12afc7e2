// Package cashbook keeps the cash receipts journal and the cash disbursements
// book, and auto-posts each record into the general journal exactly once.
package cashbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/meta"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
)

// Journal tags used for system references, metadata and metrics.
const (
	ReceiptsJournal      = "CRJ"
	DisbursementsJournal = "CDJ"
)

// Repo reads the stored cash books.
type Repo interface {
	NextReceiptSeq(ctx context.Context) (int64, error)
	NextDisbursementSeq(ctx context.Context) (int64, error)
	Receipts(ctx context.Context, r ledger.DateRange) ([]ledger.CashReceipt, error)
	Disbursements(ctx context.Context, r ledger.DateRange) ([]ledger.CashDisbursement, error)
}

// Saver persists records. Implemented by the write-through facade.
type Saver interface {
	SaveReceipt(ctx context.Context, r ledger.CashReceipt) (ledger.CommitResult, error)
	SaveDisbursement(ctx context.Context, d ledger.CashDisbursement) (ledger.CommitResult, error)
}

// ReceiptInput is a cash receipt as submitted.
type ReceiptInput struct {
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
}

// DisbursementInput is a cash disbursement as submitted.
type DisbursementInput struct {
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
}

// ReceiptResult is the stored receipt plus write-through status.
type ReceiptResult struct {
	Receipt  ledger.CashReceipt
	Degraded bool
	Warning  string
}

// DisbursementResult is the stored disbursement plus write-through status.
type DisbursementResult struct {
	Disbursement ledger.CashDisbursement
	Degraded     bool
	Warning      string
}

// Service records cash book rows and posts them to the journal.
type Service struct {
	journal journal.Service
	repo    Repo
	saver   Saver
	curr    string
	log     *slog.Logger
	now     func() time.Time

	// serializes record sequence assignment per book
	recvMu sync.Mutex
	disbMu sync.Mutex
}

// New builds the cash book service.
func New(j journal.Service, repo Repo, saver Saver, curr string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{journal: j, repo: repo, saver: saver, curr: curr, log: log, now: time.Now}
}

// RecordReceipt stores a cash receipt and auto-posts it. The receipt is stored
// even when the journal post fails; the failure is carried on its Posting.
func (s *Service) RecordReceipt(ctx context.Context, in ReceiptInput) (ReceiptResult, error) {
	rec := ledger.CashReceipt{
		Date:         in.Date,
		Reference:    strings.TrimSpace(in.Reference),
		Counterparty: strings.TrimSpace(in.Counterparty),
		CashDebit:    s.orZero(in.CashDebit),
		FeesDebit:    s.orZero(in.FeesDebit),
		ReturnsDebit: s.orZero(in.ReturnsDebit),
		NetSales:     s.orZero(in.NetSales),
		OtherIncome:  s.orZero(in.OtherIncome),
		Receivable:   s.orZero(in.Receivable),
		Capital:      s.orZero(in.Capital),
		Remarks:      strings.TrimSpace(in.Remarks),
	}
	cols := receiptColumns(rec)
	if err := s.checkRecord(in.Date, cols); err != nil {
		return ReceiptResult{}, err
	}
	rec.Date = ledger.DateOf(in.Date)

	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	seq, err := s.repo.NextReceiptSeq(ctx)
	if err != nil {
		return ReceiptResult{}, err
	}
	rec.ID, rec.Seq, rec.CreatedAt = uuid.New(), seq, s.now().UTC()

	rec.Posting = s.autopost(ctx, autopost{
		journal:   ReceiptsJournal,
		source:    ledger.SourceCashReceipt,
		recordID:  rec.ID,
		seq:       seq,
		date:      rec.Date,
		reference: rec.Reference,
		party:     rec.Counterparty,
		remarks:   rec.Remarks,
		lines:     toLines(s.curr, cols),
	})
	res, err := s.saver.SaveReceipt(ctx, rec)
	if err != nil {
		return ReceiptResult{}, err
	}
	return ReceiptResult{Receipt: rec, Degraded: res.Degraded, Warning: warning(rec.Posting, res)}, nil
}

// RecordDisbursement stores a cash disbursement and auto-posts it.
func (s *Service) RecordDisbursement(ctx context.Context, in DisbursementInput) (DisbursementResult, error) {
	rec := ledger.CashDisbursement{
		Date:        in.Date,
		Reference:   strings.TrimSpace(in.Reference),
		Payee:       strings.TrimSpace(in.Payee),
		CashCredit:  s.orZero(in.CashCredit),
		Materials:   s.orZero(in.Materials),
		Supplies:    s.orZero(in.Supplies),
		Rent:        s.orZero(in.Rent),
		Utilities:   s.orZero(in.Utilities),
		Advertising: s.orZero(in.Advertising),
		Delivery:    s.orZero(in.Delivery),
		Taxes:       s.orZero(in.Taxes),
		Misc:        s.orZero(in.Misc),
		Remarks:     strings.TrimSpace(in.Remarks),
	}
	cols := disbursementColumns(rec)
	if err := s.checkRecord(in.Date, cols); err != nil {
		return DisbursementResult{}, err
	}
	rec.Date = ledger.DateOf(in.Date)

	s.disbMu.Lock()
	defer s.disbMu.Unlock()
	seq, err := s.repo.NextDisbursementSeq(ctx)
	if err != nil {
		return DisbursementResult{}, err
	}
	rec.ID, rec.Seq, rec.CreatedAt = uuid.New(), seq, s.now().UTC()

	rec.Posting = s.autopost(ctx, autopost{
		journal:   DisbursementsJournal,
		source:    ledger.SourceCashDisbursement,
		recordID:  rec.ID,
		seq:       seq,
		date:      rec.Date,
		reference: rec.Reference,
		party:     rec.Payee,
		remarks:   rec.Remarks,
		lines:     toLines(s.curr, cols),
	})
	res, err := s.saver.SaveDisbursement(ctx, rec)
	if err != nil {
		return DisbursementResult{}, err
	}
	return DisbursementResult{Disbursement: rec, Degraded: res.Degraded, Warning: warning(rec.Posting, res)}, nil
}

// Receipts lists stored cash receipts.
func (s *Service) Receipts(ctx context.Context, r ledger.DateRange) ([]ledger.CashReceipt, error) {
	return s.repo.Receipts(ctx, r)
}

// Disbursements lists stored cash disbursements.
func (s *Service) Disbursements(ctx context.Context, r ledger.DateRange) ([]ledger.CashDisbursement, error) {
	return s.repo.Disbursements(ctx, r)
}

type autopost struct {
	journal   string
	source    ledger.Source
	recordID  uuid.UUID
	seq       int64
	date      time.Time
	reference string
	party     string
	remarks   string
	lines     []ledger.JournalLine
}

// autopost derives the journal posting for a record. Every outcome, including
// a journal failure, is recorded on the posting: the record itself is always kept.
func (s *Service) autopost(ctx context.Context, a autopost) ledger.Posting {
	if len(a.lines) < 2 {
		autopostTotal.WithLabelValues(a.journal, string(ledger.PostingSkipped)).Inc()
		return ledger.Posting{Status: ledger.PostingSkipped, Reason: "fewer than two nonzero columns"}
	}
	ref := a.reference
	if ref == "" {
		ref = SystemReference(a.journal, a.seq)
	}
	md := meta.New(nil)
	md.Set(meta.KeyRecordID, a.recordID.String())
	md.Set(meta.KeyRecordSeq, fmt.Sprintf("%d", a.seq))
	md.Set(meta.KeyJournal, a.journal)
	md.Set(meta.KeyParty, a.party)
	md.Set(meta.KeyRemarks, a.remarks)
	if a.reference == "" {
		md.Set(meta.KeySystemRef, "true")
	}

	res, err := s.journal.Post(ctx, journal.Proposal{
		Date:      a.date,
		Reference: ref,
		Memo:      a.party,
		Source:    a.source,
		Metadata:  md,
		Lines:     a.lines,
	}, journal.WithCrossDateGuard(), journal.WithCashLineGuard())
	switch {
	case err != nil && journal.IsValidation(err):
		autopostTotal.WithLabelValues(a.journal, string(ledger.PostingRejected)).Inc()
		s.log.Info("cash book record not posted", "journal", a.journal, "record_id", a.recordID, "err", err)
		return ledger.Posting{Status: ledger.PostingRejected, Reference: ref, Reason: err.Error()}
	case err != nil:
		autopostTotal.WithLabelValues(a.journal, string(ledger.PostingFailed)).Inc()
		s.log.Warn("cash book record stored without journal posting", "journal", a.journal, "record_id", a.recordID, "err", err)
		return ledger.Posting{Status: ledger.PostingFailed, Reference: ref, Reason: err.Error()}
	case res.Duplicate:
		autopostTotal.WithLabelValues(a.journal, string(ledger.PostingDuplicate)).Inc()
		return ledger.Posting{Status: ledger.PostingDuplicate, EntryID: res.Entry.ID, Reference: ref, Reason: "equivalent journal entry exists"}
	}
	autopostTotal.WithLabelValues(a.journal, string(ledger.PostingPosted)).Inc()
	p := ledger.Posting{Status: ledger.PostingPosted, EntryID: res.Entry.ID, Reference: ref}
	if res.Degraded {
		p.Reason = res.Warning
	}
	return p
}

// warning merges a failed posting with the write-through status of the record.
func warning(p ledger.Posting, res ledger.CommitResult) string {
	if p.Status != ledger.PostingFailed {
		return res.Warning
	}
	msg := "journal posting failed: " + p.Reason
	if res.Warning != "" {
		msg += "; " + res.Warning
	}
	return msg
}

// SystemReference is the reference given to records submitted without one, e.g. CRJ-7.
func SystemReference(journalTag string, seq int64) string {
	return fmt.Sprintf("%s-%d", journalTag, seq)
}

func (s *Service) orZero(a money.Amount) money.Amount {
	if a.IsZero() {
		return ledger.Zero(s.curr)
	}
	return a
}

// checkRecord rejects records that could never be stored: no date, negative
// or foreign-currency columns.
func (s *Service) checkRecord(date time.Time, cols []column) error {
	if date.IsZero() {
		return fmt.Errorf("%w: date required", errs.ErrMalformedEntry)
	}
	for _, c := range cols {
		if c.value.IsNeg() {
			return fmt.Errorf("%w: %s must be >= 0", errs.ErrInvalidAmount, c.label)
		}
		if c.value.Curr().Code() != s.curr {
			return fmt.Errorf("%w: %s must be in %s", errs.ErrInvalidAmount, c.label, s.curr)
		}
		if !ledger.FitsCurrency(c.value) {
			return fmt.Errorf("%w: %s must be whole minor units of %s", errs.ErrInvalidAmount, c.label, s.curr)
		}
	}
	return nil
}
