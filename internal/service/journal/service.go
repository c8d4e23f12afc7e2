package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/govalues/money"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/lock"
	"github.com/tinoosan/bookkeeping/internal/meta"
)

// Repo defines the read operations the engine needs from the in-memory book.
type Repo interface {
	NextSeq(ctx context.Context) (int64, error)
	EntryByID(ctx context.Context, id string) (ledger.JournalEntry, error)
	EntryByReference(ctx context.Context, ref string) (ledger.JournalEntry, bool, error)
	EntriesOn(ctx context.Context, date time.Time) ([]ledger.JournalEntry, error)
	ListEntries(ctx context.Context, r ledger.DateRange) ([]ledger.JournalEntry, error)
}

// Committer persists a new entry. Implemented by the write-through facade.
type Committer interface {
	Commit(ctx context.Context, e ledger.JournalEntry) (ledger.CommitResult, error)
}

// CatchUpper brings the read model up to date with entries other processes
// committed to a shared store. Implemented by the write-through facade.
type CatchUpper interface {
	CatchUp(ctx context.Context) (int, error)
}

// Proposal is an entry submitted for posting.
type Proposal struct {
	Date      time.Time
	Reference string
	Memo      string
	Source    ledger.Source
	Metadata  meta.Metadata
	Lines     []ledger.JournalLine
}

// Result is the outcome of a successful Post. Duplicate posts return the
// entry that was already committed.
type Result struct {
	Entry     ledger.JournalEntry
	Duplicate bool
	Degraded  bool
	Warning   string
}

// Service validates, deduplicates and commits journal entries.
type Service interface {
	Validate(p Proposal) error
	Post(ctx context.Context, p Proposal, opts ...PostOption) (Result, error)
	Entries(ctx context.Context, r ledger.DateRange) ([]ledger.JournalEntry, error)
	Entry(ctx context.Context, id string) (ledger.JournalEntry, error)
	EntryByReference(ctx context.Context, ref string) (ledger.JournalEntry, bool, error)
}

// PostOption enables extra duplicate guards for a single Post call.
type PostOption func(*postConfig)

type postConfig struct {
	crossDate bool
	cashLine  bool
}

// WithCrossDateGuard treats an entry with the same line signature on any date as a duplicate.
func WithCrossDateGuard() PostOption { return func(c *postConfig) { c.crossDate = true } }

// WithCashLineGuard treats the proposal as a duplicate when an entry on the same
// date already has a cash line with the same account, side and amount.
func WithCashLineGuard() PostOption { return func(c *postConfig) { c.cashLine = true } }

// Option configures the service.
type Option func(*service)

// WithLocker replaces the in-process mutex, e.g. with a chained Redis lock.
func WithLocker(l lock.Locker) Option { return func(s *service) { s.locker = l } }

// WithCatchUp refreshes the read model from a shared store after the posting
// lock is taken. Use it together with a lock shared by every writer.
func WithCatchUp(c CatchUpper) Option { return func(s *service) { s.catchUp = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *service) { s.log = l } }

// WithCurrency sets the book currency. Defaults to PHP.
func WithCurrency(code string) Option { return func(s *service) { s.curr = code } }

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

type service struct {
	chart     *coa.Registry
	repo      Repo
	committer Committer
	locker    lock.Locker
	catchUp   CatchUpper
	log       *slog.Logger
	curr      string
	now       func() time.Time
	tolerance money.Amount
}

// DefaultCurrency is the book currency when none is configured.
const DefaultCurrency = "PHP"

func New(chart *coa.Registry, repo Repo, committer Committer, opts ...Option) Service {
	s := &service{
		chart:     chart,
		repo:      repo,
		committer: committer,
		locker:    lock.NewLocal(),
		log:       slog.Default(),
		curr:      DefaultCurrency,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	// half a minor unit of a two-decimal currency
	s.tolerance = money.MustNewAmount(s.curr, 5, 3)
	return s
}

// Validate checks a proposal in a fixed order: account codes, amounts, shape, balance.
// The first failing check wins.
func (s *service) Validate(p Proposal) error {
	for i, ln := range p.Lines {
		code := strings.TrimSpace(ln.AccountCode)
		if code == "" {
			return errs.Line(i, errs.ErrUnknownAccount, "account code required")
		}
		if _, err := s.chart.Lookup(code); err != nil {
			return errs.Line(i, errs.ErrUnknownAccount, "unknown account code "+code)
		}
	}
	for i, ln := range p.Lines {
		if ln.Debit.Curr().Code() != s.curr || ln.Credit.Curr().Code() != s.curr {
			return errs.Line(i, errs.ErrInvalidAmount, "amounts must be in "+s.curr)
		}
		if ln.Debit.IsNeg() || ln.Credit.IsNeg() {
			return errs.Line(i, errs.ErrInvalidAmount, "debit and credit must be >= 0")
		}
		if !ledger.FitsCurrency(ln.Debit) || !ledger.FitsCurrency(ln.Credit) {
			return errs.Line(i, errs.ErrInvalidAmount, "amounts must be whole minor units of "+s.curr)
		}
		if ln.Debit.IsZero() == ln.Credit.IsZero() {
			return errs.Line(i, errs.ErrInvalidAmount, "exactly one of debit or credit must be set")
		}
	}
	if len(p.Lines) < 2 {
		return fmt.Errorf("%w: at least 2 lines", errs.ErrMalformedEntry)
	}
	if p.Date.IsZero() {
		return fmt.Errorf("%w: date required", errs.ErrMalformedEntry)
	}
	debit, credit, err := ledger.JournalEntry{Lines: p.Lines}.Totals(s.curr)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	diff, err := debit.Sub(credit)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidAmount, err)
	}
	if c, err := diff.Abs().Cmp(s.tolerance); err != nil || c >= 0 {
		return fmt.Errorf("%w: debits %s != credits %s", errs.ErrUnbalanced, ledger.FormatAmount(debit), ledger.FormatAmount(credit))
	}
	return nil
}

// Post validates p and commits it unless an equivalent entry exists. Validation,
// the duplicate checks and the commit (including the external write) run under
// one lock so two racing proposals cannot both pass the duplicate check.
func (s *service) Post(ctx context.Context, p Proposal, opts ...PostOption) (Result, error) {
	var cfg postConfig
	for _, o := range opts {
		o(&cfg)
	}
	p = s.normalize(p)

	release, err := s.locker.Lock(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("acquire posting lock: %w", err)
	}
	defer release()

	if s.catchUp != nil {
		if _, err := s.catchUp.CatchUp(ctx); err != nil {
			// posting goes on; a colliding id is caught by the external write
			s.log.Warn("journal catch-up failed", "err", err)
		}
	}

	if err := s.Validate(p); err != nil {
		postsTotal.WithLabelValues(outcomeRejected).Inc()
		return Result{}, err
	}

	if existing, ok, err := s.findDuplicate(ctx, p, cfg); err != nil {
		return Result{}, err
	} else if ok {
		postsTotal.WithLabelValues(outcomeDuplicate).Inc()
		s.log.Debug("journal duplicate", "entry_id", existing.ID, "reference", p.Reference, "source", string(p.Source))
		return Result{Entry: existing, Duplicate: true}, nil
	}

	seq, err := s.repo.NextSeq(ctx)
	if err != nil {
		return Result{}, err
	}
	entry := ledger.JournalEntry{
		ID:        FormatEntryID(seq),
		Seq:       seq,
		Date:      p.Date,
		Reference: p.Reference,
		Memo:      p.Memo,
		Source:    p.Source,
		Metadata:  p.Metadata,
		CreatedAt: s.now().UTC(),
		Lines:     p.Lines,
	}
	res, err := s.committer.Commit(ctx, entry)
	if err != nil {
		return Result{}, fmt.Errorf("commit %s: %w", entry.ID, err)
	}
	postsTotal.WithLabelValues(outcomeCommitted).Inc()
	if res.Degraded {
		degradedCommits.Inc()
	}
	return Result{Entry: entry, Degraded: res.Degraded, Warning: res.Warning}, nil
}

func (s *service) findDuplicate(ctx context.Context, p Proposal, cfg postConfig) (ledger.JournalEntry, bool, error) {
	if p.Reference != "" {
		e, ok, err := s.repo.EntryByReference(ctx, p.Reference)
		if err != nil || ok {
			return e, ok, err
		}
	}
	sameDay, err := s.repo.EntriesOn(ctx, p.Date)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}
	sig := LineSignature(p.Lines)
	for _, e := range sameDay {
		if LineSignature(e.Lines) == sig {
			return e, true, nil
		}
	}
	if cfg.crossDate {
		all, err := s.repo.ListEntries(ctx, ledger.DateRange{})
		if err != nil {
			return ledger.JournalEntry{}, false, err
		}
		for _, e := range all {
			if LineSignature(e.Lines) == sig {
				return e, true, nil
			}
		}
	}
	if cfg.cashLine {
		if e, ok := hasCashLine(sameDay, p.Lines, s.chart.IsCash); ok {
			return e, true, nil
		}
	}
	return ledger.JournalEntry{}, false, nil
}

func (s *service) Entries(ctx context.Context, r ledger.DateRange) ([]ledger.JournalEntry, error) {
	return s.repo.ListEntries(ctx, r)
}

func (s *service) Entry(ctx context.Context, id string) (ledger.JournalEntry, error) {
	if strings.TrimSpace(id) == "" {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	return s.repo.EntryByID(ctx, id)
}

func (s *service) EntryByReference(ctx context.Context, ref string) (ledger.JournalEntry, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ledger.JournalEntry{}, false, nil
	}
	return s.repo.EntryByReference(ctx, ref)
}

// FormatEntryID renders the sequential entry id, e.g. JE-000042.
func FormatEntryID(seq int64) string { return fmt.Sprintf("JE-%06d", seq) }

// IsValidation reports whether err is a caller-visible posting validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, errs.ErrUnknownAccount) ||
		errors.Is(err, errs.ErrInvalidAmount) ||
		errors.Is(err, errs.ErrMalformedEntry) ||
		errors.Is(err, errs.ErrUnbalanced)
}

// normalize trims text fields, truncates the date and fills zero amounts
// with the book currency so unset sides compare and sum cleanly.
func (s *service) normalize(p Proposal) Proposal {
	p.Reference = strings.TrimSpace(p.Reference)
	p.Memo = strings.TrimSpace(p.Memo)
	if !p.Date.IsZero() {
		p.Date = ledger.DateOf(p.Date)
	}
	if p.Source == "" {
		p.Source = ledger.SourceManual
	}
	p.Metadata = p.Metadata.Clone()
	lines := make([]ledger.JournalLine, len(p.Lines))
	for i, ln := range p.Lines {
		ln.AccountCode = strings.TrimSpace(ln.AccountCode)
		ln.Description = strings.TrimSpace(ln.Description)
		if ln.Debit.IsZero() {
			ln.Debit = ledger.Zero(s.curr)
		}
		if ln.Credit.IsZero() {
			ln.Credit = ledger.Zero(s.curr)
		}
		lines[i] = ln
	}
	p.Lines = lines
	return p
}
