// Package aggregator derives the general ledger from journal entries: one
// summary per account with running balances on the account's normal side.
package aggregator

import (
	"context"
	"sort"
	"time"

	"github.com/govalues/money"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// Options controls a ledger projection.
type Options struct {
	Range ledger.DateRange
	// SummaryOnly drops the per-line detail.
	SummaryOnly bool
	// IncludeEmpty adds zero summaries for chart accounts with no lines in range.
	IncludeEmpty bool
}

type posting struct {
	date    time.Time
	seq     int64
	lineNo  int
	entryID string
	ref     string
	desc    string
	debit   money.Amount
	credit  money.Amount
}

// Aggregate projects entries into per-account summaries ordered by account code.
// Lines are ordered by date; lines on the same date keep commit order.
func Aggregate(chart *coa.Registry, curr string, entries []ledger.JournalEntry, opts Options) ([]ledger.AccountSummary, error) {
	buckets := make(map[string][]posting)
	for _, e := range entries {
		if !opts.Range.Contains(e.Date) {
			continue
		}
		for i, ln := range e.Lines {
			desc := ln.Description
			if desc == "" {
				desc = e.Memo
			}
			buckets[ln.AccountCode] = append(buckets[ln.AccountCode], posting{
				date: ledger.DateOf(e.Date), seq: e.Seq, lineNo: i, entryID: e.ID,
				ref: e.Reference, desc: desc, debit: ln.Debit, credit: ln.Credit,
			})
		}
	}

	codes := make([]string, 0, len(buckets))
	if opts.IncludeEmpty {
		for _, a := range chart.List() {
			codes = append(codes, a.Code)
		}
		for code := range buckets {
			if _, err := chart.Lookup(code); err != nil {
				codes = append(codes, code)
			}
		}
	} else {
		for code := range buckets {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	out := make([]ledger.AccountSummary, 0, len(codes))
	for _, code := range codes {
		acc, err := chart.Lookup(code)
		if err != nil {
			// lines hydrated from an older chart
			acc = ledger.Account{Code: code, Title: code, NormalSide: ledger.SideDebit}
		}
		sum, err := summarize(acc, curr, buckets[code], opts.SummaryOnly)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func summarize(acc ledger.Account, curr string, lines []posting, summaryOnly bool) (ledger.AccountSummary, error) {
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].date.Equal(lines[j].date) {
			return lines[i].date.Before(lines[j].date)
		}
		if lines[i].seq != lines[j].seq {
			return lines[i].seq < lines[j].seq
		}
		return lines[i].lineNo < lines[j].lineNo
	})
	sum := ledger.AccountSummary{
		Code:           acc.Code,
		Title:          acc.Title,
		NormalSide:     acc.NormalSide,
		TotalDebit:     ledger.Zero(curr),
		TotalCredit:    ledger.Zero(curr),
		ClosingBalance: ledger.Zero(curr),
	}
	if !summaryOnly {
		sum.Entries = make([]ledger.LedgerLine, 0, len(lines))
	}
	var err error
	running := ledger.Zero(curr)
	for _, p := range lines {
		if sum.TotalDebit, err = sum.TotalDebit.Add(p.debit); err != nil {
			return sum, err
		}
		if sum.TotalCredit, err = sum.TotalCredit.Add(p.credit); err != nil {
			return sum, err
		}
		delta, err := acc.Signed(p.debit, p.credit)
		if err != nil {
			return sum, err
		}
		if running, err = running.Add(delta); err != nil {
			return sum, err
		}
		if !summaryOnly {
			sum.Entries = append(sum.Entries, ledger.LedgerLine{
				EntryID:        p.entryID,
				Date:           p.date,
				Reference:      p.ref,
				Description:    p.desc,
				Debit:          p.debit,
				Credit:         p.credit,
				RunningBalance: running,
			})
		}
	}
	sum.ClosingBalance = running
	return sum, nil
}

// TrialBalance totals debits and credits across summaries.
func TrialBalance(curr string, sums []ledger.AccountSummary) (debit, credit money.Amount, err error) {
	debit, credit = ledger.Zero(curr), ledger.Zero(curr)
	for _, s := range sums {
		if debit, err = debit.Add(s.TotalDebit); err != nil {
			return debit, credit, err
		}
		if credit, err = credit.Add(s.TotalCredit); err != nil {
			return debit, credit, err
		}
	}
	return debit, credit, nil
}

// EntryLister is the snapshot source for Service.
type EntryLister interface {
	ListEntries(ctx context.Context, r ledger.DateRange) ([]ledger.JournalEntry, error)
}

// Service aggregates over a point-in-time snapshot of the book.
type Service struct {
	chart *coa.Registry
	repo  EntryLister
	curr  string
}

// NewService builds a ledger service over repo.
func NewService(chart *coa.Registry, repo EntryLister, curr string) *Service {
	return &Service{chart: chart, repo: repo, curr: curr}
}

// Ledger returns the derived ledger for opts.
func (s *Service) Ledger(ctx context.Context, opts Options) ([]ledger.AccountSummary, error) {
	entries, err := s.repo.ListEntries(ctx, opts.Range)
	if err != nil {
		return nil, err
	}
	return Aggregate(s.chart, s.curr, entries, opts)
}
