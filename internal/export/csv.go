// Package export renders the journal and the derived ledger as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// JournalHeader is the header row of the journal export.
const JournalHeader = "date,reference,accountCode,accountTitle,description,debit,credit"

// LedgerHeader is the header row of the ledger export.
const LedgerHeader = "accountCode,accountTitle,date,reference,description,debit,credit,runningBalance"

const (
	journalFields = 7
	colDate       = 0
	colRef        = 1
	colCode       = 2
	colTitle      = 3
	colDesc       = 4
	colDebit      = 5
	colCredit     = 6
)

// WriteJournal writes one row per journal line, entries in the given order.
// title resolves account titles and may be nil.
func WriteJournal(w io.Writer, entries []ledger.JournalEntry, title func(code string) string) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(JournalHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	row := 2
	for _, e := range entries {
		for _, ln := range e.Flatten(title) {
			desc := ln.Description
			if desc == "" {
				desc = e.Memo
			}
			rec := []string{
				ledger.FormatDate(ln.Date),
				ln.Reference,
				ln.AccountCode,
				ln.AccountTitle,
				desc,
				ledger.FormatAmount(ln.Debit),
				ledger.FormatAmount(ln.Credit),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
			row++
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLedger writes one row per ledger line, grouped by account.
func WriteLedger(w io.Writer, sums []ledger.AccountSummary) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(LedgerHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	row := 2
	for _, s := range sums {
		for _, l := range s.Entries {
			rec := []string{
				s.Code,
				s.Title,
				ledger.FormatDate(l.Date),
				l.Reference,
				l.Description,
				ledger.FormatAmount(l.Debit),
				ledger.FormatAmount(l.Credit),
				ledger.FormatAmount(l.RunningBalance),
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
			row++
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadJournal parses a journal export back into lines in curr.
func ReadJournal(r io.Reader, curr string) ([]ledger.JournalLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = journalFields
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading journal CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	var out []ledger.JournalLine
	for i, rec := range records[1:] {
		debit, err := ledger.ParseAmount(curr, rec[colDebit])
		if err != nil {
			return nil, fmt.Errorf("row %d: debit: %w", i+2, err)
		}
		credit, err := ledger.ParseAmount(curr, rec[colCredit])
		if err != nil {
			return nil, fmt.Errorf("row %d: credit: %w", i+2, err)
		}
		if _, err := ledger.ParseDate(rec[colDate]); err != nil {
			return nil, fmt.Errorf("row %d: date: %w", i+2, err)
		}
		out = append(out, ledger.JournalLine{
			AccountCode: rec[colCode],
			Description: rec[colDesc],
			Debit:       debit,
			Credit:      credit,
		})
	}
	return out, nil
}
