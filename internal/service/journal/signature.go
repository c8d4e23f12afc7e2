package journal

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// Signature is a stable content hash over an entry's lines.
type Signature uint64

type sigTuple struct {
	code   string
	debit  int64
	credit int64
}

// LineSignature hashes the (account, debit, credit) tuples of lines.
// Descriptions, memo and line order do not participate, so two postings of the
// same movement with different wording hash equal.
func LineSignature(lines []ledger.JournalLine) Signature {
	tuples := make([]sigTuple, 0, len(lines))
	for _, ln := range lines {
		tuples = append(tuples, sigTuple{
			code:   strings.TrimSpace(ln.AccountCode),
			debit:  ledger.MinorUnits(ln.Debit),
			credit: ledger.MinorUnits(ln.Credit),
		})
	}
	sort.Slice(tuples, func(i, j int) bool {
		a, b := tuples[i], tuples[j]
		if a.code != b.code {
			return a.code < b.code
		}
		if a.debit != b.debit {
			return a.debit < b.debit
		}
		return a.credit < b.credit
	})
	d := xxhash.New()
	var buf [8]byte
	for _, t := range tuples {
		_, _ = d.WriteString(t.code)
		_, _ = d.Write([]byte{0})
		binary.BigEndian.PutUint64(buf[:], uint64(t.debit))
		_, _ = d.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], uint64(t.credit))
		_, _ = d.Write(buf[:])
	}
	return Signature(d.Sum64())
}

// hasCashLine reports whether any of existing carries a line on the same cash
// account, on the same side, for the same amount as one of lines.
func hasCashLine(existing []ledger.JournalEntry, lines []ledger.JournalLine, isCash func(string) bool) (ledger.JournalEntry, bool) {
	for _, ln := range lines {
		if !isCash(ln.AccountCode) {
			continue
		}
		side, units := ln.Side(), ledger.MinorUnits(ln.Value())
		for _, e := range existing {
			for _, other := range e.Lines {
				if other.AccountCode == ln.AccountCode && other.Side() == side && ledger.MinorUnits(other.Value()) == units {
					return e, true
				}
			}
		}
	}
	return ledger.JournalEntry{}, false
}
