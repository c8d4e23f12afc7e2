// Package coa holds the chart of accounts: a read-only registry built once at
// startup and shared by every posting path.
package coa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// Registry maps account codes to accounts. It is never mutated after New
// returns, so concurrent reads need no locking.
type Registry struct {
	byCode map[string]ledger.Account
	sorted []ledger.Account
	cash   map[string]struct{}
}

// New validates accounts and builds a registry. cashCodes marks the accounts
// treated as cash by the cash-line reconciliation guard.
func New(accounts []ledger.Account, cashCodes ...string) (*Registry, error) {
	r := &Registry{
		byCode: make(map[string]ledger.Account, len(accounts)),
		cash:   make(map[string]struct{}, len(cashCodes)),
	}
	for i, a := range accounts {
		a.Code = strings.TrimSpace(a.Code)
		if a.Code == "" {
			return nil, fmt.Errorf("account[%d]: code is required", i)
		}
		if a.Title == "" {
			return nil, fmt.Errorf("account %s: title is required", a.Code)
		}
		if !a.Classification.Valid() {
			return nil, fmt.Errorf("account %s: invalid classification %q", a.Code, a.Classification)
		}
		if a.NormalSide == "" {
			a.NormalSide = a.Classification.DefaultNormalSide()
		}
		if !a.NormalSide.Valid() {
			return nil, fmt.Errorf("account %s: invalid normal side %q", a.Code, a.NormalSide)
		}
		if _, dup := r.byCode[a.Code]; dup {
			return nil, fmt.Errorf("account %s: duplicate code", a.Code)
		}
		r.byCode[a.Code] = a
		r.sorted = append(r.sorted, a)
	}
	sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i].Code < r.sorted[j].Code })
	for _, c := range cashCodes {
		if _, ok := r.byCode[c]; !ok {
			return nil, fmt.Errorf("cash account %s not in chart", c)
		}
		r.cash[c] = struct{}{}
	}
	return r, nil
}

// Lookup resolves a code. Unknown codes fail with errs.ErrUnknownAccount.
func (r *Registry) Lookup(code string) (ledger.Account, error) {
	a, ok := r.byCode[strings.TrimSpace(code)]
	if !ok {
		return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrUnknownAccount, code)
	}
	return a, nil
}

// List returns all accounts ordered by code.
func (r *Registry) List() []ledger.Account {
	out := make([]ledger.Account, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// Title returns the account title, or "" for unknown codes.
func (r *Registry) Title(code string) string { return r.byCode[code].Title }

// IsCash reports whether code is one of the cash accounts.
func (r *Registry) IsCash(code string) bool {
	_, ok := r.cash[code]
	return ok
}
