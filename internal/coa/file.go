package coa

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinoosan/bookkeeping/internal/ledger"
)

type chartFile struct {
	Cash     []string       `yaml:"cash"`
	Accounts []chartAccount `yaml:"accounts"`
}

type chartAccount struct {
	Code           string `yaml:"code"`
	Title          string `yaml:"title"`
	Classification string `yaml:"classification"`
	Normal         string `yaml:"normal"`
}

// LoadFile reads a YAML chart of accounts. When the file lists no cash
// accounts, 101 and 102 are used if present.
//
//	cash: ["101"]
//	accounts:
//	  - {code: "101", title: Cash on Hand, classification: asset}
func LoadFile(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chart of accounts: %w", err)
	}
	return Parse(b)
}

// Parse builds a registry from YAML bytes (see LoadFile).
func Parse(b []byte) (*Registry, error) {
	var f chartFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parsing chart of accounts: %w", err)
	}
	if len(f.Accounts) == 0 {
		return nil, fmt.Errorf("chart of accounts is empty")
	}
	accounts := make([]ledger.Account, 0, len(f.Accounts))
	present := make(map[string]bool, len(f.Accounts))
	for _, a := range f.Accounts {
		accounts = append(accounts, ledger.Account{
			Code:           a.Code,
			Title:          a.Title,
			Classification: ledger.Classification(a.Classification),
			NormalSide:     ledger.Side(a.Normal),
		})
		present[a.Code] = true
	}
	cash := f.Cash
	if len(cash) == 0 {
		for _, c := range []string{CashOnHand, CashInBank} {
			if present[c] {
				cash = append(cash, c)
			}
		}
	}
	return New(accounts, cash...)
}
