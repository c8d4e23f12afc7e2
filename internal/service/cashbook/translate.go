package cashbook

import (
	"github.com/govalues/money"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// column maps one named amount column of a cash book to a journal line.
type column struct {
	label string
	code  string
	side  ledger.Side
	value money.Amount
}

func receiptColumns(r ledger.CashReceipt) []column {
	return []column{
		{"Cash received", coa.CashOnHand, ledger.SideDebit, r.CashDebit},
		{"Platform fees", coa.PlatformFees, ledger.SideDebit, r.FeesDebit},
		{"Sales returns", coa.SalesRevenue, ledger.SideDebit, r.ReturnsDebit},
		{"Net sales", coa.SalesRevenue, ledger.SideCredit, r.NetSales},
		{"Other income", coa.OtherIncome, ledger.SideCredit, r.OtherIncome},
		{"Collection of receivable", coa.AccountsReceivable, ledger.SideCredit, r.Receivable},
		{"Owner's capital", coa.OwnersCapital, ledger.SideCredit, r.Capital},
	}
}

func disbursementColumns(d ledger.CashDisbursement) []column {
	return []column{
		{"Materials / purchases", coa.Purchases, ledger.SideDebit, d.Materials},
		{"Supplies", coa.Supplies, ledger.SideDebit, d.Supplies},
		{"Rent", coa.Rent, ledger.SideDebit, d.Rent},
		{"Utilities", coa.Utilities, ledger.SideDebit, d.Utilities},
		{"Advertising", coa.Advertising, ledger.SideDebit, d.Advertising},
		{"Delivery", coa.Delivery, ledger.SideDebit, d.Delivery},
		{"Taxes & licenses", coa.TaxesLicenses, ledger.SideDebit, d.Taxes},
		{"Miscellaneous", coa.Miscellaneous, ledger.SideDebit, d.Misc},
		{"Cash paid", coa.CashOnHand, ledger.SideCredit, d.CashCredit},
	}
}

// toLines keeps the nonzero columns, in table order.
func toLines(curr string, cols []column) []ledger.JournalLine {
	out := make([]ledger.JournalLine, 0, len(cols))
	for _, c := range cols {
		if c.value.IsZero() {
			continue
		}
		ln := ledger.JournalLine{AccountCode: c.code, Description: c.label, Debit: ledger.Zero(curr), Credit: ledger.Zero(curr)}
		if c.side == ledger.SideDebit {
			ln.Debit = c.value
		} else {
			ln.Credit = c.value
		}
		out = append(out, ln)
	}
	return out
}
