package coa

import "github.com/tinoosan/bookkeeping/internal/ledger"

// Codes referenced by the cash journals' translation tables.
const (
	CashOnHand         = "101"
	CashInBank         = "102"
	AccountsReceivable = "103"
	OwnersCapital      = "301"
	SalesRevenue       = "401"
	OtherIncome        = "402"
	Purchases          = "501"
	Supplies           = "502"
	Rent               = "503"
	Utilities          = "504"
	Advertising        = "505"
	Delivery           = "506"
	TaxesLicenses      = "507"
	Miscellaneous      = "508"
	PlatformFees       = "510"
)

var builtin = []ledger.Account{
	{Code: "101", Title: "Cash on Hand", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "102", Title: "Cash in Bank", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "103", Title: "Accounts Receivable", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "104", Title: "Inventory (Merchandise)", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "105", Title: "Prepaid Expenses", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "106", Title: "Tools & Equipment", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "107", Title: "Store Fixtures & Furniture", Classification: ledger.ClassAsset, NormalSide: ledger.SideDebit},
	{Code: "108", Title: "Accumulated Depreciation", Classification: ledger.ClassContraAsset, NormalSide: ledger.SideCredit},

	{Code: "201", Title: "Accounts Payable", Classification: ledger.ClassLiability, NormalSide: ledger.SideCredit},
	{Code: "202", Title: "Loans Payable", Classification: ledger.ClassLiability, NormalSide: ledger.SideCredit},

	{Code: "301", Title: "Owner's Capital", Classification: ledger.ClassEquity, NormalSide: ledger.SideCredit},
	{Code: "302", Title: "Owner's Drawings", Classification: ledger.ClassEquity, NormalSide: ledger.SideDebit},

	{Code: "401", Title: "Sales Revenue", Classification: ledger.ClassRevenue, NormalSide: ledger.SideCredit},
	{Code: "402", Title: "Other Income", Classification: ledger.ClassRevenue, NormalSide: ledger.SideCredit},

	{Code: "501", Title: "Purchases (COGS)", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "502", Title: "Supplies Expense", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "503", Title: "Rent Expense", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "504", Title: "Utilities Expense", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "505", Title: "Advertising & Promotion", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "506", Title: "Transportation/Delivery", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "507", Title: "Taxes & Licenses", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "508", Title: "Miscellaneous Expense", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "509", Title: "Depreciation Expense", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
	{Code: "510", Title: "Platform Fees & Charges", Classification: ledger.ClassExpense, NormalSide: ledger.SideDebit},
}

// Default returns the built-in seller chart of accounts.
func Default() *Registry {
	r, err := New(builtin, CashOnHand, CashInBank)
	if err != nil {
		panic(err)
	}
	return r
}
