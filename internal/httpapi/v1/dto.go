package v1

import (
	"encoding/json"
	"time"

	"github.com/govalues/money"

	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// Amounts are accepted as JSON numbers or numeric strings and always returned
// as strings with the currency's scale, e.g. "150.00".

type postEntryRequest struct {
	Date      string            `json:"date"`
	Reference string            `json:"reference"`
	Memo      string            `json:"memo"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Lines     []postEntryLine   `json:"lines"`
}

type postEntryLine struct {
	AccountCode string      `json:"accountCode"`
	Description string      `json:"description"`
	Debit       json.Number `json:"debit"`
	Credit      json.Number `json:"credit"`
}

type entryResponse struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq"`
	Date      string            `json:"date"`
	Reference string            `json:"reference,omitempty"`
	Memo      string            `json:"memo,omitempty"`
	Source    ledger.Source     `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Lines     []lineResponse    `json:"lines"`
}

type lineResponse struct {
	AccountCode  string `json:"accountCode"`
	AccountTitle string `json:"accountTitle"`
	Description  string `json:"description,omitempty"`
	Debit        string `json:"debit"`
	Credit       string `json:"credit"`
}

type postEntryResponse struct {
	Entry     entryResponse `json:"entry"`
	Duplicate bool          `json:"duplicate"`
	Warning   string        `json:"warning,omitempty"`
}

type accountResponse struct {
	Code           string                `json:"code"`
	Title          string                `json:"title"`
	Classification ledger.Classification `json:"classification"`
	NormalSide     ledger.Side           `json:"normalSide"`
	Cash           bool                  `json:"cash"`
}

// Cash books

type postReceiptRequest struct {
	Date              string      `json:"date"`
	Reference         string      `json:"referenceNo"`
	Counterparty      string      `json:"counterparty"`
	CashDebit         json.Number `json:"cashDebit"`
	FeesDebit         json.Number `json:"feesDebit"`
	ReturnsDebit      json.Number `json:"returnsDebit"`
	NetSalesCredit    json.Number `json:"netSalesCredit"`
	OtherIncomeCredit json.Number `json:"otherIncomeCredit"`
	ReceivableCredit  json.Number `json:"receivableCredit"`
	CapitalCredit     json.Number `json:"capitalCredit"`
	Remarks           string      `json:"remarks"`
}

type postDisbursementRequest struct {
	Date             string      `json:"date"`
	Reference        string      `json:"referenceNo"`
	Payee            string      `json:"payee"`
	CashCredit       json.Number `json:"cashCredit"`
	MaterialsDebit   json.Number `json:"materialsDebit"`
	SuppliesDebit    json.Number `json:"suppliesDebit"`
	RentDebit        json.Number `json:"rentDebit"`
	UtilitiesDebit   json.Number `json:"utilitiesDebit"`
	AdvertisingDebit json.Number `json:"advertisingDebit"`
	DeliveryDebit    json.Number `json:"deliveryDebit"`
	TaxesDebit       json.Number `json:"taxesDebit"`
	MiscDebit        json.Number `json:"miscDebit"`
	Remarks          string      `json:"remarks"`
}

type postingResponse struct {
	Status    ledger.PostingStatus `json:"status"`
	EntryID   string               `json:"entryId,omitempty"`
	Reference string               `json:"reference,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

type receiptResponse struct {
	ID                string          `json:"id"`
	Seq               int64           `json:"seq"`
	Date              string          `json:"date"`
	Reference         string          `json:"referenceNo,omitempty"`
	Counterparty      string          `json:"counterparty,omitempty"`
	CashDebit         string          `json:"cashDebit"`
	FeesDebit         string          `json:"feesDebit"`
	ReturnsDebit      string          `json:"returnsDebit"`
	NetSalesCredit    string          `json:"netSalesCredit"`
	OtherIncomeCredit string          `json:"otherIncomeCredit"`
	ReceivableCredit  string          `json:"receivableCredit"`
	CapitalCredit     string          `json:"capitalCredit"`
	Remarks           string          `json:"remarks,omitempty"`
	Posting           postingResponse `json:"posting"`
	Warning           string          `json:"warning,omitempty"`
}

type disbursementResponse struct {
	ID               string          `json:"id"`
	Seq              int64           `json:"seq"`
	Date             string          `json:"date"`
	Reference        string          `json:"referenceNo,omitempty"`
	Payee            string          `json:"payee,omitempty"`
	CashCredit       string          `json:"cashCredit"`
	MaterialsDebit   string          `json:"materialsDebit"`
	SuppliesDebit    string          `json:"suppliesDebit"`
	RentDebit        string          `json:"rentDebit"`
	UtilitiesDebit   string          `json:"utilitiesDebit"`
	AdvertisingDebit string          `json:"advertisingDebit"`
	DeliveryDebit    string          `json:"deliveryDebit"`
	TaxesDebit       string          `json:"taxesDebit"`
	MiscDebit        string          `json:"miscDebit"`
	Remarks          string          `json:"remarks,omitempty"`
	Posting          postingResponse `json:"posting"`
	Warning          string          `json:"warning,omitempty"`
}

// Ledger

type ledgerQuery struct {
	Range        ledger.DateRange
	SummaryOnly  bool
	IncludeEmpty bool
}

type ledgerLineResponse struct {
	EntryID        string `json:"entryId"`
	Date           string `json:"date"`
	Reference      string `json:"reference,omitempty"`
	Description    string `json:"description,omitempty"`
	Debit          string `json:"debit"`
	Credit         string `json:"credit"`
	RunningBalance string `json:"runningBalance"`
}

type accountSummaryResponse struct {
	Code           string               `json:"accountCode"`
	Title          string               `json:"accountTitle"`
	NormalSide     ledger.Side          `json:"normalSide"`
	TotalDebit     string               `json:"totalDebit"`
	TotalCredit    string               `json:"totalCredit"`
	ClosingBalance string               `json:"closingBalance"`
	Entries        []ledgerLineResponse `json:"entries,omitempty"`
}

type ledgerResponse struct {
	Accounts    []accountSummaryResponse `json:"accounts"`
	TotalDebit  string                   `json:"totalDebit"`
	TotalCredit string                   `json:"totalCredit"`
}

// Admin

type pendingResponse struct {
	Entries       []string `json:"entries"`
	Receipts      []string `json:"receipts"`
	Disbursements []string `json:"disbursements"`
}

type resyncResponse struct {
	Pushed  pendingResponse `json:"pushed"`
	Pending pendingResponse `json:"pending"`
	Error   string          `json:"error,omitempty"`
}

func toEntryResponse(e ledger.JournalEntry, title func(string) string) entryResponse {
	lines := make([]lineResponse, 0, len(e.Lines))
	for _, ln := range e.Lines {
		lines = append(lines, lineResponse{
			AccountCode:  ln.AccountCode,
			AccountTitle: title(ln.AccountCode),
			Description:  ln.Description,
			Debit:        ledger.FormatAmount(ln.Debit),
			Credit:       ledger.FormatAmount(ln.Credit),
		})
	}
	return entryResponse{
		ID:        e.ID,
		Seq:       e.Seq,
		Date:      ledger.FormatDate(e.Date),
		Reference: e.Reference,
		Memo:      e.Memo,
		Source:    e.Source,
		Metadata:  e.Metadata,
		CreatedAt: e.CreatedAt,
		Lines:     lines,
	}
}

func toPostingResponse(p ledger.Posting) postingResponse {
	return postingResponse{Status: p.Status, EntryID: p.EntryID, Reference: p.Reference, Reason: p.Reason}
}

func toReceiptResponse(r ledger.CashReceipt) receiptResponse {
	return receiptResponse{
		ID:                r.ID.String(),
		Seq:               r.Seq,
		Date:              ledger.FormatDate(r.Date),
		Reference:         r.Reference,
		Counterparty:      r.Counterparty,
		CashDebit:         ledger.FormatAmount(r.CashDebit),
		FeesDebit:         ledger.FormatAmount(r.FeesDebit),
		ReturnsDebit:      ledger.FormatAmount(r.ReturnsDebit),
		NetSalesCredit:    ledger.FormatAmount(r.NetSales),
		OtherIncomeCredit: ledger.FormatAmount(r.OtherIncome),
		ReceivableCredit:  ledger.FormatAmount(r.Receivable),
		CapitalCredit:     ledger.FormatAmount(r.Capital),
		Remarks:           r.Remarks,
		Posting:           toPostingResponse(r.Posting),
	}
}

func toDisbursementResponse(d ledger.CashDisbursement) disbursementResponse {
	return disbursementResponse{
		ID:               d.ID.String(),
		Seq:              d.Seq,
		Date:             ledger.FormatDate(d.Date),
		Reference:        d.Reference,
		Payee:            d.Payee,
		CashCredit:       ledger.FormatAmount(d.CashCredit),
		MaterialsDebit:   ledger.FormatAmount(d.Materials),
		SuppliesDebit:    ledger.FormatAmount(d.Supplies),
		RentDebit:        ledger.FormatAmount(d.Rent),
		UtilitiesDebit:   ledger.FormatAmount(d.Utilities),
		AdvertisingDebit: ledger.FormatAmount(d.Advertising),
		DeliveryDebit:    ledger.FormatAmount(d.Delivery),
		TaxesDebit:       ledger.FormatAmount(d.Taxes),
		MiscDebit:        ledger.FormatAmount(d.Misc),
		Remarks:          d.Remarks,
		Posting:          toPostingResponse(d.Posting),
	}
}

func toSummaryResponse(s ledger.AccountSummary) accountSummaryResponse {
	out := accountSummaryResponse{
		Code:           s.Code,
		Title:          s.Title,
		NormalSide:     s.NormalSide,
		TotalDebit:     ledger.FormatAmount(s.TotalDebit),
		TotalCredit:    ledger.FormatAmount(s.TotalCredit),
		ClosingBalance: ledger.FormatAmount(s.ClosingBalance),
	}
	for _, ln := range s.Entries {
		out.Entries = append(out.Entries, ledgerLineResponse{
			EntryID:        ln.EntryID,
			Date:           ledger.FormatDate(ln.Date),
			Reference:      ln.Reference,
			Description:    ln.Description,
			Debit:          ledger.FormatAmount(ln.Debit),
			Credit:         ledger.FormatAmount(ln.Credit),
			RunningBalance: ledger.FormatAmount(ln.RunningBalance),
		})
	}
	return out
}

// amountField parses one optional amount of a request body in the book currency.
type amountField struct {
	name string
	raw  json.Number
	dst  *money.Amount
}

func parseAmounts(curr string, fields []amountField) error {
	for _, f := range fields {
		a, err := ledger.ParseAmount(curr, string(f.raw))
		if err != nil {
			return &fieldError{field: f.name, err: err}
		}
		*f.dst = a
	}
	return nil
}

type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return "invalid " + e.field + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }
