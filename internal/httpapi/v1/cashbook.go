package v1

import (
	"net/http"

	"github.com/tinoosan/bookkeeping/internal/service/cashbook"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
)

// postReceipt handles POST /v1/cash-receipts. The record is always stored;
// its posting block says whether a journal entry came out of it.
func (s *Server) postReceipt(w http.ResponseWriter, r *http.Request) {
	var req postReceiptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		badRequest(w, "invalid date")
		return
	}
	in := cashbook.ReceiptInput{
		Date:         date,
		Reference:    req.Reference,
		Counterparty: req.Counterparty,
		Remarks:      req.Remarks,
	}
	if err := parseAmounts(s.curr, []amountField{
		{"cashDebit", req.CashDebit, &in.CashDebit},
		{"feesDebit", req.FeesDebit, &in.FeesDebit},
		{"returnsDebit", req.ReturnsDebit, &in.ReturnsDebit},
		{"netSalesCredit", req.NetSalesCredit, &in.NetSales},
		{"otherIncomeCredit", req.OtherIncomeCredit, &in.OtherIncome},
		{"receivableCredit", req.ReceivableCredit, &in.Receivable},
		{"capitalCredit", req.CapitalCredit, &in.Capital},
	}); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := s.cashbook.RecordReceipt(r.Context(), in)
	if err != nil {
		s.recordFailed(w, err)
		return
	}
	out := toReceiptResponse(res.Receipt)
	out.Warning = res.Warning
	toJSON(w, http.StatusCreated, out)
}

// listReceipts handles GET /v1/cash-receipts
func (s *Server) listReceipts(w http.ResponseWriter, r *http.Request) {
	recs, err := s.cashbook.Receipts(r.Context(), dateRangeFrom(r.Context()))
	if err != nil {
		internalError(w, "could not fetch receipts")
		return
	}
	out := make([]receiptResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toReceiptResponse(rec))
	}
	toJSON(w, http.StatusOK, out)
}

// postDisbursement handles POST /v1/cash-disbursements
func (s *Server) postDisbursement(w http.ResponseWriter, r *http.Request) {
	var req postDisbursementRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		badRequest(w, "invalid date")
		return
	}
	in := cashbook.DisbursementInput{
		Date:      date,
		Reference: req.Reference,
		Payee:     req.Payee,
		Remarks:   req.Remarks,
	}
	if err := parseAmounts(s.curr, []amountField{
		{"cashCredit", req.CashCredit, &in.CashCredit},
		{"materialsDebit", req.MaterialsDebit, &in.Materials},
		{"suppliesDebit", req.SuppliesDebit, &in.Supplies},
		{"rentDebit", req.RentDebit, &in.Rent},
		{"utilitiesDebit", req.UtilitiesDebit, &in.Utilities},
		{"advertisingDebit", req.AdvertisingDebit, &in.Advertising},
		{"deliveryDebit", req.DeliveryDebit, &in.Delivery},
		{"taxesDebit", req.TaxesDebit, &in.Taxes},
		{"miscDebit", req.MiscDebit, &in.Misc},
	}); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := s.cashbook.RecordDisbursement(r.Context(), in)
	if err != nil {
		s.recordFailed(w, err)
		return
	}
	out := toDisbursementResponse(res.Disbursement)
	out.Warning = res.Warning
	toJSON(w, http.StatusCreated, out)
}

// listDisbursements handles GET /v1/cash-disbursements
func (s *Server) listDisbursements(w http.ResponseWriter, r *http.Request) {
	recs, err := s.cashbook.Disbursements(r.Context(), dateRangeFrom(r.Context()))
	if err != nil {
		internalError(w, "could not fetch disbursements")
		return
	}
	out := make([]disbursementResponse, 0, len(recs))
	for _, d := range recs {
		out = append(out, toDisbursementResponse(d))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) recordFailed(w http.ResponseWriter, err error) {
	if journal.IsValidation(err) {
		unprocessable(w, err)
		return
	}
	s.log.Error("record cash book row failed", "err", err)
	internalError(w, "could not store record")
}
