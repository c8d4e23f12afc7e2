package v1

import (
	"net/http"

	"github.com/tinoosan/bookkeeping/internal/export"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/service/aggregator"
)

func (s *Server) aggregate(r *http.Request) ([]ledger.AccountSummary, error) {
	q, _ := r.Context().Value(ctxKeyLedgerQuery).(ledgerQuery)
	return s.ledger.Ledger(r.Context(), aggregator.Options{
		Range:        q.Range,
		SummaryOnly:  q.SummaryOnly,
		IncludeEmpty: q.IncludeEmpty,
	})
}

// getLedger handles GET /v1/ledger
func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	sums, err := s.aggregate(r)
	if err != nil {
		s.log.Error("ledger aggregation failed", "err", err)
		internalError(w, "could not build ledger")
		return
	}
	debit, credit, err := aggregator.TrialBalance(s.curr, sums)
	if err != nil {
		internalError(w, "could not total ledger")
		return
	}
	out := ledgerResponse{
		Accounts:    make([]accountSummaryResponse, 0, len(sums)),
		TotalDebit:  ledger.FormatAmount(debit),
		TotalCredit: ledger.FormatAmount(credit),
	}
	for _, sum := range sums {
		out.Accounts = append(out.Accounts, toSummaryResponse(sum))
	}
	toJSON(w, http.StatusOK, out)
}

// exportLedger handles GET /v1/ledger/export.csv
func (s *Server) exportLedger(w http.ResponseWriter, r *http.Request) {
	sums, err := s.aggregate(r)
	if err != nil {
		internalError(w, "could not build ledger")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="general_ledger.csv"`)
	if err := export.WriteLedger(w, sums); err != nil {
		s.log.Error("ledger export failed", "err", err)
	}
}
