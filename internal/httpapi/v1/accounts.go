package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"github.com/tinoosan/bookkeeping/internal/ledger"
)

// listAccounts handles GET /v1/accounts
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.chart.List()
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, s.toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

// getAccount handles GET /v1/accounts/{code}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.chart.Lookup(chi.URLParam(r, "code"))
	if err != nil {
		notFound(w)
		return
	}
	toJSON(w, http.StatusOK, s.toAccountResponse(a))
}

func (s *Server) toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		Code:           a.Code,
		Title:          a.Title,
		Classification: a.Classification,
		NormalSide:     a.NormalSide,
		Cash:           s.chart.IsCash(a.Code),
	}
}
