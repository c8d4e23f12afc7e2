package v1

import (
	"errors"
	"net/http"

	chi "github.com/go-chi/chi/v5"

	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/export"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
)

// postEntry handles POST /v1/journal. A new entry answers 201; an equivalent
// entry that was already committed answers 200 with duplicate=true.
func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := r.Context().Value(ctxKeyPostEntry).(journal.Proposal)
	if !ok {
		internalError(w, "validated request missing")
		return
	}
	res, err := s.journal.Post(r.Context(), p)
	if err != nil {
		if journal.IsValidation(err) {
			unprocessable(w, err)
			return
		}
		if errors.Is(err, errs.ErrConflict) {
			writeErr(w, http.StatusConflict, "entry id taken by another writer; retry", "conflict")
			return
		}
		s.log.Error("post entry failed", "err", err)
		internalError(w, "could not post entry")
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	toJSON(w, status, postEntryResponse{
		Entry:     toEntryResponse(res.Entry, s.chart.Title),
		Duplicate: res.Duplicate,
		Warning:   res.Warning,
	})
}

// listEntries handles GET /v1/journal
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.Entries(r.Context(), dateRangeFrom(r.Context()))
	if err != nil {
		internalError(w, "could not fetch entries")
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e, s.chart.Title))
	}
	toJSON(w, http.StatusOK, out)
}

// getEntry handles GET /v1/journal/{id}
func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.journal.Entry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrInvalid) {
			notFound(w)
			return
		}
		internalError(w, "could not fetch entry")
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e, s.chart.Title))
}

// exportJournal handles GET /v1/journal/export.csv
func (s *Server) exportJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.Entries(r.Context(), dateRangeFrom(r.Context()))
	if err != nil {
		internalError(w, "could not fetch entries")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="general_journal.csv"`)
	if err := export.WriteJournal(w, entries, s.chart.Title); err != nil {
		s.log.Error("journal export failed", "err", err)
	}
}
