package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tinoosan/bookkeeping/internal/errs"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/meta"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
)

type ctxKey string

const (
	ctxKeyPostEntry   ctxKey = "validatedPostEntry"
	ctxKeyDateRange   ctxKey = "validatedDateRange"
	ctxKeyLedgerQuery ctxKey = "validatedLedgerQuery"
)

// decodeJSON decodes a request body strictly, answering 415/400 itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// parseOptionalDate returns the zero time for a blank value.
func parseOptionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return ledger.ParseDate(raw)
}

// validatePostEntry decodes POST /v1/journal into a journal.Proposal and
// stores it in the request context. Posting rules are left to the engine.
func (s *Server) validatePostEntry() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postEntryRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			date, err := parseOptionalDate(req.Date)
			if err != nil {
				badRequest(w, "invalid date")
				return
			}
			md := meta.Normalize(req.Metadata)
			if err := md.Validate(); err != nil {
				badRequest(w, err.Error())
				return
			}
			p := journal.Proposal{
				Date:      date,
				Reference: req.Reference,
				Memo:      req.Memo,
				Source:    ledger.SourceManual,
				Metadata:  md,
				Lines:     make([]ledger.JournalLine, 0, len(req.Lines)),
			}
			for i, ln := range req.Lines {
				line := ledger.JournalLine{AccountCode: ln.AccountCode, Description: ln.Description}
				err := parseAmounts(s.curr, []amountField{
					{name: "debit", raw: ln.Debit, dst: &line.Debit},
					{name: "credit", raw: ln.Credit, dst: &line.Credit},
				})
				if err != nil {
					unprocessable(w, errs.Line(i, errs.ErrInvalidAmount, err.Error()))
					return
				}
				p.Lines = append(p.Lines, line)
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostEntry, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseRange(fromRaw, toRaw string) (ledger.DateRange, error) {
	var out ledger.DateRange
	if fromRaw != "" {
		t, err := ledger.ParseDate(fromRaw)
		if err != nil {
			return out, fmt.Errorf("invalid date %q", fromRaw)
		}
		out.From = &t
	}
	if toRaw != "" {
		t, err := ledger.ParseDate(toRaw)
		if err != nil {
			return out, fmt.Errorf("invalid date %q", toRaw)
		}
		out.To = &t
	}
	return out, nil
}

// validateRange parses an inclusive date range from the named query params.
func (s *Server) validateRange(fromParam, toParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			rng, err := parseRange(q.Get(fromParam), q.Get(toParam))
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyDateRange, rng)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateLedgerQuery parses GET /v1/ledger query params.
func (s *Server) validateLedgerQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			rng, err := parseRange(q.Get("dateFrom"), q.Get("dateTo"))
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			lq := ledgerQuery{Range: rng}
			for name, dst := range map[string]*bool{"summaryOnly": &lq.SummaryOnly, "includeEmpty": &lq.IncludeEmpty} {
				raw := q.Get(name)
				if raw == "" {
					continue
				}
				v, err := strconv.ParseBool(raw)
				if err != nil {
					badRequest(w, "invalid "+name)
					return
				}
				*dst = v
			}
			ctx := context.WithValue(r.Context(), ctxKeyLedgerQuery, lq)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func dateRangeFrom(ctx context.Context) ledger.DateRange {
	rng, _ := ctx.Value(ctxKeyDateRange).(ledger.DateRange)
	return rng
}
