// Package v1 wires the HTTP surface of the bookkeeping service.
// Handlers stay thin and delegate posting rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/bookkeeping/internal/coa"
	"github.com/tinoosan/bookkeeping/internal/service/aggregator"
	"github.com/tinoosan/bookkeeping/internal/service/cashbook"
	"github.com/tinoosan/bookkeeping/internal/service/journal"
)

// Deps are the services the HTTP layer delegates to. Sync and Ready may be nil.
type Deps struct {
	Chart    *coa.Registry
	Journal  journal.Service
	Cashbook *cashbook.Service
	Ledger   *aggregator.Service
	Sync     Resyncer
	Ready    ReadyChecker
	Currency string
	Logger   *slog.Logger
}

// Server wires handlers and middleware using Chi.
type Server struct {
	chart    *coa.Registry
	journal  journal.Service
	cashbook *cashbook.Service
	ledger   *aggregator.Service
	sync     Resyncer
	ready    ReadyChecker
	curr     string
	log      *slog.Logger
	rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Currency == "" {
		d.Currency = journal.DefaultCurrency
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(d.Logger))
	r.Use(recoverer(d.Logger))
	r.Use(metricsMiddleware)

	s := &Server{
		chart:    d.Chart,
		journal:  d.Journal,
		cashbook: d.Cashbook,
		ledger:   d.Ledger,
		sync:     d.Sync,
		ready:    d.Ready,
		curr:     d.Currency,
		log:      d.Logger,
		rt:       r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Chart of accounts
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Get("/v1/accounts/{code}", s.getAccount)
	// Journal
	s.rt.With(s.validatePostEntry()).Post("/v1/journal", s.postEntry)
	s.rt.With(s.validateRange("from", "to")).Get("/v1/journal", s.listEntries)
	s.rt.With(s.validateRange("from", "to")).Get("/v1/journal/export.csv", s.exportJournal)
	s.rt.Get("/v1/journal/{id}", s.getEntry)
	// Cash books
	s.rt.Post("/v1/cash-receipts", s.postReceipt)
	s.rt.With(s.validateRange("from", "to")).Get("/v1/cash-receipts", s.listReceipts)
	s.rt.Post("/v1/cash-disbursements", s.postDisbursement)
	s.rt.With(s.validateRange("from", "to")).Get("/v1/cash-disbursements", s.listDisbursements)
	// Derived ledger
	s.rt.With(s.validateLedgerQuery()).Get("/v1/ledger", s.getLedger)
	s.rt.With(s.validateLedgerQuery()).Get("/v1/ledger/export.csv", s.exportLedger)
	// Admin
	s.rt.Post("/v1/admin/resync", s.resync)
	s.rt.Get("/v1/admin/pending", s.pending)
	// Health (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
