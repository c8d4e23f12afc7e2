package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinoosan/bookkeeping/internal/export"
	"github.com/tinoosan/bookkeeping/internal/ledger"
	"github.com/tinoosan/bookkeeping/internal/service/aggregator"
	pgstore "github.com/tinoosan/bookkeeping/internal/storage/postgres"
)

func newExportCommand(envFile *string) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:       "export journal|ledger",
		Short:     "Write the journal or the derived ledger from the external store as CSV",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"journal", "ledger"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(*envFile)
			if err != nil {
				return err
			}
			if !cfg.UsesExternalStore() {
				return errors.New("DATABASE_URL is required")
			}
			rng, err := parseRange(from, to)
			if err != nil {
				return err
			}
			chart, err := loadChart(cfg)
			if err != nil {
				return err
			}
			pg, err := pgstore.Open(cmd.Context(), cfg.DatabaseURL, cfg.BookCurrency)
			if err != nil {
				return fmt.Errorf("connecting to postgres: %w", err)
			}
			defer pg.Close()

			rows, err := pg.ReadAllJournalLines(cmd.Context(), rng)
			if err != nil {
				return fmt.Errorf("reading journal: %w", err)
			}
			entries := ledger.GroupLines(rows)
			out := cmd.OutOrStdout()
			if args[0] == "journal" {
				return export.WriteJournal(out, entries, chart.Title)
			}
			sums, err := aggregator.Aggregate(chart, cfg.BookCurrency, entries, aggregator.Options{Range: rng})
			if err != nil {
				return err
			}
			return export.WriteLedger(out, sums)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date to include (YYYY-MM-DD)")
	return cmd
}

func parseRange(from, to string) (ledger.DateRange, error) {
	var r ledger.DateRange
	if from != "" {
		t, err := ledger.ParseDate(from)
		if err != nil {
			return r, fmt.Errorf("invalid --from: %w", err)
		}
		r.From = &t
	}
	if to != "" {
		t, err := ledger.ParseDate(to)
		if err != nil {
			return r, fmt.Errorf("invalid --to: %w", err)
		}
		r.To = &t
	}
	return r, nil
}
