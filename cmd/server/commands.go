package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/lending-engine/api"
	"github.com/warp/lending-engine/backoffice"
	"github.com/warp/lending-engine/config"
	"github.com/warp/lending-engine/export"
	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/store/postgres"
	"github.com/warp/lending-engine/store/sqlite"
)

func newMigrateCmd(load func() (*config.Config, error)) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log := config.NewLogger(cfg.Log, os.Stderr)

			switch cfg.Database.Driver {
			case "postgres":
				if down {
					err = postgres.MigrateDown(cfg.Database.URL)
				} else {
					err = postgres.Migrate(cfg.Database.URL)
				}
			case "sqlite":
				if down {
					return fmt.Errorf("--down is only supported for postgres")
				}
				var st *sqlite.Store
				if st, err = sqlite.New(cfg.Database.Path); err != nil {
					return err
				}
				defer st.Close()
				err = st.Migrate(cmd.Context())
			default:
				return fmt.Errorf("nothing to migrate for driver %q", cfg.Database.Driver)
			}
			if err != nil {
				return err
			}
			log.Info().Str("driver", cfg.Database.Driver).Bool("down", down).Msg("migration complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll every migration back (postgres)")
	return cmd
}

func newScheduleCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		principal string
		count     int
		rate      string
		start     string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Print a repayment schedule without saving it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			interest, _, err := cfg.Lending.Rates()
			if err != nil {
				return err
			}
			svc := backoffice.NewService(nil, backoffice.WithProduct(backoffice.Product{
				DefaultInterestRate: interest,
				InstallmentCounts:   cfg.Lending.InstallmentCounts,
				Currency:            cfg.Lending.CurrencySymbol,
			}))

			amount, err := lending.ParseMoney(principal)
			if err != nil {
				return fmt.Errorf("--principal: %w", err)
			}
			in := backoffice.LoanInput{Principal: amount, InstallmentCount: count}
			if rate != "" {
				r, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("--rate: %w", err)
				}
				in.InterestRate = &r
			}
			if start != "" {
				if in.StartDate, err = lending.ParseDate(start); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
			}

			terms, schedule, err := svc.PreviewSchedule(in)
			if err != nil {
				return err
			}
			doc := export.Schedule{
				Client:       lending.Client{FirstName: "Preview"},
				Loan:         lending.Loan{Principal: terms.Principal, InterestRate: terms.InterestRate, InstallmentCount: terms.InstallmentCount, TotalAmount: terms.TotalAmount(), StartDate: terms.StartDate},
				Installments: schedule,
				Currency:     cfg.Lending.CurrencySymbol,
			}
			out := cmd.OutOrStdout()
			switch format {
			case "text":
				return export.WriteText(out, doc)
			case "csv":
				return export.WriteCSV(out, doc)
			}
			return fmt.Errorf("--format must be text or csv")
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "loan principal, e.g. 5000")
	cmd.Flags().IntVar(&count, "count", 12, "number of installments")
	cmd.Flags().StringVar(&rate, "rate", "", "flat interest rate as a fraction (default lending.default_interest_rate)")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or csv")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func newSeedCmd(load func() (*config.Config, error)) *cobra.Command {
	var opts api.SampleOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Add fake clients, loans and payments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver == "memory" {
				return fmt.Errorf("seeding the memory store has no effect; use serve --seed")
			}
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := api.LoadSampleData(cmd.Context(), a.service, opts)
			if err != nil {
				return err
			}
			a.log.Info().Int("clients", res.Clients).Int("loans", res.Loans).Int("payments", res.Payments).Msg("sample data loaded")
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Clients, "clients", 10, "number of sample clients")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 = random)")
	return cmd
}
