package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"worldpanel/internal/geocode"
	"worldpanel/internal/pipeline"
	"worldpanel/internal/providers/comtrade"
)

var (
	buildDB        string
	buildOut       string
	buildFrom      int
	buildTo        int
	buildCountries []string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble trade shares, store trade values and write flow pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("db") {
			cfg.Output.DB = buildDB
		}
		if flags.Changed("out") {
			cfg.Output.FlowsDir = buildOut
		}
		if flags.Changed("from") {
			cfg.Trade.From = buildFrom
		}
		if flags.Changed("to") {
			cfg.Trade.To = buildTo
		}
		if flags.Changed("countries") {
			cfg.Trade.Countries = buildCountries
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := openStore(cfg.Output.DB)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		geocoder := geocode.NewClient(
			geocode.WithBaseURL(cfg.Geocode.BaseURL),
			geocode.WithUserAgent(cfg.Geocode.UserAgent),
			geocode.WithRateLimit(cfg.Geocode.RateLimitPerSec),
		)

		p := &pipeline.Publisher{Config: cfg, Store: st, Geocoder: geocoder}
		if cfg.Trade.Source == "comtrade" {
			source, err := comtrade.NewWithConfig(comtrade.Config{
				BaseURL:         cfg.Comtrade.BaseURL,
				APIKey:          cfg.Comtrade.APIKey,
				Reporters:       cfg.Comtrade.Reporters,
				RateLimitPerSec: cfg.Comtrade.RateLimitPerSec,
				Timeout:         cfg.Comtrade.Timeout(),
				MaxRetries:      cfg.Comtrade.MaxRetries,
			})
			if err != nil {
				return err
			}
			p.Source = source
		}
		start := time.Now()
		res, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}

		zap.L().Info("publisher build complete",
			zap.String("run_id", res.Run.ID),
			zap.Int("countries", len(res.Panel.Countries())),
			zap.Int("pages", len(res.Pages)),
			zap.String("shares_workbook", cfg.Output.SharesWorkbook),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildDB, "db", "", "sqlite database path (empty disables persistence)")
	buildCmd.Flags().StringVar(&buildOut, "out", "", "flow page output directory")
	buildCmd.Flags().IntVar(&buildFrom, "from", 0, "first trade year")
	buildCmd.Flags().IntVar(&buildTo, "to", 0, "last trade year")
	buildCmd.Flags().StringSliceVar(&buildCountries, "countries", nil, "comma-separated countries to draw flow pages for")
}
