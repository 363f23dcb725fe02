package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"worldpanel/internal/pipeline"
)

var (
	runDB   string
	runOut  string
	runFrom int
	runTo   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch, reconcile, backfill and impute the panel, then export it",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("db") {
			cfg.Output.DB = runDB
		}
		if flags.Changed("out") {
			cfg.Output.Workbook = runOut
		}
		if flags.Changed("from") {
			cfg.Years.From = runFrom
		}
		if flags.Changed("to") {
			cfg.Years.To = runTo
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := openStore(cfg.Output.DB)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c := &pipeline.Collector{Config: cfg, Store: st}
		res, err := c.Run(cmd.Context())
		if err != nil {
			return err
		}

		zap.L().Info("collector run complete",
			zap.String("run_id", res.Run.ID),
			zap.Int("countries", res.Panel.Len()),
			zap.Int("columns", len(res.Panel.Columns())),
			zap.Int("missing", res.Panel.Missing()),
			zap.Strings("exhausted", res.Imputation.Exhausted),
			zap.String("workbook", cfg.Output.Workbook),
		)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDB, "db", "", "sqlite database path (empty disables persistence)")
	runCmd.Flags().StringVar(&runOut, "out", "", "output workbook path")
	runCmd.Flags().IntVar(&runFrom, "from", 0, "oldest year bound (exclusive)")
	runCmd.Flags().IntVar(&runTo, "to", 0, "most recent year")
}
