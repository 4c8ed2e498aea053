// Command diseasemap estimates regional relative risk of a disease from case
// counts and region boundaries, and writes choropleth maps of the result.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"diagonal.works/ksa-disease-mapping/internal/config"
	"diagonal.works/ksa-disease-mapping/internal/expected"
	"diagonal.works/ksa-disease-mapping/internal/logging"
	"diagonal.works/ksa-disease-mapping/internal/optional"
	"diagonal.works/ksa-disease-mapping/internal/region"
	"diagonal.works/ksa-disease-mapping/internal/report"
)

type options struct {
	configPath string
	engine     string
	threshold  float64
	outputDir  string
	logLevel   string
	graphOut   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "diseasemap",
		Short:         "Map regional disease risk with a spatial Poisson model",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Read(opts.configPath); err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			validate := cfg.ValidateInputs
			if cmd.Name() == "report" {
				validate = cfg.Validate
			}
			if err := validate(); err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $"+config.PathEnvVar+" or ./diseasemap.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Fit the model and write the tables, neighbour graph and maps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := report.Run(cmd.Context(), cfg, report.Deps{})
			if err != nil {
				return err
			}
			for _, f := range result.Files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	reportCmd.Flags().StringVar(&opts.engine, "engine", "", "override model.engine (inla or local-eb)")
	reportCmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "override model.threshold")
	reportCmd.Flags().StringVarP(&opts.outputDir, "out", "o", "", "override output.dir")

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Write the neighbour graph in INLA format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := report.LoadRegistry(cmd.Context(), cfg, report.Deps{})
			if err != nil {
				return err
			}
			graph, err := report.BuildGraph(cfg, registry)
			if err != nil {
				return err
			}
			if opts.graphOut != "" {
				return graph.WriteFile(opts.graphOut)
			}
			_, err = graph.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	graphCmd.Flags().StringVarP(&opts.graphOut, "out", "o", "", "output file, stdout when empty")

	expectedCmd := &cobra.Command{
		Use:   "expected",
		Short: "Print expected counts and standardised morbidity ratios as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := report.LoadRegistry(cmd.Context(), cfg, report.Deps{})
			if err != nil {
				return err
			}
			table, _, err := report.LoadTable(cfg, registry)
			if err != nil {
				return err
			}
			result, err := report.EstimateExpected(cfg, table)
			if err != nil {
				return err
			}
			return writeExpected(cmd.OutOrStdout(), table.Entries, result.Expected, expected.SMR(table.Observed(), result.Expected))
		},
	}

	root.AddCommand(reportCmd, graphCmd, expectedCmd)
	return root
}

// apply copies flags given on the command line over the loaded configuration.
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) {
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	flags := cmd.Flags()
	if flags.Lookup("engine") != nil && flags.Changed("engine") {
		cfg.Model.Engine = o.engine
	}
	if flags.Lookup("threshold") != nil && flags.Changed("threshold") {
		cfg.Model.Threshold = o.threshold
	}
	if flags.Lookup("out") != nil && flags.Changed("out") && cmd.Name() == "report" {
		cfg.Output.Dir = o.outputDir
	}
}

func writeExpected(w io.Writer, entries []region.Entry, e, smr []optional.Float) error {
	c := csv.NewWriter(w)
	if err := c.Write([]string{"code", "name", "observed", "expected", "smr"}); err != nil {
		return err
	}
	for i, entry := range entries {
		record := []string{
			string(entry.Region.Code),
			entry.Region.Name,
			optional.FormatInt(entry.Observed),
			optional.FormatFloat(e[i], 4),
			optional.FormatFloat(smr[i], 4),
		}
		if err := c.Write(record); err != nil {
			return err
		}
	}
	c.Flush()
	return c.Error()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.Error().Err(err).Msg("diseasemap failed")
		stop()
		os.Exit(1)
	}
}
