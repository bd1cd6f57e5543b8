package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"upagg/internal/aggregation/metrics"
	"upagg/internal/aggregation/models"
)

type runOptions struct {
	dataset string
	output  string
	compact bool
}

func newRunCmd(policyFile *string) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one aggregation and publish the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := openBackend(ctx, *policyFile, opts.dataset)
			if err != nil {
				return err
			}
			defer b.Close()

			svc, err := b.service(metrics.NewWithRegistry(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			report, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), opts, report)
		},
	}

	cmd.Flags().StringVar(&opts.dataset, "dataset", "", "Dataset YAML to read instead of postgres")
	cmd.Flags().StringVar(&opts.output, "output", "", "Write results as JSON to this file (default: stdout)")
	cmd.Flags().BoolVar(&opts.compact, "compact", false, "Write the compact projection")
	return cmd
}

func writeReport(stdout io.Writer, opts runOptions, report *models.Report) error {
	w := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	var rows any = report.Results
	if opts.compact {
		rows = models.CompactAll(report.Results)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*models.Report
		Results any `json:"results"`
	}{Report: report, Results: rows})
}
