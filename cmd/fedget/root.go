package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/mirrorkit/fedget/internal/argbundle"
	"github.com/mirrorkit/fedget/internal/config"
	"github.com/mirrorkit/fedget/internal/dispatch"
	"github.com/mirrorkit/fedget/internal/dumptsv"
	"github.com/mirrorkit/fedget/internal/httpmirror"
	"github.com/mirrorkit/fedget/internal/mockworker"
	"github.com/mirrorkit/fedget/internal/streams"
)

// version is set at build time via ldflags.
var version = "dev"

// Flags bound in newRootCmd/newFetchCmd.
var (
	flagQuiet      bool
	flagDebug      bool
	flagManifest   string
	flagMock       bool
	flagDumpTSVDir string
)

// newRootCmd builds the fedget command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fedget",
		Short:         "Fetch resources from a federated pool of mirrors",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress per-request log lines")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	cmd.AddCommand(newFetchCmd())

	return cmd
}

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Dispatch the manifest's resources across its mirrors",
		RunE:  runFetch,
	}

	cmd.Flags().StringVar(&flagManifest, "manifest", "", "path to the manifest TOML file (required)")
	cmd.Flags().BoolVar(&flagMock, "mock", false, "use mockworker instead of real mirrors (demo/test)")
	cmd.Flags().StringVar(&flagDumpTSVDir, "dump-tsv-dir", "", "if set, write results.tsv/failures.tsv to this directory")

	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runFetch(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	manifest, err := config.Load(flagManifest, logger)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	var bundles []streams.Bundle
	for _, resource := range manifest.Resource {
		bundles = append(bundles, argbundle.Expand(resource)...)
	}

	workers := buildWorkers(manifest, logger)

	d := dispatch.NewDispatcher(logger, workers, dispatch.Config{
		MaxRetries: manifest.Retry.MaxRetries,
		Quiet:      flagQuiet,
		HistoryLen: manifest.Retry.HistoryLen,
		Mode:       dispatch.ModeProduction,
	})

	results, failures, summary, err := d.Run(cmd.Context(), bundles)
	if err != nil {
		return fmt.Errorf("dispatch run failed: %w", err)
	}

	reportSummary(summary, results, failures)

	if flagDumpTSVDir != "" {
		if err := dumpTSV(flagDumpTSVDir, results, failures); err != nil {
			return err
		}
	}

	return nil
}

func buildWorkers(manifest *config.Manifest, logger *slog.Logger) []dispatch.Worker {
	workers := make([]dispatch.Worker, 0, len(manifest.Mirror))

	if flagMock {
		schedule := mockworker.NewSchedule()

		for i := range manifest.Mirror {
			workers = append(workers, mockworker.New(i, uint64(i+1), schedule, logger, flagQuiet))
		}

		return workers
	}

	for _, mir := range manifest.Mirror {
		workers = append(workers, httpmirror.NewFromDescriptor(mir, logger, flagQuiet))
	}

	return workers
}

func dumpTSV(dir string, results, failures []streams.Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	resultsFile, err := os.Create(dir + "/results.tsv")
	if err != nil {
		return fmt.Errorf("creating results.tsv: %w", err)
	}
	defer resultsFile.Close()

	if err := dumptsv.WriteResults(resultsFile, results); err != nil {
		return fmt.Errorf("writing results.tsv: %w", err)
	}

	failuresFile, err := os.Create(dir + "/failures.tsv")
	if err != nil {
		return fmt.Errorf("creating failures.tsv: %w", err)
	}
	defer failuresFile.Close()

	if err := dumptsv.WriteFailures(failuresFile, failures); err != nil {
		return fmt.Errorf("writing failures.tsv: %w", err)
	}

	return nil
}

// reportSummary prints a one-line machine-readable summary when stdout is
// redirected, or an aligned human-readable table when it's an interactive
// terminal — the same terminal-capability branch the teacher's CLI makes
// before choosing a renderer.
func reportSummary(summary dispatch.RunSummary, results, failures []streams.Entry) {
	if flagQuiet {
		return
	}

	var totalBytes float64
	for _, r := range results {
		if b, ok := r["bytes"].(float64); ok {
			totalBytes += b
		}
	}

	if isatty.IsTerminal(os.Stdout.Fd()) {
		printTable(os.Stdout,
			[]string{"run_id", "jobs_in", "finished", "failed", "bytes"},
			[][]string{{summary.RunID, itoa(summary.JobsIn), itoa(len(results)), itoa(len(failures)), formatSize(totalBytes)}},
		)

		return
	}

	fmt.Printf("run_id=%s jobs_in=%d finished=%d failed=%d bytes=%.0f\n",
		summary.RunID, summary.JobsIn, len(results), len(failures), totalBytes)
}

func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
