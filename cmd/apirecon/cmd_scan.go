package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/apirecon/apirecon/engine"
	"github.com/apirecon/apirecon/finding"
)

// scan command flag values.
var (
	scanOutput      string
	scanConfidence  string
	scanCatalog     string
	scanParallelism int
	scanVerbose     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Resolve every outbound HTTP call under a source directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanOutput, "json", "o", "", "write the full JSON report to this file")
	scanCmd.Flags().StringVarP(&scanConfidence, "confidence", "c", "", "minimum confidence tier to report (high, medium, low)")
	scanCmd.Flags().StringVar(&scanCatalog, "catalog", "", "override the built-in HTTP idiom catalog with a YAML file")
	scanCmd.Flags().IntVarP(&scanParallelism, "parallelism", "p", 0, "concurrent file workers (0 = number of CPUs)")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	minimum, err := parseConfidence(scanConfidence)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if scanVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	eng, err := engine.New(
		engine.WithLogger(logger),
		engine.WithParallelism(scanParallelism),
		engine.WithMinConfidence(minimum),
		engine.WithCatalogPath(scanCatalog),
	)
	if err != nil {
		return err
	}

	report, err := eng.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if scanOutput != "" {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if err := os.WriteFile(scanOutput, encoded, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", scanOutput, err)
		}
	}

	printSummary(cmd, report)
	return nil
}

func parseConfidence(raw string) (finding.Confidence, error) {
	switch raw {
	case "":
		return "", nil
	case string(finding.High), string(finding.Medium), string(finding.Low):
		return finding.Confidence(raw), nil
	}
	return "", fmt.Errorf("invalid confidence %q: expected high, medium or low", raw)
}

func printSummary(cmd *cobra.Command, report *finding.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d files (%d failed), %d candidate sites, %d unique calls\n",
		report.Summary.FilesScanned, report.Summary.FilesFailed,
		report.Summary.Candidates, report.Summary.UniqueCalls)
	for _, call := range report.Calls {
		marker := " "
		switch call.Confidence {
		case finding.High:
			marker = "H"
		case finding.Medium:
			marker = "M"
		case finding.Low:
			marker = "L"
		}
		fmt.Fprintf(out, "[%s] %-6s %s", marker, call.Method, call.URL)
		if len(call.Locations) > 1 {
			fmt.Fprintf(out, "  (%d sites)", len(call.Locations))
		}
		fmt.Fprintln(out)
	}
}
