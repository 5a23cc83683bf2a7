// =============================================================================
// NFS-e Tax Audit - Process Command
// =============================================================================
//
// This file defines the 'process' command, which runs the whole audit
// pipeline over local files.
//
// COMMAND USAGE:
//   nfse-audit process [paths...] [flags]
//
// FLAGS:
//   --output   : Output file path (default: output_dir + output_name)
//   --format   : xlsx, csv, xml or json (default: output_format, or the
//                extension of --output)
//   --rules    : YAML or XLSX rule table (default: rules_file, or built-in)
//   --label    : Free text placed in the output name via {label}
//   --dry-run  : Normalize and report without writing anything
//
// PROCESSING PIPELINE:
//   1. Load the rule table
//   2. Collect documents from the paths (default: input_dir), unpacking ZIPs
//   3. Normalize every document into one record
//   4. Write the table and a summary log to the output directory
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ginjaninja78/nfse-tax-audit/internal/converter"
	"github.com/ginjaninja78/nfse-tax-audit/internal/export"
	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
	"github.com/ginjaninja78/nfse-tax-audit/internal/source"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
	"github.com/ginjaninja78/nfse-tax-audit/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	outputPath   string
	outputFormat string
	rulesPath    string
	runLabel     string
	dryRun       bool
)

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process [paths...]",
	Short: "Normalize NFS-e XML files and ZIP archives into one audit table",
	Long: `The process command collects NFS-e XML documents from the given files and
directories (default: the configured input directory), unpacking ZIP archives
and archives nested inside them, and writes one normalized row per document.

Documents that cannot be parsed, and archives that cannot be opened, are
skipped and listed in the summary log; the rest of the batch goes on.`,

	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path")
	processCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Output format: xlsx, csv, xml or json")
	processCmd.Flags().StringVar(&rulesPath, "rules", "", "Rule table (YAML or XLSX); empty uses the configured or built-in table")
	processCmd.Flags().StringVar(&runLabel, "label", "", "Label placed in the output file name")
	processCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Normalize and report without writing output files")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFrom(cmd)
	start := time.Now()

	rs, err := loadRules(rulesPath)
	if err != nil {
		return err
	}

	format, err := resolveFormat(outputFormat, outputPath)
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{mainConfig.InputDir}
	}

	collector, err := source.New(source.Options{
		MaxDepth:    mainConfig.MaxArchiveDepth,
		ZipCodePage: mainConfig.ZipCodePage,
	})
	if err != nil {
		return err
	}
	res, err := collector.FromPaths(ctx, paths)
	if err != nil {
		return err
	}
	logger.Info().
		Strs("paths", paths).
		Int("documents", len(res.Documents)).
		Int("skipped", len(res.Skipped)).
		Msg("inputs collected")

	conv, err := converter.New(rs,
		converter.WithWorkers(mainConfig.MaxConcurrency),
		converter.WithDecimalComma(mainConfig.DecimalComma),
	)
	if err != nil {
		return err
	}
	table, err := conv.Aggregate(ctx, res.Documents)
	if err != nil {
		return fmt.Errorf("processing interrupted: %w", err)
	}
	table.PrependSkipped(res.Skipped)

	fmt.Fprintf(cmd.OutOrStdout(), "%d processed / %d skipped\n", table.Processed(), table.SkippedCount())

	if dryRun {
		logger.Info().Msg("dry run, nothing written")
		return nil
	}

	fm := utils.NewFileManager(mainConfig.InputDir, mainConfig.OutputDir)
	target := outputPath
	if target == "" {
		if err := fm.EnsureOutputDir(); err != nil {
			return err
		}
		target = fm.OutputPath(utils.GenerateOutputFileName(mainConfig.OutputName, runLabel, format.Ext(), start))
	} else if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	if err := writeTable(target, format, &table, mainConfig.ExportOptions()); err != nil {
		return err
	}
	logger.Info().Str("output", target).Str("format", string(format)).Msg("table written")

	summary := utils.NewProcessingSummary(start, time.Now(), paths, target, &table)
	summaryPath, err := utils.WriteSummaryLog(summary, filepath.Dir(target))
	if err != nil {
		return err
	}
	logger.Info().Str("summary", summaryPath).Msg("summary written")

	fmt.Fprintf(cmd.OutOrStdout(), "Output:  %s\nSummary: %s\n", target, summaryPath)
	return nil
}

// loadRules picks the rule table: flag, then configuration, then built-in.
func loadRules(path string) (*rules.RuleSet, error) {
	if path == "" {
		path = mainConfig.RulesFile
	}
	rs, err := rules.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule table: %w", err)
	}
	return rs, nil
}

// resolveFormat picks the format: flag, then the --output extension, then
// configuration.
func resolveFormat(flag, output string) (export.Format, error) {
	if flag != "" {
		return export.ParseFormat(flag)
	}
	if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext != "" {
		if f, err := export.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return mainConfig.Format(), nil
}

func writeTable(path string, format export.Format, t *types.Table, opts export.Options) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if err := export.Write(f, format, t, opts); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
