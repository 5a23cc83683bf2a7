// =============================================================================
// NFS-e Tax Audit - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (nfse-audit)
//   ├── processCmd  (nfse-audit process [paths...])
//   ├── rulesCmd    (nfse-audit rules validate|dump)
//   ├── serveCmd    (nfse-audit serve)
//   └── versionCmd  (nfse-audit version)
//
// CONFIGURATION:
//   Before any subcommand runs, the root command:
//   1. Loads the main configuration (file, then NFSE_* environment)
//   2. Builds the root logger and stores it in the command context
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfse-tax-audit/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// mainConfig is loaded before any subcommand runs.
var mainConfig *config.MainConfig

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nfse-audit",
	Short: "NFS-e Tax Audit - Normalize municipal service invoices into one audit table",
	Long: `nfse-audit reads NFS-e XML documents issued under the national standard
and under municipal layouts (ABRASF, São Paulo and others), alone or inside
ZIP archives, and normalizes them into a single table for fiscal audit.

Every document becomes one row with the same columns: invoice number and
date, supplier and client CNPJ and name, gross and net values, ISS and
withheld PIS/COFINS/CSLL/IRRF amounts, the service description, and a flag
when gross and net values diverge.

Example Usage:
  nfse-audit process                       # Process everything in the input directory
  nfse-audit process notas/ lote.zip       # Process explicit files and directories
  nfse-audit process --format csv          # Write CSV instead of XLSX
  nfse-audit rules validate regras.yaml    # Check a custom rule table
  nfse-audit serve                         # Start the HTTP upload API`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the CLI. It is called by main.main(). SIGINT and SIGTERM
// cancel the command context so a running batch stops between documents.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.DefaultConfigFile,
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

// initConfig loads the main configuration and attaches the logger to the
// command context. A missing config file is only an error when --config was
// given explicitly.
func initConfig(cmd *cobra.Command) error {
	cfg, err := config.LoadMainConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	mainConfig = cfg

	logger, err := config.NewLogger(cfg, verbose, os.Stderr)
	if err != nil {
		return err
	}
	cmd.SetContext(logger.WithContext(cmd.Context()))
	return nil
}

// loggerFrom returns the logger attached by initConfig.
func loggerFrom(cmd *cobra.Command) *zerolog.Logger {
	return zerolog.Ctx(cmd.Context())
}
