// =============================================================================
// NFS-e Tax Audit - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   nfse-audit serve [--addr :8080]
//
// ENDPOINTS:
//   POST /api/v1/audit?format=xlsx|csv|xml|json   multipart field "files"
//   GET  /api/v1/columns                          output column contract
//   GET  /healthz                                 liveness
//
// =============================================================================

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfse-tax-audit/internal/converter"
	"github.com/ginjaninja78/nfse-tax-audit/internal/server"
	"github.com/ginjaninja78/nfse-tax-audit/internal/source"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP upload API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().StringVar(&rulesPath, "rules", "", "Rule table (YAML or XLSX); empty uses the configured or built-in table")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := loggerFrom(cmd)

	rs, err := loadRules(rulesPath)
	if err != nil {
		return err
	}
	conv, err := converter.New(rs,
		converter.WithWorkers(mainConfig.MaxConcurrency),
		converter.WithDecimalComma(mainConfig.DecimalComma),
	)
	if err != nil {
		return err
	}
	collector, err := source.New(source.Options{
		MaxDepth:    mainConfig.MaxArchiveDepth,
		ZipCodePage: mainConfig.ZipCodePage,
	})
	if err != nil {
		return err
	}

	addr := listenAddr
	if addr == "" {
		addr = mainConfig.Server.Addr
	}

	logger.Info().
		Str("rules", rs.Version).
		Int("workers", mainConfig.MaxConcurrency).
		Int64("max_upload_mb", mainConfig.Server.MaxUploadMB).
		Msg("audit api configured")

	api := server.NewWebAPI(*logger, server.Config{
		Addr:            addr,
		ShutdownTimeout: mainConfig.Server.ShutdownTimeout,
		MaxUploadBytes:  mainConfig.Server.MaxUploadMB << 20,
		OutputName:      mainConfig.OutputName,
		Dependencies: server.Dependencies{
			Collector:  collector,
			Aggregator: conv,
			Export:     mainConfig.ExportOptions(),
		},
	})
	return api.Start(cmd.Context())
}
