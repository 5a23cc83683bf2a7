// =============================================================================
// NFS-e Tax Audit - Version Command
// =============================================================================
//
// COMMAND USAGE:
//   nfse-audit version
//
// OUTPUT:
//   NFS-e Tax Audit
//   Version:    1.0.0
//   Build Date: 2024-01-01
//   Rules:      2024.1
//   Go Version: go1.24.0
//
// =============================================================================

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
)

// =============================================================================
// VERSION INFORMATION
// =============================================================================
// These variables are set at build time using ldflags.
// Example build command:
//   go build -ldflags "-X 'github.com/ginjaninja78/nfse-tax-audit/cmd.Version=1.0.0'"

// Version is the application version.
var Version = "1.0.0"

// BuildDate is the date the application was built.
var BuildDate = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the application version",
	Long:  `Display the application version, build date, built-in rule table version and Go runtime version.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "NFS-e Tax Audit")
		fmt.Fprintf(out, "Version:    %s\n", Version)
		fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
		if rs, err := rules.Default(); err == nil {
			fmt.Fprintf(out, "Rules:      %s\n", rs.Version)
		}
		fmt.Fprintf(out, "Go Version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
