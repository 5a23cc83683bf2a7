// =============================================================================
// NFS-e Tax Audit - Main Entry Point
// =============================================================================
//
// USAGE:
//   nfse-audit process [paths...]   - Normalize NFS-e XML files and archives
//   nfse-audit rules validate       - Check a rule table
//   nfse-audit serve                - Start the HTTP upload API
//   nfse-audit version              - Display the application version
//
// ARCHITECTURE:
//   - cmd/       : CLI command definitions (Cobra)
//   - internal/  : Flattening, field resolution, record assembly, I/O
//   - pkg/       : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/nfse-tax-audit/cmd"
)

func main() {
	cmd.Execute()
}
