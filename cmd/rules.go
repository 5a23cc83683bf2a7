// =============================================================================
// NFS-e Tax Audit - Rules Command
// =============================================================================
//
// COMMAND USAGE:
//   nfse-audit rules validate [file]         Check a rule table, list every problem
//   nfse-audit rules dump                    Print the active table as YAML
//   nfse-audit rules dump --template t.xlsx  Write the active table as an XLSX template
//
// Without a file, the table named by rules_file is used, or the built-in one.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
)

var templatePath string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate field resolution rule tables",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a rule table without processing anything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := mainConfig.RulesFile
		if len(args) == 1 {
			path = args[0]
		}
		rs, err := rules.Load(path)
		if err != nil {
			for _, e := range problems(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %v\n", e)
			}
			return fmt.Errorf("rule table is invalid")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rule table %s is valid (%d fields)\n", rs.Version, len(rs.Fields))
		return nil
	},
}

var rulesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the active rule table as YAML, or write it as an XLSX template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRules(rulesPath)
		if err != nil {
			return err
		}
		if templatePath != "" {
			if err := rules.WriteTemplate(rs, templatePath); err != nil {
				return err
			}
			loggerFrom(cmd).Info().Str("template", templatePath).Msg("rule template written")
			return nil
		}
		return rs.Dump(cmd.OutOrStdout())
	},
}

// problems splits a rule loading error into the individual validation
// failures it carries, looking through any wrapping.
func problems(err error) []error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errs := multierr.Errors(e); len(errs) > 1 {
			return errs
		}
	}
	return []error{err}
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesDumpCmd)

	rulesDumpCmd.Flags().StringVar(&rulesPath, "rules", "", "Rule table to dump; empty uses the configured or built-in table")
	rulesDumpCmd.Flags().StringVar(&templatePath, "template", "", "Write an XLSX rule template to this path instead of YAML")
}
