// Package app provides the entry point for the eln-mcp command-line
// application.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/benchnote/eln-mcp/pkg/logger"
	"github.com/benchnote/eln-mcp/pkg/sanitize"
	"github.com/benchnote/eln-mcp/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "eln-mcp",
	DisableAutoGenTag: true,
	Short:             "MCP server bridging AI clients to an Electronic Lab Notebook",
	Long: `eln-mcp exposes an Electronic Lab Notebook to MCP clients over stdio.

Notebooks, pages and entries appear as read-only MCP resources under the
eln:// URI scheme. Access can be restricted to a single notebook (by ID or
exact name) or to a folder subtree, and every access decision is written to
a structured audit stream.

The protocol runs on stdin/stdout; logs and audit records go to stderr or a
file, never to the protocol stream.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize(viper.GetBool("debug"))
		logger.Debugw("starting", "args", sanitize.Argv(os.Args))
	},
	RunE: runServe,
}

// NewRootCmd creates the root command for the eln-mcp CLI.
func NewRootCmd() *cobra.Command {
	flags := rootCmd.Flags()
	flags.String("auth-mode", "api_key", "Authentication mode: api_key or user_token")
	flags.String("access-key-id", "", "Access key identifier")
	flags.String("access-password", "", "Access password (HMAC secret) or SSO token")
	flags.String("username", "", "Username, required in user_token mode")
	flags.String("api-base-url", "", "Primary ELN API base URL")
	flags.StringSlice("backup-url", nil, "Backup regional API URL (repeatable)")
	flags.Duration("timeout", 30*time.Second, "Per-request upstream timeout")
	flags.Int("max-retries", 3, "Retry budget per upstream request")
	flags.String("notebook-id", "", "Restrict access to one notebook by ID")
	flags.String("notebook-name", "", "Restrict access to one notebook by exact name")
	flags.String("folder-path", "", "Restrict access to pages under a folder path")
	flags.String("audit-file", "", "Append audit records to this file instead of stderr")
	flags.Bool("audit-strict", false, "Terminate if a scope.violation audit record would be dropped")
	flags.Bool("json-ld", false, "Attach a JSON-LD context to read responses")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	for _, name := range []string{
		"auth-mode", "access-key-id", "access-password", "username",
		"api-base-url", "backup-url", "timeout", "max-retries",
		"notebook-id", "notebook-name", "folder-path",
		"audit-file", "audit-strict", "json-ld",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	viper.SetEnvPrefix("ELN_MCP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versions.GetVersionInfo().String())
		},
	}
}
