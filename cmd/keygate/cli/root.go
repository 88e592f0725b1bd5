package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	envFile    string
	dataDir    string
	devMode    bool
	appVersion string // set in Execute, reported by serve and the OpenAPI document
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	appVersion = version
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygate",
		Short: "API-key gateway for the CRM external API",
		Long: `keygate issues and verifies API keys for the CRM's external REST API.

It authenticates every external request by key, enforces a per-key hourly
quota, checks wildcard permissions per resource, and records usage off the
request path. Key management is available over HTTP to CRM users and from
this CLI to operators.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./keygate.yaml or ~/.keygate/keygate.yaml)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the SQLite store (default: ~/.keygate)")
	cmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode (text logs at debug level, dev JWT secret)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAccountCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}
