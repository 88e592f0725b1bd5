package cli

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leadrelay/keygate/internal/store"
)

type storeInfo struct {
	Driver     string   `json:"driver"`
	Tables     []string `json:"tables"`
	Migrations int      `json:"migrations"`
	Error      string   `json:"error,omitempty"`
}

type versionInfo struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	Built     string    `json:"built"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Store     storeInfo `json:"store"`
}

// describeStore reports the configured driver and the schema its migrations
// create. It reads configuration only and never connects to the database.
func describeStore() storeInfo {
	cfg, err := loadConfig()
	if err != nil {
		return storeInfo{Driver: "unknown", Tables: []string{}, Error: err.Error()}
	}
	info := storeInfo{Driver: cfg.Database.Driver, Tables: store.Tables}
	if info.Migrations, err = store.MigrationCount(cfg.Database.Driver); err != nil {
		info.Error = err.Error()
	}
	return info
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and schema information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := versionInfo{
				Version:   version,
				Commit:    commit,
				Built:     date,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
				Store:     describeStore(),
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, info)
			}

			fmt.Fprintf(out, "keygate %s (%s, built %s)\n", info.Version, info.Commit, info.Built)
			fmt.Fprintf(out, "  %s %s\n", info.GoVersion, info.Platform)
			if info.Store.Error != "" {
				fmt.Fprintf(out, "  store:  %s (%s)\n", info.Store.Driver, info.Store.Error)
				return nil
			}
			fmt.Fprintf(out, "  store:  %s, %d migrations\n", info.Store.Driver, info.Store.Migrations)
			fmt.Fprintf(out, "  tables: %s\n", strings.Join(info.Store.Tables, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	return cmd
}
