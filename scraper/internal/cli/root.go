// Package cli implements the eproc-scraper command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/config"
)

// Version is set at build time.
var Version = "dev"

// state is shared by the commands of one invocation.
type state struct {
	cfgFile string
	output  string
	cfg     *config.Config
	logger  *logging.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	st := &state{}

	root := &cobra.Command{
		Use:   "eproc-scraper",
		Short: "eProc open-deadline synchronizer",
		Long: `eproc-scraper mirrors the cases with open deadlines from the eProc portal
into a database: case headers, parties, events and their documents.

Run "serve" for the long-lived daemon or "sync" for a single pass.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(st.output); err != nil {
				return err
			}
			cfg, err := config.Load(st.cfgFile)
			if err != nil {
				return err
			}
			st.cfg = cfg
			st.logger = newLogger(cfg)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&st.cfgFile, "config", "", "config file (default: ./config.yaml or /etc/eproc/config.yaml)")
	root.PersistentFlags().StringVarP(&st.output, "output", "o", FormatTable, "output format: table, json, yaml")

	root.AddCommand(
		newServeCmd(st),
		newSyncCmd(st),
		newAuditCmd(st),
		newRunsCmd(st),
		newMigrateCmd(st),
	)
	return root
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		failure(root.ErrOrStderr(), "%v", err)
	}
	return err
}
