// Package cli implements the swctl command line client for the serverwatch
// HTTP API.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAPIBase = "http://localhost:8080"

type options struct {
	api     string
	key     string
	tenant  string
	jsonOut bool
	timeout time.Duration
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NewRootCmd builds the full command tree. Each call returns a fresh tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "swctl",
		Short: "Manage and query serverwatch from the terminal",
		Long: `swctl talks to a running serverwatch API.

Server arguments are name fragments: "pve" matches "ark-pve-01" as long as
no other server name contains it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.api, "api", envOr("SW_API_BASE", defaultAPIBase), "API base URL (env SW_API_BASE)")
	f.StringVar(&opts.key, "key", os.Getenv("SW_API_KEY"), "API key (env SW_API_KEY)")
	f.StringVar(&opts.tenant, "tenant", envOr("SW_TENANT", "cli"), "tenant to act as (env SW_TENANT)")
	f.BoolVar(&opts.jsonOut, "json", false, "print raw JSON")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		targetsCmd(opts),
		addCmd(opts),
		removeCmd(opts),
		trackCmd(opts),
		untrackCmd(opts),
		statusCmd(opts),
		listCmd(opts),
		muteCmd(opts, true),
		muteCmd(opts, false),
		findCmd(opts),
		channelCmd(opts),
	)
	return root
}

func (o *options) client() *Client {
	c := NewClient(o.api, o.key)
	c.HTTP.Timeout = o.timeout
	return c
}

func (o *options) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, offlineStyle.Render("error: ")+err.Error())
		return 1
	}
	return 0
}
