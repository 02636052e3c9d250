package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func targetsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List every server in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := o.client().Targets(o.ctx(cmd))
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), ts)
			}
			renderTargets(cmd.OutOrStdout(), ts)
			return nil
		},
	}
}

func addCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <host> <port>",
		Short: "Add a server to the catalog (admin key)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("port %q is not a number", args[2])
			}
			t, err := o.client().AddTarget(o.ctx(cmd), args[0], args[1], port)
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s:%d)\n", t.ID, t.Address.Host, t.Address.Port)
			return nil
		},
	}
}

func removeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <server>",
		Short: "Remove a server from the catalog (admin key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client().RemoveTarget(o.ctx(cmd), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func trackCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "track <server>",
		Short: "Subscribe the tenant to a server (admin key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := o.client().Track(o.ctx(cmd), o.tenant, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "now tracking %s\n", id)
			return nil
		},
	}
}

func untrackCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "untrack <server>",
		Short: "Drop the tenant's subscription to a server (admin key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := o.client().Untrack(o.ctx(cmd), o.tenant, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped tracking %s\n", id)
			return nil
		},
	}
}

func statusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <server>",
		Short: "Show status, players and uptime for matching servers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := o.client().Status(o.ctx(cmd), o.tenant, args[0])
			if err != nil {
				return err
			}
			return o.printStatuses(cmd, rows)
		},
	}
}

func listCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show every server the tenant is subscribed to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := o.client().List(o.ctx(cmd), o.tenant)
			if err != nil {
				return err
			}
			return o.printStatuses(cmd, rows)
		},
	}
}

func (o *options) printStatuses(cmd *cobra.Command, rows []Status) error {
	if o.jsonOut {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	renderStatuses(cmd.OutOrStdout(), rows)
	return nil
}

func muteCmd(o *options, muted bool) *cobra.Command {
	var all bool
	verb := "mute"
	short := "Silence notifications for a server"
	if !muted {
		verb = "unmute"
		short = "Resume notifications for a server"
	}
	cmd := &cobra.Command{
		Use:   verb + " [server]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass either a server or --all")
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			id, err := o.client().Mute(o.ctx(cmd), o.tenant, query, muted)
			if err != nil {
				return err
			}
			if all {
				fmt.Fprintf(cmd.OutOrStdout(), "%sd all servers\n", verb)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd %s\n", verb, id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "apply to every subscription")
	return cmd
}

func findCmd(o *options) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "find <player> --server <server>",
		Short: "Check whether a player is online on a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, online, err := o.client().FindPlayer(o.ctx(cmd), server, args[0])
			if err != nil {
				return err
			}
			if online {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is %s on %s\n", args[0], onlineStyle.Render("online"), id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s on %s\n", args[0], offlineStyle.Render("not online"), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server name fragment")
	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func channelCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "channel <ref>",
		Short: "Set where the tenant's notifications are delivered (admin key)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client().SetChannel(o.ctx(cmd), o.tenant, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notifications for %s go to %s\n", o.tenant, args[0])
			return nil
		},
	}
}
