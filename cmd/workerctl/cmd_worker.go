package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func requireAdminKey(adminKey string) error {
	if adminKey == "" {
		return errors.New("--admin-key is required")
	}
	return nil
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var adminKey string

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Tear down and delete a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAdminKey(adminKey); err != nil {
				return err
			}
			a, err := opts.newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Orchestrator.DeleteWorker(cmd.Context(), adminKey, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted worker %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key of the owning account")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var adminKey string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers of an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireAdminKey(adminKey); err != nil {
				return err
			}
			a, err := opts.newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.Orchestrator.ListWorkers(cmd.Context(), adminKey)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key of the owning account")
	return cmd
}

func newConnectInfoCmd(opts *rootOptions) *cobra.Command {
	var adminKey string

	cmd := &cobra.Command{
		Use:   "connect-info <name>",
		Short: "Print what a client needs to connect to a worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireAdminKey(adminKey); err != nil {
				return err
			}
			a, err := opts.newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.Orchestrator.GetConnectInfo(cmd.Context(), adminKey, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "workerId\t%d\n", info.WorkerID)
			fmt.Fprintf(w, "workerVersion\t%d\n", info.WorkerVersion)
			fmt.Fprintf(w, "userKey\t%s\n", info.UserKey)
			fmt.Fprintf(w, "index\t%d bytes\n", len(info.Index))
			fmt.Fprintf(w, "typeDefinitions\t%d bytes\n", len(info.TypeDefinitions))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key of the owning account")
	return cmd
}
