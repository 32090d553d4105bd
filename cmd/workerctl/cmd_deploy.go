package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hatlonely/workerplane/app"
	"github.com/hatlonely/workerplane/client"
)

func newInitCmd() *cobra.Command {
	var name, adminKey string

	cmd := &cobra.Command{
		Use:   "init <worker-dir>",
		Short: "Create worker.json for a new worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || adminKey == "" {
				return errors.New("--name and --admin-key are required")
			}
			if _, err := client.Init(args[0], name, adminKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized worker %s in %s\n", name, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "worker name")
	cmd.Flags().StringVar(&adminKey, "admin-key", "", "admin key of the owning account")
	return cmd
}

func newDeployCmd(opts *rootOptions) *cobra.Command {
	var buildDir, declDir string

	cmd := &cobra.Command{
		Use:   "deploy <worker-dir>",
		Short: "Deploy a worker if its code or classes changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd.Context(), func(options *app.Options) {
				if buildDir != "" {
					options.Client.BuildDir = buildDir
				}
				if declDir != "" {
					options.Client.DeclDir = declDir
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Deployer.Deploy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintf(cmd.OutOrStdout(), "Worker %s is up to date (version %d)\n", res.Config.Name, res.WorkerVersion)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deployed worker %s: id %d, version %d\n", res.Config.Name, res.WorkerID, res.WorkerVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&buildDir, "build", "", "compiled code directory, relative to the worker directory")
	cmd.Flags().StringVar(&declDir, "decl", "", "type declaration directory, relative to the worker directory")
	return cmd
}
