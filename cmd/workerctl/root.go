package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hatlonely/workerplane/app"
	"github.com/hatlonely/workerplane/cfg"
)

type rootOptions struct {
	configPath string
	envPrefix  string
}

// newApp 加载配置并组装 App，override 在组装前修改配置
func (o *rootOptions) newApp(ctx context.Context, override func(options *app.Options)) (*app.App, error) {
	c, err := cfg.NewConfigWithPrefix(o.configPath, o.envPrefix)
	if err != nil {
		return nil, err
	}
	var options app.Options
	if err := c.ConvertTo(&options); err != nil {
		return nil, errors.WithMessage(err, "load config failed")
	}
	if override != nil {
		override(&options)
	}
	return app.NewAppWithOptions(ctx, &options)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "workerctl",
		Short:         "Worker deploy control plane",
		Long:          "workerctl deploys worker code to the compute engine and manages accounts and workers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "workerctl.yaml", "config file (yaml, json, toml or ini)")
	cmd.PersistentFlags().StringVar(&opts.envPrefix, "env-prefix", "WORKERCTL", "prefix of environment variables overriding the config")

	cmd.AddCommand(
		newAccountCmd(opts),
		newInitCmd(),
		newDeployCmd(opts),
		newDeleteCmd(opts),
		newListCmd(opts),
		newConnectInfoCmd(opts),
		newLimitsCmd(opts),
	)
	return cmd
}
