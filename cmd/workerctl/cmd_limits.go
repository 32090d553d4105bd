package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hatlonely/workerplane/quota"
)

// newLimitsCmd 查看或覆盖平台限额，覆盖值写入键缓存，各进程在下次刷新时生效
func newLimitsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show effective platform limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			limits := a.Quota.GetLimits(cmd.Context())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%d\n", quota.LimitMaxAccounts, limits.MaxAccounts)
			fmt.Fprintf(w, "%s\t%d\n", quota.LimitWorkersPerUser, limits.WorkersPerUser)
			fmt.Fprintf(w, "%s\t%d\n", quota.LimitMaxWorkers, limits.MaxWorkers)
			return w.Flush()
		},
	}
	cmd.AddCommand(newLimitsSetCmd(opts))
	return cmd
}

func newLimitsSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Override a platform limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			switch name {
			case quota.LimitMaxAccounts, quota.LimitWorkersPerUser, quota.LimitMaxWorkers:
			default:
				return errors.Errorf("unknown limit %q", name)
			}
			v, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return errors.Wrapf(err, "invalid value %q", args[1])
			}

			a, err := opts.newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Keys.SetLimit(cmd.Context(), name, uint32(v)); err != nil {
				return errors.WithMessage(err, "set limit failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %d\n", name, v)
			return nil
		},
	}
}
