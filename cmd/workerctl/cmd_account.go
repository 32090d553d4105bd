package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newAccountCreateCmd(opts))
	return cmd
}

// newAccountCreateCmd 创建账号并输出 adminKey，adminKey 只在这里出现一次
func newAccountCreateCmd(opts *rootOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "create <user-id>",
		Short: "Create an account and print its admin key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.Orchestrator.CreateAccount(cmd.Context(), args[0], email)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "userId:   %s\nadminKey: %s\n", info.UserID, info.AdminKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "contact email of the account")
	return cmd
}
