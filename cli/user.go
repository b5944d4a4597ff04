package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/billbatista/clubledger/user"
	"github.com/spf13/cobra"
)

func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage club members",
	}

	var username, email, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				u, err := user.NewRepository(a.db).Register(ctx, username, email, password)
				if err != nil {
					return err
				}
				printf(cmd, "registered %s with id %d\n", u.Username, u.ID)
				return nil
			})(cmd, args)
		},
	}
	add.Flags().StringVar(&username, "username", "", "login name")
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&password, "password", "", "initial password")
	cmd.AddCommand(add)

	var off bool
	exempt := &cobra.Command{
		Use:   "exempt <id>",
		Short: "Exempt a member from sharing points costs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withApp(opts, func(ctx context.Context, a *app) error {
				return user.NewRepository(a.db).SetPointExempt(ctx, userID, !off)
			})(cmd, args)
		},
	}
	exempt.Flags().BoolVar(&off, "off", false, "remove the exemption")
	cmd.AddCommand(exempt)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List members and their balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				users, err := user.NewRepository(a.db).List(ctx)
				if err != nil {
					return err
				}
				for _, u := range users {
					printf(cmd, "%d\t%s\tpoints=%g\tmoney=%.2f\n", u.ID, u.Username, u.Points, u.Money)
				}
				return nil
			})(cmd, args)
		},
	})

	return cmd
}
