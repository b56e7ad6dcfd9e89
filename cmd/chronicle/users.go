package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts and roles",
	}

	cmd.AddCommand(
		newUsersRegisterCmd(),
		newUsersAddCmd(),
		newUsersRoleCmd(),
		newUsersListCmd(),
	)

	return cmd
}

func newUsersRegisterCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a new account with the USER role",
		Long:  "Registers an account. The password is read from --password or $" + envPassword + ".",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				user, err := d.Accounts.HandleRegister(ctx, entities.NewUser{
					Username: args[0],
					Email:    email,
					Password: passwordFromFlags(),
				})
				if err != nil {
					return err
				}
				fmt.Printf("Registered %s (%s)\n", user.Username, user.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newUsersAddCmd() *cobra.Command {
	var (
		email       string
		role        string
		newPassword string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account with any role (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				user, err := d.Accounts.HandleAdd(ctx, actor.ID, entities.NewUser{
					Username: args[0],
					Email:    email,
					Password: newPassword,
				}, role)
				if err != nil {
					return err
				}
				fmt.Printf("Created %s (%s)\n", user.Username, user.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&role, "role", "USER", "Role (USER, MODERATOR, ADMIN)")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "Password of the new account (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("new-password")

	return cmd
}

func newUsersRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "role <username> <role>",
		Short: "Change a user's role (admin only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				user, err := d.Accounts.HandleSetRole(ctx, actor.ID, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", user.Username, user.Role)
				return nil
			})
		},
	}
}

func newUsersListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts (moderators and admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				users, err := d.Accounts.HandleList(ctx, actor.ID, limit, offset)
				if err != nil {
					return err
				}
				if len(users) == 0 {
					fmt.Println("No users found.")
					return nil
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "USERNAME\tROLE\tEMAIL\tCREATED")
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Username, u.Role, u.Email, u.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultListLimit, "Maximum number of users to display")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of users to skip")

	return cmd
}

func passwordFromFlags() string {
	if globalPassword != "" {
		return globalPassword
	}
	return os.Getenv(envPassword)
}
