package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomadlabs/nomadlabs"
	"github.com/nomadlabs/nomadlabs/internal/printer"
)

var (
	userName     string
	userEmail    string
	userPassword string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		role := nomadlabs.Role(strings.ToUpper(userRole))
		if !role.Valid() {
			return printer.Error("Invalid role", "Use one of GUEST, MEMBER, AUTHOR, REVIEWER, ADMIN.")
		}
		if len(userPassword) < 8 {
			return printer.Error("Password too short", "Passwords need at least 8 characters.")
		}
		hash, err := nomadlabs.HashPassword(userPassword)
		if err != nil {
			return printer.Error("Cannot hash password", err.Error())
		}
		store, err := openStore()
		if err != nil {
			return printer.Error("Cannot open database", err.Error())
		}
		defer store.Close()

		u, err := store.CreateUser(nomadlabs.User{Name: userName, Email: userEmail, Role: role, PasswordHash: hash})
		if err != nil {
			return printer.Error("Cannot create user", err.Error())
		}
		printer.Success("created %s <%s> as %s (id %s)", u.Name, u.Email, u.Role, u.ID)
		return nil
	},
}

var userRoleCmd = &cobra.Command{
	Use:   "role <email> <ROLE>",
	Short: "Change an account's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := nomadlabs.Role(strings.ToUpper(args[1]))
		if !role.Valid() {
			return printer.Error("Invalid role", "Use one of GUEST, MEMBER, AUTHOR, REVIEWER, ADMIN.")
		}
		store, err := openStore()
		if err != nil {
			return printer.Error("Cannot open database", err.Error())
		}
		defer store.Close()

		u, err := store.GetUserByEmail(args[0])
		if err != nil {
			return printer.Error("Unknown user", args[0]+": "+err.Error())
		}
		if err := store.SetRole(u.ID, role); err != nil {
			return printer.Error("Cannot change role", err.Error())
		}
		printer.Success("%s is now %s", u.Email, role)
		return nil
	},
}

var userPasswordCmd = &cobra.Command{
	Use:   "password <email> <new-password>",
	Short: "Reset an account's password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args[1]) < 8 {
			return printer.Error("Password too short", "Passwords need at least 8 characters.")
		}
		store, err := openStore()
		if err != nil {
			return printer.Error("Cannot open database", err.Error())
		}
		defer store.Close()

		u, err := store.GetUserByEmail(args[0])
		if err != nil {
			return printer.Error("Unknown user", args[0]+": "+err.Error())
		}
		hash, err := nomadlabs.HashPassword(args[1])
		if err != nil {
			return printer.Error("Cannot hash password", err.Error())
		}
		if err := store.SetPassword(u.ID, hash); err != nil {
			return printer.Error("Cannot change password", err.Error())
		}
		printer.Success("password updated for %s", u.Email)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address (required)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password, at least 8 characters (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", "MEMBER", "role: GUEST, MEMBER, AUTHOR, REVIEWER or ADMIN")
	for _, f := range []string{"name", "email", "password"} {
		_ = userCreateCmd.MarkFlagRequired(f)
	}

	userCmd.AddCommand(userCreateCmd, userRoleCmd, userPasswordCmd)
	rootCmd.AddCommand(userCmd)
}
