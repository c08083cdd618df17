package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ccsentinel/internal/models"
	"ccsentinel/internal/services/accounts"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage configured Claude accounts",
	}

	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsRemoveCmd())
	cmd.AddCommand(newAccountsUseCmd())

	return cmd
}

// openAccounts opens the account store without the rest of the service
// stack; the account subcommands never need the database or the monitor.
func openAccounts() (*accounts.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return accounts.New(cfg.ProfilesPath)
}

// resolveAccount finds an account by ID, name, or email.
func resolveAccount(svc *accounts.Service, ref string) (*models.Account, error) {
	for _, acc := range svc.GetAccounts() {
		if acc.ID == ref || acc.Name == ref || acc.Email == ref {
			found := acc
			return &found, nil
		}
	}
	return nil, fmt.Errorf("no account matches %q", ref)
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openAccounts()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			active := svc.GetActive()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tEMAIL\tDEFAULT\tACTIVE")
			for _, acc := range svc.GetAccounts() {
				activeMark := ""
				if active != nil && acc.ID == active.ID {
					activeMark = "*"
				}
				defaultMark := ""
				if acc.IsDefault {
					defaultMark = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					acc.ID, acc.Name, acc.Email, defaultMark, activeMark)
			}
			return w.Flush()
		},
	}
}

func newAccountsAddCmd() *cobra.Command {
	var (
		name             string
		email            string
		token            string
		makeDefault      bool
		sessionThreshold float64
		weeklyThreshold  float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && email == "" {
				return fmt.Errorf("at least one of --name or --email is required")
			}

			svc, err := openAccounts()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			account := models.Account{
				Name:             name,
				Email:            email,
				Token:            token,
				IsDefault:        makeDefault,
				SessionThreshold: sessionThreshold,
				WeeklyThreshold:  weeklyThreshold,
			}
			if err := svc.Add(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added account %s\n", account.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&token, "token", "", "OAuth access token")
	cmd.Flags().BoolVar(&makeDefault, "default", false, "make this the default account")
	cmd.Flags().Float64Var(&sessionThreshold, "session-threshold", 0, "per-account session threshold percent (0 = global)")
	cmd.Flags().Float64Var(&weeklyThreshold, "weekly-threshold", 0, "per-account weekly threshold percent (0 = global)")
	return cmd
}

func newAccountsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account>",
		Short: "Remove an account by ID, name, or email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openAccounts()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			acc, err := resolveAccount(svc, args[0])
			if err != nil {
				return err
			}
			if err := svc.Delete(acc.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", acc.DisplayName())
			return nil
		},
	}
}

func newAccountsUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <account>",
		Short: "Make an account the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openAccounts()
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			acc, err := resolveAccount(svc, args[0])
			if err != nil {
				return err
			}
			if err := svc.SetActive(acc.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Active account is now %s\n", acc.DisplayName())
			return nil
		},
	}
}
