package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the ledger and user tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(); err != nil {
				return err
			}
			if err := a.migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrated")
			return nil
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show the balance of a user after renewal reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			view, err := a.svc.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(view)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credits=%d subscription_active=%t\n", view.Credits, view.SubscriptionActive)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "List the newest journal entries of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			txs, err := a.svc.History(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAT\tDELTA\tBALANCE\tREASON\tREFERENCE")
			for _, tx := range txs {
				fmt.Fprintf(tw, "%s\t%s\t%+d\t%d\t%s\t%s\n",
					tx.ID, tx.CreatedAt.Format(time.RFC3339), tx.Delta, tx.BalanceAfter, tx.Reason, tx.Reference)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}

func newGrantCmd(a *app) *cobra.Command {
	var amount int64
	var reference string
	cmd := &cobra.Command{
		Use:   "grant <user-id>",
		Short: "Add credits to a user outside the payment flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}
			if err := a.open(); err != nil {
				return err
			}
			applied, err := a.svc.Grant(cmd.Context(), args[0], amount, reference)
			if err != nil {
				return err
			}
			if !applied {
				fmt.Fprintf(cmd.OutOrStdout(), "reference %q already applied\n", reference)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s\n", amount, args[0])
			return nil
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "Credits to add")
	cmd.Flags().StringVar(&reference, "reference", "", "Idempotency reference (default: generated)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newHashKeyCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Print the bcrypt hash to use as PROVISION_API_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := user.BcryptHasher{Cost: cost}.Hash(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

// newTokenCmd mints an access token with AUTH_JWT_SECRET for local testing.
func newTokenCmd() *cobra.Command {
	var email string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := identity.NewVerifier(identity.ConfigFromEnv()).Issue(args[0], email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func newUserCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show a provisioned user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			u, err := a.users().Get(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, user.ErrUserNotFound) {
					return fmt.Errorf("user %q is not provisioned", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id=%s email=%s created_at=%s\n",
				u.ID, u.Email, time.UnixMilli(u.CreatedAt).UTC().Format(time.RFC3339))
			return nil
		},
	}
}
