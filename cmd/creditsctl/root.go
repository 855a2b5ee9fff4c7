package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing/sqlstore"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/database"
)

// app is opened lazily so commands without a database (hash-key, token) work offline.
type app struct {
	dbCfg  database.Config
	db     *sqlx.DB
	store  *sqlstore.Store
	svc    *billing.Service
	logger *zap.SugaredLogger
}

func (a *app) open() error {
	if a.db != nil {
		return nil
	}
	db, err := database.Connect(a.dbCfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", a.dbCfg.Driver, err)
	}
	a.db = db
	a.store = sqlstore.New(db)
	a.svc = billing.NewService(a.store, nil, nil, a.logger)
	return nil
}

func (a *app) users() *user.UserService {
	return user.NewUserService(a.db, a.svc, nil, a.logger)
}

func (a *app) migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	return a.users().EnsureTable(ctx)
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

func newRootCmd() *cobra.Command {
	a := &app{dbCfg: database.ConfigFromEnv(), logger: zap.NewNop().Sugar()}
	var driver, dsn string

	rootCmd := &cobra.Command{
		Use:           "creditsctl",
		Short:         "Operate the credit ledger: migrate, inspect balances, grant credits",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if driver != "" {
				a.dbCfg.Driver = driver
			}
			if dsn != "" {
				a.dbCfg.DSN = dsn
			}
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&driver, "db-driver", "", "Database driver, postgres or sqlite (default: DATABASE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&dsn, "db-url", "", "Database URL (default: DATABASE_URL)")

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newBalanceCmd(a),
		newHistoryCmd(a),
		newGrantCmd(a),
		newHashKeyCmd(),
		newTokenCmd(),
		newUserCmd(a),
	)
	return rootCmd
}
