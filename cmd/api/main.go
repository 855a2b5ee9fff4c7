package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing/sqlstore"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/enhance"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/generation"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/payment"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-credits-go/pkg/utilities"
)

// responseSlack covers the gate, the debit and writing the response around
// the generation itself.
const responseSlack = 30 * time.Second

func main() {
	// best-effort: without a .env the real environment is used
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-credits-go")

	dbCfg := database.ConfigFromEnv()
	db, err := database.Connect(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := sqlstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		sugar.Fatalf("migrate ledger: %v", err)
	}

	production := strings.EqualFold(os.Getenv("APP_ENV"), "production")

	genCfg := generation.ConfigFromEnv()
	// a charged generation must be able to deliver its response and to finish
	// during shutdown
	requestBudget := genCfg.MaxDuration() + responseSlack
	poller := generation.NewPoller(
		generation.NewReplicateClient(genCfg, nil),
		generation.WithInterval(genCfg.PollInterval),
		generation.WithMaxPolls(genCfg.MaxPolls),
		generation.WithLogger(sugar.Named("generation")),
	)
	svc := billing.NewService(store, poller, nil, sugar.Named("billing"))

	payCfg := payment.ConfigFromEnv()
	payments := billing.NewPaymentProcessor(payment.NewStripeVerifier(payCfg.WebhookSecret), store, nil, sugar.Named("payment"))

	users := user.NewUserService(db, svc, nil, sugar.Named("user"))
	if err := users.EnsureTable(ctx); err != nil {
		sugar.Fatalf("migrate users: %v", err)
	}

	idh := identity.NewHandler(identity.ConfigFromEnv(), sugar.Named("identity"))
	handler := router.RegisterRoutes(sugar, router.Handlers{
		Identity: idh,
		Billing:  billing.NewHandler(svc, payments, identity.UserID, sugar.Named("billing"), production),
		Payment:  payment.NewHandler(payment.NewCheckout(payCfg), sugar.Named("payment")),
		Enhance:  enhance.NewHandler(enhance.NewClient(enhance.ConfigFromEnv(), nil), sugar.Named("enhance"), production),
		User:     user.NewHandler(users, user.ConfigFromEnv(), sugar.Named("user")),
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestBudget,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infow("http server listening", "addr", addr, "db_driver", dbCfg.Driver, "production", production)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		doneCtx, cancel := context.WithTimeout(context.Background(), requestBudget)
		defer cancel()
		if err := srv.Shutdown(doneCtx); err != nil {
			sugar.Warnf("http server shutdown failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorf("server stopped: %v", err)
	}
	sugar.Info("goodbye")
}
