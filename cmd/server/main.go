// @title Food Court Payment Hub API
// @version 1.0
// @description Stored-value escrow, settlement, and payment-rail routing for food-court merchants.
// @host localhost:8080
// @BasePath /
package main

import (
	"context"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/oxzoid/foodcourt-hub/internal/config"
	"github.com/oxzoid/foodcourt-hub/internal/crypto"
	"github.com/oxzoid/foodcourt-hub/internal/domain"
	"github.com/oxzoid/foodcourt-hub/internal/escrow"
	"github.com/oxzoid/foodcourt-hub/internal/gateway"
	"github.com/oxzoid/foodcourt-hub/internal/logging"
	"github.com/oxzoid/foodcourt-hub/internal/profile"
	"github.com/oxzoid/foodcourt-hub/internal/ratelimit"
	"github.com/oxzoid/foodcourt-hub/internal/refund"
	"github.com/oxzoid/foodcourt-hub/internal/scheduler"
	"github.com/oxzoid/foodcourt-hub/internal/settlement"
	"github.com/oxzoid/foodcourt-hub/internal/signage"
	"github.com/oxzoid/foodcourt-hub/internal/store"
	"github.com/oxzoid/foodcourt-hub/internal/webhook"
	"github.com/oxzoid/foodcourt-hub/pkg/api"

	"github.com/rs/zerolog/log"
)

// corsMiddleware allows the counter/admin web frontends to call the hub
// cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	logging.Init("production")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer db.Close()

	if err := store.EnsureSchema(db); err != nil {
		log.Fatal().Err(err).Msg("ensuring schema")
	}

	merchantRepo := store.NewMerchantRepo(db)
	profileRepo := store.NewProfileRepo(db)
	fcidRepo := store.NewFCIDRepo(db)
	backTxRepo := store.NewBackTxRepo(db)
	settlementRepo := store.NewSettlementRepo(db)
	cryptoTopUpRepo := store.NewCryptoTopUpRepo(db)

	escrowEngine := escrow.New(fcidRepo, cryptoTopUpRepo)
	profileResolver := profile.NewResolver(profileRepo)
	settlementEngine := settlement.New(settlementRepo, backTxRepo)
	signageCoordinator := signage.NewCoordinator()
	normalizer := webhook.New(merchantRepo, backTxRepo, fcidRepo, signageCoordinator)

	scbClient := gateway.NewSCBClient()
	kbankClient := gateway.NewKBankClient()
	omiseClient := gateway.NewOmiseClient()
	stripeClient := gateway.NewStripeClient()
	cryptoVerifier := crypto.NewVerifier([]crypto.Asset{
		{Method: domain.MethodUSDTBEP20, ContractAddress: cfg.CryptoBEP20USDTAddr, RPCURL: cfg.CryptoBEP20RPCURL},
	})
	cryptoPoller := crypto.NewPoller(cryptoVerifier, cryptoTopUpRepo, escrowEngine.ConfirmCryptoTopUp)
	refundSweeper := refund.NewSweeper(store.NewRefundRepo(db), escrowEngine, nil)

	api.Init(api.Deps{
		DB:       db,
		Config:   cfg,
		Merchant: merchantRepo,
		Escrow:   escrowEngine,
		Profile:  profileResolver,
		Settle:   settlementEngine,
		Signage:  signageCoordinator,
		Webhook:  normalizer,
		BackTx:   backTxRepo,
		SCB:      scbClient,
		KBank:    kbankClient,
		Omise:    omiseClient,
		Stripe:   stripeClient,
		Crypto:   cryptoVerifier,
	})

	sched := scheduler.New(buildJobs(cfg, settlementEngine, cryptoPoller, refundSweeper)...)
	sched.Start(context.Background())
	defer sched.Stop()

	limiter := ratelimit.New(ratelimit.DefaultRequestsPerMinute, ratelimit.DefaultBurstSize,
		"/health", "/dbhealth", "/swagger/", "/signage/display", "/payment-callback/stores/")
	defer limiter.Stop()

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/dbhealth", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"ok":false}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	mux.HandleFunc("/counter/exchange", api.ExchangeHandler)
	mux.HandleFunc("/counter/balance/", api.BalanceHandler)
	mux.HandleFunc("/counter/refund", api.RefundHandler)
	mux.HandleFunc("/counter/topup", api.TopUpHandler)

	mux.HandleFunc("/payment-hub/use", api.UseHandler)
	mux.HandleFunc("/stores/", api.StoresHandler)

	mux.HandleFunc("/payment-callback/webhook", api.WebhookGenericHandler)
	mux.HandleFunc("/payment-callback/webhook/kbank", api.WebhookKBankHandler)
	mux.HandleFunc("/payment-callback/webhook/omise", api.WebhookOmiseHandler)
	mux.HandleFunc("/payment-callback/webhook/stripe", api.WebhookStripeHandler)
	mux.HandleFunc("/payment-callback/settlements", api.SettlementsHandler)
	mux.HandleFunc("/payment-callback/settlements/", api.SettlementsHandler)
	mux.HandleFunc("/payment-callback/back-transactions/report", api.ReportBackTransactionsHandler)
	mux.HandleFunc("/payment-callback/stores/", api.CallbackStoresHandler)

	mux.HandleFunc("/signage/set-display", api.SetDisplayHandler)
	mux.HandleFunc("/signage/display", api.DisplayHandler)
	mux.HandleFunc("/signage/ack-paid", api.AckPaidHandler)

	handler := corsMiddleware(limiter.Middleware(logging.Middleware(mux)))

	log.Info().Str("addr", cfg.HTTPAddr).Msg("food court payment hub listening")
	log.Fatal().Err(http.ListenAndServe(cfg.HTTPAddr, handler)).Msg("server stopped")
}

// buildJobs assembles the background schedule: daily settlement rollup,
// an overdue-custody sweep, a 5-minute crypto top-up poll, the refund
// notification retry sweep, and an optional midnight balance reset gated on
// the operator's e-money license status.
func buildJobs(cfg *config.Config, settlementEngine *settlement.Engine, cryptoPoller *crypto.Poller, refundSweeper *refund.Sweeper) []scheduler.Job {
	var jobs []scheduler.Job

	settlementHour := 23 * time.Hour
	jobs = append(jobs, scheduler.Job{
		Name:    "daily_settlement_rollup",
		DailyAt: &settlementHour,
		Run: func(ctx context.Context) error {
			_, err := settlementEngine.CreateDaily(ctx, time.Now().UTC())
			return err
		},
	})

	jobs = append(jobs, scheduler.Job{
		Name:     "crypto_topup_poll",
		Interval: config.ParseDurationEnv("FCH_CRYPTO_POLL_INTERVAL", 5*time.Minute),
		Run:      cryptoPoller.PollOnce,
	})

	jobs = append(jobs, scheduler.Job{
		Name:     "overdue_settlement_report",
		Interval: config.ParseDurationEnv("FCH_OVERDUE_SWEEP_INTERVAL", time.Hour),
		Run: func(ctx context.Context) error {
			overdue, err := settlementEngine.OverdueReport(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if len(overdue) > 0 {
				log.Warn().Int("count", len(overdue)).Msg("pending settlements exceed the one-day custody window")
			}
			return nil
		},
	})

	jobs = append(jobs, scheduler.Job{
		Name:     "refund_notification_sweep",
		Interval: config.ParseDurationEnv("FCH_REFUND_NOTIFY_INTERVAL", time.Hour),
		Run:      refundSweeper.SendPending,
	})

	if cfg.MidnightResetEnabled() {
		midnight := time.Duration(0)
		jobs = append(jobs, scheduler.Job{
			Name:    "midnight_balance_reset",
			DailyAt: &midnight,
			Run:     refundSweeper.DailyBalanceReset,
		})
	}

	return jobs
}
