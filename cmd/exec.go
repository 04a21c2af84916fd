package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"fanpit/config"
	"fanpit/internal/handlers"
	"fanpit/internal/services"
	"fanpit/internal/services/settlement"
	"fanpit/internal/store"
	"fanpit/models"
	"fanpit/monitoring"
	"fanpit/security"
	"fanpit/utils"

	_ "fanpit/migrations"
)

func Start() error {
	app := pocketbase.New()
	cfg := config.LoadConfig()

	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)

	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	authorizer, gateway, err := newAuthorizer(cfg)
	if err != nil {
		return err
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
	}

	st := store.NewPBStore(app)
	notifier := services.NewNotifier(pn)
	admission := services.NewAdmission(st, cfg, monitor, notifier)
	sequencer := services.NewSequencer(st, redisClient, admission, cfg, monitor, notifier)
	checkout := services.NewCheckout(st, cfg, monitor)
	ledger := services.NewLedger(monitor)
	purchaser := services.NewPurchaser(st, ledger, admission, authorizer, notifier, monitor)
	reaper := services.NewReaper(st, redisClient, admission, cfg, monitor, notifier)

	queueHandler := handlers.NewQueueHandler(sequencer)
	checkoutHandler := handlers.NewCheckoutHandler(checkout, purchaser)
	adminHandler := handlers.NewAdminHandler(st, redisClient, admission, ledger, reaper)
	limiter := security.NewRateLimiter(redisClient)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	var opsServer *http.Server

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncActiveEvents(app, redisClient)
		reaper.Start()
		go restorePipelineState(redisClient, admission, reaper)

		if cfg.EnableMetrics {
			opsServer = startOpsServer(cfg, redisClient)
		}

		api := e.Router.Group("/api/v1")
		api.BindFunc(limiter.AntiBot())
		api.BindFunc(limiter.QueueRateLimit())

		api.POST("/queue/join", queueHandler.JoinQueue)
		api.POST("/queue/leave", queueHandler.LeaveQueue)
		api.GET("/queue/state", queueHandler.GetQueueState)

		api.POST("/checkout/start", checkoutHandler.StartCheckout)
		api.POST("/checkout/purchase", checkoutHandler.Purchase)

		admin := e.Router.Group("/api/v1/admin")
		admin.Bind(apis.RequireSuperuserAuth())
		admin.GET("/queue-dashboard", adminHandler.GetQueueDashboard)
		admin.GET("/queue-details/{eventId}", adminHandler.GetQueueDetails)
		admin.POST("/force-sweep", adminHandler.ForceSweep)
		admin.POST("/remove-from-queue", adminHandler.RemoveFromQueue)
		admin.GET("/reconcile/{ticketTypeId}", adminHandler.Reconcile)
		admin.POST("/restock", adminHandler.Restock)

		// Provider callbacks carry their own auth, so the route sits
		// outside the user rate-limit group.
		if gateway != nil {
			settlementHandler := handlers.NewSettlementHandler(gateway, cfg.SettlementWebhookHash)
			e.Router.POST("/api/v1/settlement/webhook", settlementHandler.Webhook)
		}

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		setupEventHooks(app, redisClient)

		slog.Info("routes registered", "environment", cfg.Environment)
		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		reaper.Shutdown()
		if opsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := opsServer.Shutdown(ctx); err != nil {
				slog.Error("ops server shutdown", "error", err)
			}
		}
		redisClient.Close()
		return e.Next()
	})

	return app.Start()
}

func newAuthorizer(cfg *config.Config) (settlement.Authorizer, *settlement.Gateway, error) {
	if cfg.SettlementProvider == "gateway" {
		gateway, err := settlement.NewGateway(&settlement.GatewayConfig{
			SubscribeKey: cfg.SettlementSubKey,
			PublishKey:   cfg.SettlementPubKey,
			Channel:      cfg.SettlementChannel,
			HMACKey:      cfg.SettlementHMACKey,
			Timeout:      cfg.SettlementTimeout,
			UserID:       "fanpit-server",
		})
		if err != nil {
			return nil, nil, err
		}
		return gateway, gateway, nil
	}
	return settlement.Auto{}, nil, nil
}

// startOpsServer serves Prometheus metrics and a liveness probe on a
// separate port, so operational traffic never mixes with the app router.
func startOpsServer(cfg *config.Config, redisClient *redis.Client) *http.Server {
	e := echo.New()
	e.GET("/metrics", func(c echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/healthz", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: e}
	go func() {
		slog.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server", "error", err)
		}
	}()
	return srv
}

// syncActiveEvents rebuilds the Redis active_events set from the store
// on startup. The set only feeds display caching and metrics, so a full
// rebuild is always safe.
func syncActiveEvents(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var rows []dbx.NullStringMap
	err := app.DB().NewQuery(
		"SELECT id FROM events WHERE sale_status = {:status}").
		Bind(dbx.Params{"status": models.SaleOnSale}).
		All(&rows)
	if err != nil {
		slog.Error("sync active events", "error", err)
		return
	}

	redisClient.Del(ctx, "active_events")
	var eventIDs []any
	for _, row := range rows {
		if id := row["id"].String; id != "" {
			eventIDs = append(eventIDs, id)
		}
	}
	if len(eventIDs) > 0 {
		redisClient.SAdd(ctx, "active_events", eventIDs...)
	}
	slog.Info("synced active events", "count", len(eventIDs))
}

// setupEventHooks keeps active_events in step with event edits made
// through the app's record API.
func setupEventHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	sync := func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()
		eventID := e.Record.Id
		if e.Record.GetString("sale_status") == models.SaleOnSale {
			if err := redisClient.SAdd(ctx, "active_events", eventID).Err(); err != nil {
				slog.Error("add active event", "event", eventID, "error", err)
			}
		} else {
			if err := redisClient.SRem(ctx, "active_events", eventID).Err(); err != nil {
				slog.Error("remove active event", "event", eventID, "error", err)
			}
		}
		return e.Next()
	}

	app.OnRecordCreateRequest("events").BindFunc(sync)
	app.OnRecordUpdateRequest("events").BindFunc(sync)
}

// restorePipelineState re-arms admissions after a restart: expired rows
// get swept, then every freed slot is refilled in seq order.
func restorePipelineState(redisClient *redis.Client, admission *services.Admission, reaper *services.Reaper) {
	ctx := context.Background()

	if err := reaper.Sweep(ctx); err != nil {
		slog.Error("startup sweep", "error", err)
	}

	eventIDs, err := redisClient.SMembers(ctx, "active_events").Result()
	if err != nil {
		slog.Error("restore: list active events", "error", err)
		return
	}
	for _, eventID := range eventIDs {
		admitted, err := admission.FillSlots(ctx, eventID)
		if err != nil {
			slog.Error("restore: fill slots", "event", eventID, "error", err)
			continue
		}
		if admitted > 0 {
			slog.Info("restored admissions", "event", eventID, "admitted", admitted)
		}
	}
}
