package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "bidding-marketplace/internal/biddingService"
	"bidding-marketplace/internal/changefeed"
	"bidding-marketplace/internal/config"
	"bidding-marketplace/internal/ledger"
	"bidding-marketplace/internal/mailer"
	"bidding-marketplace/internal/metrics"
	model "bidding-marketplace/internal/models"
	"bidding-marketplace/internal/notification"
	opportunity "bidding-marketplace/internal/opportunityService"
	profile "bidding-marketplace/internal/profileService"
	"bidding-marketplace/internal/reconciler"
	"bidding-marketplace/internal/repository"
	"bidding-marketplace/internal/server"
	"bidding-marketplace/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := utils.SetLogLevel(cfg.Log.Level); err != nil {
		utils.Warn("unknown log level, keeping default", map[string]any{"level": cfg.Log.Level})
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Fatal("marketplace stopped with error", map[string]any{"error": err.Error()})
	}
	utils.Info("marketplace stopped", nil)
}

func run(ctx context.Context, cfg config.Config) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	closers = append(closers, closeStore)

	repo := repository.NewLedgerRepo(store, cfg.Store.AppID)
	if cfg.Store.SeedData {
		if err := prepopulate(ctx, repo, cfg.Email.AdminAddress); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	biddingSvc := bidding.NewBiddingService(repo,
		bidding.WithMaxCASAttempts(cfg.Bidding.MaxCASAttempts),
		bidding.WithMetrics(recorder),
	)
	opportunitySvc := opportunity.NewOpportunityService(repo, nil)
	profileSvc := profile.NewProfileService(repo, nil)

	sender, err := newSender(cfg.Email)
	if err != nil {
		return err
	}
	queue := notification.NewQueue(sender, notification.QueueConfig{
		Workers:        cfg.Notify.Workers,
		Size:           cfg.Notify.QueueSize,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		AttemptTimeout: cfg.Email.SendTimeout.Duration,
		BackoffBase:    cfg.Notify.BackoffBase.Duration,
		BackoffMax:     cfg.Notify.BackoffMax.Duration,
	}, recorder)

	dedup, closeDedup, err := newDeduper(ctx, cfg)
	if err != nil {
		return err
	}
	closers = append(closers, closeDedup)

	resolver, err := notification.NewEmailResolver(repo, cfg.Notify.EmailCacheSize)
	if err != nil {
		return fmt.Errorf("notification: %w", err)
	}
	composer := notification.NewComposer(cfg.Email.FromName, cfg.Email.AdminTag, cfg.Email.AdminAddress)
	dispatcher := notification.NewDispatcher(composer, resolver, dedup, queue, recorder)

	limiter, err := server.NewBidRateLimiter(cfg.Bidding.RateLimit, cfg.Bidding.RateBurst, 0)
	if err != nil {
		return err
	}
	deps := server.Dependencies{
		Bidding:       biddingSvc,
		Opportunities: opportunitySvc,
		Profiles:      profileSvc,
		Gatherer:      registry,
		Limiter:       limiter,
	}
	if cfg.TriggersEnabled() {
		deps.Triggers = dispatcher
		deps.TriggerSecret = cfg.Server.TriggerSecret
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.SetupRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	// workers outlive the background group so the backlog drains after it stops
	queue.Start(context.Background())
	defer queue.Stop()

	g, gctx := errgroup.WithContext(ctx)

	bids := repository.Paths{AppID: cfg.Store.AppID}.Bids()
	switch cfg.Notify.Transport {
	case config.TransportTrigger:
		// the hosting runtime posts every bid change to /triggers
	case config.TransportKafka:
		writer := changefeed.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		publisher := changefeed.NewKafkaPublisher(writer)
		consumer := changefeed.NewKafkaConsumer(changefeed.NewReader(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID), dispatcher)
		closers = append(closers, func() { closeQuietly("kafka publisher", publisher.Close) })
		closers = append(closers, func() { closeQuietly("kafka consumer", consumer.Close) })

		g.Go(func() error { return changefeed.NewBridge(store, bids, publisher).Run(gctx) })
		g.Go(func() error { return consumer.Run(gctx) })
	default:
		g.Go(func() error { return changefeed.NewBridge(store, bids, dispatcher).Run(gctx) })
	}

	rec := reconciler.New(repo, biddingSvc, cfg.Reconcile.Interval.Duration, cfg.Reconcile.Concurrency, recorder)
	g.Go(func() error { return rec.Run(gctx) })

	g.Go(func() error {
		utils.Info("starting marketplace server", map[string]any{
			"port":      cfg.Server.Port,
			"env":       cfg.Server.Env,
			"store":     cfg.Store.Driver,
			"transport": cfg.Notify.Transport,
			"app_id":    cfg.Store.AppID,
			"email":     cfg.EmailEnabled(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		utils.Info("shutting down marketplace server", nil)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore picks the ledger backend named by the configuration
func openStore(ctx context.Context, cfg config.StoreConfig) (ledger.Store, func(), error) {
	if cfg.Driver != config.StoreMongo {
		return ledger.NewMemoryStore(), func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, store, err := ledger.ConnectMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, nil, err
	}
	utils.Info("connected to mongo ledger", map[string]any{"database": cfg.MongoDatabase, "region": cfg.Region})
	return store, func() {
		if err := client.Disconnect(context.Background()); err != nil {
			utils.Warn("mongo disconnect failed", map[string]any{"error": err.Error()})
		}
	}, nil
}

// newSender returns the email provider client, or a logging stand-in when no
// API key is configured
func newSender(cfg config.EmailConfig) (notification.Sender, error) {
	if cfg.APIKey == "" {
		utils.Warn("email API key not configured, notifications are logged only", nil)
		return logSender{}, nil
	}
	client, err := mailer.New(mailer.Config{
		APIURL:      cfg.APIURL,
		APIKey:      cfg.APIKey,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
		RateLimit:   cfg.RateLimit,
		Burst:       cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return client, nil
}

func newDeduper(ctx context.Context, cfg config.Config) (notification.Deduper, func(), error) {
	switch cfg.Notify.Dedup {
	case config.DedupMemory:
		d, err := notification.NewMemoryDeduper(cfg.Notify.DedupSize, cfg.Notify.DedupTTL.Duration)
		if err != nil {
			return nil, nil, fmt.Errorf("dedup: %w", err)
		}
		return d, func() {}, nil
	case config.DedupRedis:
		rdb, err := notification.ConnectRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("dedup: %w", err)
		}
		return notification.NewRedisDeduper(rdb, cfg.Redis.KeyPrefix, cfg.Notify.DedupTTL.Duration),
			func() { closeQuietly("redis", rdb.Close) }, nil
	default:
		return notification.NopDeduper{}, func() {}, nil
	}
}

// logSender stands in for the email provider in development
type logSender struct{}

func (logSender) Deliver(_ context.Context, to, subject, _, idempotencyKey string) error {
	utils.Info("email not sent, provider disabled", map[string]any{
		"recipient":       to,
		"subject":         subject,
		"idempotency_key": idempotencyKey,
	})
	return nil
}

func closeQuietly(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		utils.Warn(name+": close failed", map[string]any{"error": err.Error()})
	}
}

// prepopulate adds an administrator and sample opportunities to an empty ledger
func prepopulate(ctx context.Context, repo *repository.LedgerRepo, adminEmail string) error {
	existing, err := repo.ListOpportunities(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	if adminEmail == "" {
		adminEmail = "admin@example.com"
	}
	if err := repo.PutUser(ctx, model.User{UserID: "admin", Email: adminEmail, Name: "Administrator", IsAdmin: true, CreatedAt: now}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	items := []struct {
		id, title, description string
		open                   time.Duration
	}{
		{"opp1", "Office cleaning contract", "Weekly cleaning of two office floors", 7 * 24 * time.Hour},
		{"opp2", "Website redesign", "Refresh of the public marketing site", 14 * 24 * time.Hour},
		{"opp3", "Catering for launch event", "Lunch and refreshments for 120 guests", 3 * 24 * time.Hour},
	}
	for _, item := range items {
		closing := now.Add(item.open)
		opp := model.Opportunity{
			OpportunityID:     item.id,
			Title:             item.title,
			Description:       item.description,
			ClosingDate:       &closing,
			CurrentHighestBid: decimal.Zero,
			CreatedAt:         now,
		}
		if err := repo.CreateOpportunity(ctx, opp); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	utils.Info("seeded sample opportunities", map[string]any{"count": len(items)})
	return nil
}
