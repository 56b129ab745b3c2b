package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/cyberhound/colony-proxy/internal/blast"
	"github.com/cyberhound/colony-proxy/internal/cache"
	"github.com/cyberhound/colony-proxy/internal/clicks"
	"github.com/cyberhound/colony-proxy/internal/config"
	"github.com/cyberhound/colony-proxy/internal/httpserver"
	"github.com/cyberhound/colony-proxy/internal/ledger"
	"github.com/cyberhound/colony-proxy/internal/logger"
	"github.com/cyberhound/colony-proxy/internal/mailer"
	"github.com/cyberhound/colony-proxy/internal/objstore"
	"github.com/cyberhound/colony-proxy/internal/payments"
	"github.com/cyberhound/colony-proxy/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logger.NewNamed(cfg.AppEnv, "colony-proxy")
	if err != nil {
		os.Stderr.WriteString("logger init: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bucket, err := newBucket(ctx, cfg, log)
	if err != nil {
		log.Fatal("bucket init", zap.Error(err))
	}
	store := ledger.NewStore(bucket, cfg.LedgerObjectKey)

	sink, closeSink, err := newClickSink(cfg, log)
	if err != nil {
		log.Fatal("click sink init", zap.Error(err))
	}
	defer closeSink()

	dispatcher := clicks.NewDispatcher(sink, log.Named("clicks"), clicks.DispatcherConfig{})
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	provider, err := payments.NewStripeProvider(payments.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		PriceFlame:    cfg.PriceFlame,
		PriceInferno:  cfg.PriceInferno,
		ClientURL:     cfg.ClientURL,
	}, log.Named("stripe"))
	if err != nil {
		log.Fatal("stripe init", zap.Error(err))
	}

	var mail mailer.Mailer = mailer.Disabled{}
	if cfg.ResendAPIKey != "" {
		mail, err = mailer.NewResend(mailer.ResendConfig{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.MailFrom,
		})
		if err != nil {
			log.Fatal("mailer init", zap.Error(err))
		}
	}

	var dealCache *cache.DealCache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal("redis init", zap.Error(err))
		}
		defer redisClient.Close()
		dealCache = cache.New(redisClient, cfg.CacheTTL)
		log.Info("deal cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	svc := service.New(
		service.Config{FallbackURL: cfg.FallbackURL},
		service.Deps{
			Deals:       store,
			Clicks:      dispatcher,
			Provider:    provider,
			Blast:       blast.NewEmitter(bucket, log.Named("blast")),
			Mail:        mail,
			Cache:       dealCache,
			Subscribers: service.NewSubscriberStore(bucket),
			Log:         log.Named("service"),
		},
	)

	server := httpserver.New(*cfg, svc, provider, log.Named("http"))
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("colony proxy listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}

	cancel()
	<-dispatcherDone
	svc.Close()
}

// newBucket selects the artifact store: S3 when a bucket is configured,
// otherwise the local filesystem store for development.
func newBucket(ctx context.Context, cfg *config.Config, log *zap.Logger) (objstore.Bucket, error) {
	if cfg.S3Bucket != "" {
		log.Info("using s3 bucket", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
		return objstore.NewS3Bucket(ctx, cfg.S3Bucket, cfg.S3Prefix)
	}
	dir := cfg.DataDir
	if dir == "" {
		dir = "data"
	}
	log.Info("using filesystem bucket", zap.String("dir", dir))
	return objstore.NewFSBucket(dir), nil
}

// newClickSink selects where click events land: Kafka when brokers are
// configured, Postgres when a database is, and the log otherwise.
func newClickSink(cfg *config.Config, log *zap.Logger) (clicks.Sink, func(), error) {
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := clicks.NewKafkaSink(clicks.KafkaSinkConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaClicksTopic,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("click sink: kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaClicksTopic))
		return sink, func() { sink.Close() }, nil
	}
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		sink := clicks.NewPGSink(db)
		if err := sink.Ping(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("click sink: postgres")
		return sink, func() { db.Close() }, nil
	}
	log.Info("click sink: log only")
	return clicks.NewLogSink(log.Named("clicklog")), func() {}, nil
}
