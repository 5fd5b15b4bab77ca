package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"

	"tosho/internal/auth"
	"tosho/internal/checkout"
	"tosho/internal/db"
	"tosho/internal/domain/carts"
	"tosho/internal/domain/storage"
	"tosho/internal/events"
	"tosho/internal/mailer"
	"tosho/internal/payments"
	"tosho/internal/ratelimiter"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := zapcore.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if err := level.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
	}

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "0.1.0"

//	@title			Tosho API
//	@description	Cart and checkout API for the Tosho storefront.

//	@BasePath					/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description				Optional bearer token. Without it the cart lives in the cart cookie.

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := loadConfig()

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	if cfg.stripe.secretKey == "" {
		logger.Fatal("STRIPE_SECRET_KEY is required")
	}
	if cfg.auth.token.secret == "" {
		logger.Fatal("AUTH_TOKEN_SECRET is required")
	}

	// Database
	if err := db.Migrate(cfg.db.addr); err != nil {
		logger.Fatal(err)
	}

	pool, err := db.New(cfg.db.addr, cfg.db.maxConns, cfg.db.maxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	store := storage.NewContainer(pool)

	// Cart cache
	var cartCache carts.Cache
	if cfg.redis.addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.redis.addr,
			Password: cfg.redis.password,
			DB:       cfg.redis.db,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnw("redis unavailable, cart cache disabled", "addr", cfg.redis.addr, "error", err)
		} else {
			cartCache = carts.NewRedisCache(rdb, cfg.redis.cartTTL)
			logger.Infow("redis cart cache enabled", "addr", cfg.redis.addr)
		}
	}

	cartService := carts.NewService(store.Carts, cartCache, logger)

	// Payment verifier
	verifier := payments.NewBreakerVerifier(
		payments.NewStripeVerifier(cfg.stripe.secretKey),
		cfg.checkout.verifyTimeout,
		logger,
	)

	engine := checkout.NewEngine(
		verifier,
		store.Checkout.Finalizations,
		store.Checkout.Purchases,
		cartService,
		logger,
		checkout.Config{
			LeaseTTL:     cfg.checkout.leaseTTL,
			WaitTimeout:  cfg.checkout.waitTimeout,
			PollInterval: cfg.checkout.pollInterval,
		},
	)

	// Outbox sinks
	var sinks []events.Sink
	if len(cfg.kafka.brokers) > 0 {
		w := events.NewKafkaWriter(cfg.kafka.topic, cfg.kafka.brokers...)
		defer w.Close()
		sinks = append(sinks, events.NewKafkaSink(w))
	}
	if cfg.mail.host != "" {
		smtp, err := mailer.NewSMTPClient(cfg.mail.host, cfg.mail.port, cfg.mail.username, cfg.mail.password, cfg.mail.fromEmail)
		if err != nil {
			logger.Fatal(err)
		}
		sinks = append(sinks, events.NewReceiptSink(smtp, mailer.FromName))
	}

	var outbox backgroundJob
	if len(sinks) > 0 {
		outbox = events.NewOutboxPoller(store.Checkout.Outbox, cfg.checkout.outboxTick, logger, sinks...)
	} else {
		logger.Warn("no outbox sinks configured, purchase events stay queued")
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	// Authenticator
	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.aud,
		cfg.auth.token.iss,
		cfg.auth.token.exp,
	)

	app := &application{
		config:        cfg,
		store:         store,
		logger:        logger,
		carts:         cartService,
		checkout:      engine,
		purchases:     store.Checkout.Purchases,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
		outbox:        outbox,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]any{
			"total_conns":    s.TotalConns(),
			"idle_conns":     s.IdleConns(),
			"acquired_conns": s.AcquiredConns(),
			"max_conns":      s.MaxConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	ctx, stop := context.WithCancel(context.Background())
	wait := app.startBackground(ctx)

	mux := app.mount()

	err = app.run(mux)
	stop()
	wait()
	if err != nil {
		logger.Fatal(err)
	}
}
