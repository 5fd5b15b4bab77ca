package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tosho/internal/auth"
	"tosho/internal/checkout"
	"tosho/internal/domain/carts"
	"tosho/internal/domain/purchases"
	"tosho/internal/domain/storage"
	"tosho/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type cartService interface {
	Read(ctx context.Context, id *auth.Identity, cookie string) (*carts.Cart, error)
	AddItem(ctx context.Context, id *auth.Identity, cookie, productID string, qty int) (*carts.Result, error)
	SetQuantity(ctx context.Context, id *auth.Identity, cookie, productID string, qty int) (*carts.Result, error)
	RemoveItem(ctx context.Context, id *auth.Identity, cookie, productID string) (*carts.Result, error)
	Clear(ctx context.Context, id *auth.Identity, cookie string) (*carts.Result, error)
	Merge(ctx context.Context, id *auth.Identity, cookie string) (*carts.Cart, error)
}

type finalizer interface {
	Finalize(ctx context.Context, sessionID string, id *auth.Identity) (*checkout.Result, error)
	Status(ctx context.Context, sessionID string) (*checkout.StatusView, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type backgroundJob interface {
	Run(ctx context.Context)
}

type application struct {
	config        config
	store         *storage.Container
	logger        *zap.SugaredLogger
	carts         cartService
	checkout      finalizer
	purchases     purchases.Store
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
	outbox        backgroundJob
}

type config struct {
	addr        string
	db          dbConfig
	env         string
	redis       redisConfig
	auth        authConfig
	stripe      stripeConfig
	kafka       kafkaConfig
	mail        mailConfig
	checkout    checkoutConfig
	cookie      cookieConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	exp    time.Duration
	aud    string
	iss    string
}

type basicConfig struct {
	user string
	pass string
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type redisConfig struct {
	addr     string
	password string
	db       int
	cartTTL  time.Duration
}

type stripeConfig struct {
	secretKey string
}

type kafkaConfig struct {
	brokers []string
	topic   string
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

type checkoutConfig struct {
	leaseTTL      time.Duration
	waitTimeout   time.Duration
	pollInterval  time.Duration
	verifyTimeout time.Duration
	sweepInterval time.Duration
	outboxTick    time.Duration
}

type cookieConfig struct {
	name   string
	secure bool
	maxAge time.Duration
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(app.RateLimiterMiddleware)
			r.Use(app.IdentityMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", app.getCartHandler)
				r.Delete("/", app.clearCartHandler)
				r.Get("/count", app.cartCountHandler)
				r.Post("/items", app.addCartItemHandler)
				r.Put("/items/{productID}", app.updateCartItemHandler)
				r.Delete("/items/{productID}", app.removeCartItemHandler)
				r.With(app.RequireIdentity).Post("/merge", app.mergeCartHandler)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/finalize", app.finalizeCheckoutHandler)
				r.Get("/success", app.checkoutSuccessHandler)
				r.Get("/finalizations/{sessionID}", app.finalizationStatusHandler)
			})

			r.With(app.RequireIdentity).Get("/purchases", app.listPurchasesHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
