package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tosho/internal/ratelimiter"
)

func envString(key, fallback string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %t\n", key, fallback)
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		fmt.Printf("Invalid %s, defaulting to %s\n", key, fallback)
		return fallback
	}
	return parsed
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	return ratelimiter.Config{
		RequestsPerTimeFrame: envInt("RATELIMITER_REQUESTS_COUNT", 60),
		TimeFrame:            envDuration("RATELIMITER_TIME_FRAME", 5*time.Second),
		Enabled:              envBool("RATE_LIMITER_ENABLED", false),
	}
}

func loadConfig() config {
	return config{
		addr: envString("ADDR", ":8080"),
		env:  envString("ENV", "development"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(envInt("DB_MAX_CONNS", 30)),
			maxIdleTime: envString("DB_MAX_IDLE_TIME", "15m"),
		},
		redis: redisConfig{
			addr:     os.Getenv("REDIS_ADDR"),
			password: os.Getenv("REDIS_PASSWORD"),
			db:       envInt("REDIS_DB", 0),
			cartTTL:  envDuration("REDIS_CART_TTL", 15*time.Minute),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				exp:    time.Hour * 24 * 3, // 3 days
				aud:    envString("AUTH_TOKEN_AUD", "tosho"),
				iss:    envString("AUTH_TOKEN_ISS", "tosho"),
			},
		},
		stripe: stripeConfig{
			secretKey: os.Getenv("STRIPE_SECRET_KEY"),
		},
		kafka: kafkaConfig{
			brokers: envList("KAFKA_BROKERS"),
			topic:   envString("KAFKA_TOPIC", "purchases"),
		},
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      envInt("SMTP_PORT", 587),
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: os.Getenv("MAIL_FROM_EMAIL"),
		},
		checkout: checkoutConfig{
			leaseTTL:      envDuration("CHECKOUT_LEASE_TTL", 30*time.Second),
			waitTimeout:   envDuration("CHECKOUT_WAIT_TIMEOUT", 5*time.Second),
			pollInterval:  envDuration("CHECKOUT_POLL_INTERVAL", 200*time.Millisecond),
			verifyTimeout: envDuration("CHECKOUT_VERIFY_TIMEOUT", 10*time.Second),
			sweepInterval: envDuration("CHECKOUT_SWEEP_INTERVAL", time.Minute),
			outboxTick:    envDuration("OUTBOX_POLL_INTERVAL", time.Second),
		},
		cookie: cookieConfig{
			name:   envString("CART_COOKIE_NAME", "cart"),
			secure: envBool("CART_COOKIE_SECURE", true),
			maxAge: envDuration("CART_COOKIE_MAX_AGE", 30*24*time.Hour),
		},
		rateLimiter: LoadRateLimiterConfig(),
	}
}
