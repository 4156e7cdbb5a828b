package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr    string // e.g. nsqd:4150
	LookupHTTPAddr string // e.g. http://nsqlookupd:4161
	EventsTopic    string // NSQ topic business modules publish raised events to
	RouterChannel  string // NSQ channel name for the event router consumer
}

type Retry struct {
	Base              time.Duration // backoff unit, doubled per attempt
	MaxDelay          time.Duration // cap on a single backoff delay
	JitterPercent     float64       // backoff jitter percentage (0.0-1.0)
	RetryClientErrors bool          // whether 4xx responses stay retryable
}

type Breaker struct {
	Threshold int           // consecutive failures before the circuit opens
	Cooldown  time.Duration // how long an open circuit stays open
}

type Worker struct {
	PoolSize     int           // concurrent delivery attempters
	ScanInterval time.Duration // due-delivery scan tick
	BatchSize    int           // max deliveries pulled per scan
	BreakerDelay time.Duration // deferral when the circuit is open at attempt time
}

type API struct {
	AuthSecret string // HS256 secret for management API tokens
	Issuer     string
	Audience   string
}

type Defaults struct {
	MaxAttempts int           // per-subscription default
	Timeout     time.Duration // per-subscription default attempt timeout
}

type Config struct {
	AppName   string
	HTTPPort  string // :8080
	UserAgent string // outbound User-Agent header
	DB        DB
	NSQ       NSQ
	Retry     Retry
	Breaker   Breaker
	Worker    Worker
	API       API
	Defaults  Defaults
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func FromEnv() Config {
	return Config{
		AppName:   getenv("APP_NAME", "plataforma-hooks"),
		HTTPPort:  getenv("HTTP_PORT", ":8080"),
		UserAgent: getenv("WEBHOOK_USER_AGENT", "plataforma-hooks/1.0"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hooks"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			EventsTopic:    getenv("NSQ_EVENTS_TOPIC", "events"),
			RouterChannel:  getenv("NSQ_ROUTER_CHANNEL", "router"),
		},
		Retry: Retry{
			Base:              getenvDuration("RETRY_BASE", time.Minute),
			MaxDelay:          getenvDuration("RETRY_MAX_DELAY", 24*time.Hour),
			JitterPercent:     getenvFloat("RETRY_JITTER_PCT", 0),
			RetryClientErrors: getenvBool("RETRY_CLIENT_ERRORS", true),
		},
		Breaker: Breaker{
			Threshold: getenvInt("BREAKER_THRESHOLD", 5),
			Cooldown:  getenvDuration("BREAKER_COOLDOWN", 15*time.Minute),
		},
		Worker: Worker{
			PoolSize:     getenvInt("WORKER_POOL_SIZE", 8),
			ScanInterval: getenvDuration("SCAN_INTERVAL", 5*time.Second),
			BatchSize:    getenvInt("SCAN_BATCH_SIZE", 100),
			BreakerDelay: getenvDuration("BREAKER_DELAY", 30*time.Second),
		},
		API: API{
			AuthSecret: getenv("API_AUTH_SECRET", ""),
			Issuer:     getenv("API_AUTH_ISSUER", "plataforma"),
			Audience:   getenv("API_AUTH_AUDIENCE", "plataforma-hooks"),
		},
		Defaults: Defaults{
			MaxAttempts: getenvInt("DEFAULT_MAX_ATTEMPTS", 3),
			Timeout:     getenvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
