package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	TargetURL       string
	ListingSelector string

	// Loader caps. Both are tunable because they trade latency for completeness.
	MaxIterations    int
	StableIterations int

	ScrollSteps  int
	ScrollPause  time.Duration
	Settle       time.Duration
	PageLoadWait time.Duration
	ClickTimeout time.Duration

	SessionTimeout time.Duration
	MaxRetries     int

	Headless  bool
	ChromeBin string
	UserAgent string

	OutputDir    string
	OutputPrefix string

	StorePostgres    bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		TargetURL:       getEnv("TARGET_URL", "https://www.cars24.com/buy-used-cars-mumbai/"),
		ListingSelector: getEnv("LISTING_SELECTOR", `a[href*="/buy-used-"][href*="-cars-"]`),

		MaxIterations:    getEnvInt("MAX_ITERATIONS", 100),
		StableIterations: getEnvInt("STABLE_ITERATIONS", 8),

		ScrollSteps:  getEnvInt("SCROLL_STEPS", 5),
		ScrollPause:  getEnvMillis("SCROLL_PAUSE_MS", 400),
		Settle:       getEnvMillis("SETTLE_MS", 1500),
		PageLoadWait: getEnvMillis("PAGE_LOAD_WAIT_MS", 5000),
		ClickTimeout: getEnvMillis("CLICK_TIMEOUT_MS", 5000),

		SessionTimeout: time.Duration(getEnvInt("SESSION_TIMEOUT_SEC", 900)) * time.Second,
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		Headless:  getEnvBool("HEADLESS", true),
		ChromeBin: getEnv("CHROME_BIN", ""),
		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),

		OutputDir:    getEnv("OUTPUT_DIR", "./output"),
		OutputPrefix: getEnv("OUTPUT_PREFIX", "car_listings"),

		StorePostgres:    getEnvBool("STORE_POSTGRES", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "cars_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
