package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the gRPC listener

	Env   string // "dev" | "prod"
	Store string // "sqlite" | "postgres" | "memory"

	// DB
	DBPath      string // e.g. "./data/checkin.db"
	PostgresDSN string
	SeedFile    string // YAML fixture; empty uses the built-in dev fixture

	// Staff auth
	JWTSecret        string
	RequireStaffAuth bool

	// Scanner rate limit, per device. 0 disables.
	ScanRatePerSec float64
	ScanBurst      int

	AuditTimeout time.Duration

	// Audit reconciliation
	ReconcileIntervalMin int // 0 disables the background loop
	ReconcileBackfill    bool
}

// LoadDotenv reads .env files into the process environment. Variables
// already set win. A missing file is not an error.
func LoadDotenv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func FromEnv() Config {
	env := strings.ToLower(getenvDefault("CHECKIN_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	st := strings.ToLower(getenvDefault("CHECKIN_STORE", "sqlite"))
	switch st {
	case "sqlite", "postgres", "memory":
	default:
		st = "sqlite"
	}

	return Config{
		HTTPAddr: getenvDefault("CHECKIN_HTTP_ADDR", ":8080"),
		GRPCAddr: getenvDefault("CHECKIN_GRPC_ADDR", ":9090"),

		Env:   env,
		Store: st,

		DBPath:      getenvDefault("CHECKIN_DB_PATH", "./data/checkin.db"),
		PostgresDSN: os.Getenv("CHECKIN_POSTGRES_DSN"),
		SeedFile:    os.Getenv("CHECKIN_SEED_FILE"),

		JWTSecret:        os.Getenv("CHECKIN_JWT_SECRET"),
		RequireStaffAuth: getenvBool("CHECKIN_REQUIRE_STAFF_AUTH", env == "prod"),

		ScanRatePerSec: getenvFloat("CHECKIN_SCAN_RATE_PER_SEC", 5),
		ScanBurst:      getenvInt("CHECKIN_SCAN_BURST", 10),

		AuditTimeout: time.Duration(getenvInt("CHECKIN_AUDIT_TIMEOUT_MS", 2000)) * time.Millisecond,

		ReconcileIntervalMin: getenvInt("CHECKIN_RECONCILE_INTERVAL_MIN", 15),
		ReconcileBackfill:    getenvBool("CHECKIN_RECONCILE_BACKFILL", false),
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}
