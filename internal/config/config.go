// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for links and redirects.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding the SQL migration files.
	MigrationsPath string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// TrustedProxies lists the CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are believed. Sign-in rate limits and audit IPs depend on it.
	TrustedProxies []string

	// Auth holds authentication-related settings.
	Auth AuthConfig
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	// User is the MariaDB username (default: "pagecraft").
	User string

	// Password is the MariaDB password (default: "pagecraft").
	Password string

	// Name is the database name (default: "pagecraft").
	Name string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() so special characters in
// passwords survive.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string

	// PoolSize caps open connections; 0 keeps the go-redis default.
	PoolSize int

	// OpTimeout bounds each read and write. The route guard touches Redis on
	// every request, so a stalled server must fail fast (default: 500ms).
	OpTimeout time.Duration
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SessionTTL is the sliding session window. Every authenticated request
	// pushes expiry this far into the future (default: 7 days).
	SessionTTL time.Duration

	// CookieName is the cookie holding the session identifier.
	CookieName string

	// InsecureCookie drops the Secure attribute from the session cookie.
	// Only honored outside production, for plain-HTTP local development.
	InsecureCookie bool

	// BcryptCost is the bcrypt work factor for password hashing.
	BcryptCost int

	// AccessRules maps path prefixes to the roles allowed to reach them.
	AccessRules []AccessRule

	// SignInRateLimit is the number of sign-in attempts allowed per client
	// IP per minute (default: 10).
	SignInRateLimit int

	// Bootstrap is the admin account created at startup when the users
	// table has no account with that email. Skipped when Email is empty.
	Bootstrap BootstrapAdmin
}

// BootstrapAdmin holds the first admin's credentials.
type BootstrapAdmin struct {
	Email       string
	Password    string
	DisplayName string
}

// AccessRule is a single entry of the route guard's access table.
type AccessRule struct {
	PathPrefix string
	Roles      []string
}

// defaultAccessRules protects the page editor for moderators and admins and
// the admin area and admin API for admins only.
const defaultAccessRules = "/editor=admin|mod;/admin=admin;/api/admin=admin"

// defaultTrustedProxies covers loopback, Docker bridges, and private LANs.
var defaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fd00::/8",
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if a value is present but malformed in a way that would
// silently weaken security (bad access rules, out-of-range bcrypt cost).
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "pagecraft"),
			Password:        getEnv("DB_PASSWORD", "pagecraft"),
			Name:            getEnv("DB_NAME", "pagecraft"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379"),
			PoolSize:  getEnvInt("REDIS_POOL_SIZE", 0),
			OpTimeout: getEnvDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},

		TrustedProxies: getEnvList("TRUSTED_PROXIES", defaultTrustedProxies),

		Auth: AuthConfig{
			SessionTTL:     getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			CookieName:     getEnv("SESSION_COOKIE_NAME", "session_id"),
			InsecureCookie: getEnvBool("AUTH_INSECURE_COOKIE", false),
			BcryptCost:     getEnvInt("BCRYPT_COST", 12),

			SignInRateLimit: getEnvInt("SIGNIN_RATE_LIMIT", 10),

			Bootstrap: BootstrapAdmin{
				Email:       getEnv("ADMIN_EMAIL", ""),
				Password:    getEnv("ADMIN_PASSWORD", ""),
				DisplayName: getEnv("ADMIN_NAME", "Administrator"),
			},
		},
	}

	rules, err := ParseAccessRules(getEnv("ACCESS_RULES", defaultAccessRules))
	if err != nil {
		return nil, fmt.Errorf("parsing ACCESS_RULES: %w", err)
	}
	cfg.Auth.AccessRules = rules

	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", cfg.Auth.BcryptCost)
	}
	if cfg.Auth.SignInRateLimit <= 0 {
		return nil, fmt.Errorf("SIGNIN_RATE_LIMIT must be positive")
	}
	if cfg.Auth.Bootstrap.Email != "" && cfg.Auth.Bootstrap.Password == "" {
		return nil, fmt.Errorf("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}
	if cfg.Redis.OpTimeout <= 0 {
		return nil, fmt.Errorf("REDIS_OP_TIMEOUT must be positive")
	}
	if cfg.Auth.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive")
	}

	// Secure cookies are mandatory in production regardless of the flag.
	if cfg.IsProduction() && cfg.Auth.InsecureCookie {
		return nil, fmt.Errorf("AUTH_INSECURE_COOKIE cannot be enabled in production")
	}

	return cfg, nil
}

// accessRoles are the roles a session can carry, and so the only roles an
// access rule can grant.
var accessRoles = map[string]bool{"admin": true, "mod": true}

// ParseAccessRules parses the ACCESS_RULES format:
// "/prefix=role|role;/other=role". Empty input yields no rules. Role names
// are case-sensitive; an unknown one is an error rather than a rule that
// silently denies everyone.
func ParseAccessRules(raw string) ([]AccessRule, error) {
	var rules []AccessRule
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, roleList, ok := strings.Cut(entry, "=")
		prefix = strings.TrimSpace(prefix)
		if !ok || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("invalid access rule %q", entry)
		}

		var roles []string
		for _, r := range strings.Split(roleList, "|") {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			if !accessRoles[r] {
				return nil, fmt.Errorf("access rule %q has unknown role %q", entry, r)
			}
			roles = append(roles, r)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("access rule %q lists no roles", entry)
		}
		rules = append(rules, AccessRule{PathPrefix: prefix, Roles: roles})
	}
	return rules, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production" or "prod", case-insensitive.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// --- Helper functions for reading environment variables ---

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "168h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var. Blank entries are dropped; an
// unset variable yields the default.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
