package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultAPIURL        = "http://127.0.0.1:7480"
	DefaultLogLevel      = "info"
	DefaultBackend       = BackendFS
	DefaultUploadDirName = "uploads"
	DefaultDBFileName    = ".imgstore.db"

	DefaultGeneralMaxBytes int64 = 5 * 1024 * 1024
	DefaultOwnerMaxBytes   int64 = 3 * 1024 * 1024
	DefaultUploadRate            = 20.0
	DefaultUploadBurst           = 40

	DefaultS3Bucket        = "imgstore"
	DefaultRedisTTLSeconds = 600
	DefaultRedisMaxBytes   = 1 << 20

	BackendFS       = "fs"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"

	configFileName           = ".imgstore.toml"
	configDirEnvKey          = "IMGSTORE_CONFIG_DIR"
	trustProjectConfigEnvKey = "IMGSTORE_TRUST_PROJECT_CONFIG"
	envFileEnvKey            = "IMGSTORE_ENV_FILE"
)

// DefaultAllowedExtensions is the canonical upload extension set.
var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "webp"}

// UploadConfig holds per call site size ceilings and the shared extension set.
type UploadConfig struct {
	GeneralMaxBytes   int64    `toml:"general_max_bytes" yaml:"general_max_bytes" json:"general_max_bytes"`
	OwnerMaxBytes     int64    `toml:"owner_max_bytes" yaml:"owner_max_bytes" json:"owner_max_bytes"`
	AllowedExtensions []string `toml:"allowed_extensions" yaml:"allowed_extensions" json:"allowed_extensions"`
	RatePerSecond     float64  `toml:"rate_per_second" yaml:"rate_per_second" json:"rate_per_second"`
	Burst             int      `toml:"burst" yaml:"burst" json:"burst"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	AccessKey string `toml:"access_key" yaml:"access_key" json:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"-" json:"-"`
	Bucket    string `toml:"bucket" yaml:"bucket" json:"bucket"`
	Prefix    string `toml:"prefix" yaml:"prefix" json:"prefix"`
	UseSSL    bool   `toml:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
}

// RedisConfig configures the optional read-through cache.
type RedisConfig struct {
	Address    string `toml:"address" yaml:"address" json:"address"`
	TTLSeconds int    `toml:"ttl_seconds" yaml:"ttl_seconds" json:"ttl_seconds"`
	MaxBytes   int64  `toml:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
}

// Config defines runtime configuration for imgstore.
type Config struct {
	APIURL                   string       `toml:"api_url" yaml:"api_url" json:"api_url"`
	LogLevel                 string       `toml:"log_level" yaml:"log_level" json:"log_level"`
	Backend                  string       `toml:"backend" yaml:"backend" json:"backend"`
	UploadDir                string       `toml:"upload_dir" yaml:"upload_dir" json:"upload_dir"`
	DBPath                   string       `toml:"db_path" yaml:"db_path" json:"db_path"`
	PostgresURL              string       `toml:"postgres_url" yaml:"-" json:"-"`
	AdminTokenHash           string       `toml:"admin_token_hash" yaml:"-" json:"-"`
	Uploads                  UploadConfig `toml:"uploads" yaml:"uploads" json:"uploads"`
	S3                       S3Config     `toml:"s3" yaml:"s3" json:"s3"`
	Redis                    RedisConfig  `toml:"redis" yaml:"redis" json:"redis"`
	TrustedProjectConfigPath string       `toml:"-" yaml:"-" json:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Backend:  DefaultBackend,
		Uploads: UploadConfig{
			GeneralMaxBytes:   DefaultGeneralMaxBytes,
			OwnerMaxBytes:     DefaultOwnerMaxBytes,
			AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
			RatePerSecond:     DefaultUploadRate,
			Burst:             DefaultUploadBurst,
		},
		S3: S3Config{
			Bucket: DefaultS3Bucket,
		},
		Redis: RedisConfig{
			TTLSeconds: DefaultRedisTTLSeconds,
			MaxBytes:   DefaultRedisMaxBytes,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

// loadDotEnv exports variables from a .env file without overriding ones
// already set in the process environment.
func loadDotEnv() error {
	path := strings.TrimSpace(os.Getenv(envFileEnvKey))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

var allowedKeys = []string{
	"api_url",
	"log_level",
	"backend",
	"upload_dir",
	"db_path",
	"postgres_url",
	"admin_token_hash",
	"uploads.general_max_bytes",
	"uploads.owner_max_bytes",
	"uploads.allowed_extensions",
	"uploads.rate_per_second",
	"uploads.burst",
	"s3.endpoint",
	"s3.access_key",
	"s3.secret_key",
	"s3.bucket",
	"s3.prefix",
	"s3.use_ssl",
	"redis.address",
	"redis.ttl_seconds",
	"redis.max_bytes",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "backend":
		return c.Backend, nil
	case "upload_dir":
		return c.UploadDir, nil
	case "db_path":
		return c.DBPath, nil
	case "postgres_url":
		return c.PostgresURL, nil
	case "admin_token_hash":
		return c.AdminTokenHash, nil
	case "uploads.general_max_bytes":
		return strconv.FormatInt(c.Uploads.GeneralMaxBytes, 10), nil
	case "uploads.owner_max_bytes":
		return strconv.FormatInt(c.Uploads.OwnerMaxBytes, 10), nil
	case "uploads.allowed_extensions":
		return strings.Join(c.Uploads.AllowedExtensions, ","), nil
	case "uploads.rate_per_second":
		return strconv.FormatFloat(c.Uploads.RatePerSecond, 'f', -1, 64), nil
	case "uploads.burst":
		return strconv.Itoa(c.Uploads.Burst), nil
	case "s3.endpoint":
		return c.S3.Endpoint, nil
	case "s3.access_key":
		return c.S3.AccessKey, nil
	case "s3.secret_key":
		return c.S3.SecretKey, nil
	case "s3.bucket":
		return c.S3.Bucket, nil
	case "s3.prefix":
		return c.S3.Prefix, nil
	case "s3.use_ssl":
		return strconv.FormatBool(c.S3.UseSSL), nil
	case "redis.address":
		return c.Redis.Address, nil
	case "redis.ttl_seconds":
		return strconv.Itoa(c.Redis.TTLSeconds), nil
	case "redis.max_bytes":
		return strconv.FormatInt(c.Redis.MaxBytes, 10), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files, the .env file and env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cwd, err := os.Getwd(); err == nil {
		if cfg.UploadDir == "" {
			cfg.UploadDir = filepath.Join(cwd, DefaultUploadDirName)
		}
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	cfg.normalizeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("IMGSTORE_API_URL", &cfg.APIURL)
	setString("IMGSTORE_BACKEND", &cfg.Backend)
	setString("IMGSTORE_UPLOAD_DIR", &cfg.UploadDir)
	setString("IMGSTORE_DB", &cfg.DBPath)
	setString("IMGSTORE_POSTGRES_URL", &cfg.PostgresURL)
	setString("IMGSTORE_ADMIN_TOKEN_HASH", &cfg.AdminTokenHash)
	setString("IMGSTORE_S3_ENDPOINT", &cfg.S3.Endpoint)
	setString("IMGSTORE_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setString("IMGSTORE_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setString("IMGSTORE_S3_BUCKET", &cfg.S3.Bucket)
	setString("IMGSTORE_REDIS_ADDR", &cfg.Redis.Address)

	if raw := strings.TrimSpace(os.Getenv("IMGSTORE_ALLOWED_EXTENSIONS")); raw != "" {
		cfg.Uploads.AllowedExtensions = splitCSV(raw)
	}
}

// Validate reports configuration that cannot start a backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFS, BackendSQLite, BackendPostgres, BackendS3:
	default:
		return fmt.Errorf("unknown backend %q (expected %s, %s, %s or %s)", c.Backend, BackendFS, BackendSQLite, BackendPostgres, BackendS3)
	}
	if c.Backend == BackendPostgres && strings.TrimSpace(c.PostgresURL) == "" {
		return fmt.Errorf("backend %q requires postgres_url", BackendPostgres)
	}
	if c.Backend == BackendS3 && strings.TrimSpace(c.S3.Endpoint) == "" {
		return fmt.Errorf("backend %q requires s3.endpoint", BackendS3)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.general_max_bytes", "uploads.owner_max_bytes", "redis.max_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "uploads.burst", "redis.ttl_seconds":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "uploads.rate_per_second":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative number", key)
		}
		return parsed, nil
	case "s3.use_ssl":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "uploads.allowed_extensions":
		return normalizeExtensions(splitCSV(value)), nil
	case "backend":
		switch value {
		case BackendFS, BackendSQLite, BackendPostgres, BackendS3:
			return value, nil
		default:
			return nil, fmt.Errorf("backend must be one of %s, %s, %s, %s", BackendFS, BackendSQLite, BackendPostgres, BackendS3)
		}
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Uploads.GeneralMaxBytes <= 0 {
		c.Uploads.GeneralMaxBytes = DefaultGeneralMaxBytes
	}
	if c.Uploads.OwnerMaxBytes <= 0 {
		c.Uploads.OwnerMaxBytes = DefaultOwnerMaxBytes
	}
	if c.Uploads.RatePerSecond < 0 {
		c.Uploads.RatePerSecond = 0
	}
	if c.Uploads.Burst <= 0 {
		c.Uploads.Burst = DefaultUploadBurst
	}
	c.Uploads.AllowedExtensions = normalizeExtensions(c.Uploads.AllowedExtensions)
	if len(c.Uploads.AllowedExtensions) == 0 {
		c.Uploads.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	if c.S3.Bucket == "" {
		c.S3.Bucket = DefaultS3Bucket
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = DefaultRedisTTLSeconds
	}
	if c.Redis.MaxBytes <= 0 {
		c.Redis.MaxBytes = DefaultRedisMaxBytes
	}
}

// normalizeExtensions lower-cases, strips leading dots and dedupes, keeping
// the configured order.
func normalizeExtensions(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := map[string]struct{}{}
	for _, ext := range raw {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
