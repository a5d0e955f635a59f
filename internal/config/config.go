package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	JWT       JWTConfig       `yaml:"jwt"`
	Admin     AdminConfig     `yaml:"admin"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Upload    UploadConfig    `yaml:"upload"`
	Paywall   PaywallConfig   `yaml:"paywall"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	APNs      APNsConfig      `yaml:"apns"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// StorageConfig selects and configures the object store
type StorageConfig struct {
	Driver string    `yaml:"driver"` // "s3" or "gcs"
	AWS    AWSConfig `yaml:"aws"`
	GCS    GCSConfig `yaml:"gcs"`
}

// AWSConfig holds S3-compatible storage configuration
type AWSConfig struct {
	Region        string `yaml:"region"`
	S3Bucket      string `yaml:"s3_bucket"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Endpoint      string `yaml:"endpoint"`        // custom endpoint for S3-compatible providers
	PublicBaseURL string `yaml:"public_base_url"` // overrides the derived public URL prefix
	UsePathStyle  bool   `yaml:"use_path_style"`
}

// GCSConfig holds Google Cloud Storage configuration
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// AdminConfig holds the administrator account seeded at startup
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// WorkflowConfig toggles status workflow behaviour
type WorkflowConfig struct {
	StrictTransitions  bool `yaml:"strict_transitions"`
	ImplicitCompletion bool `yaml:"implicit_completion"`
}

// UploadConfig bounds multipart uploads
type UploadConfig struct {
	MaxFileBytes    int64 `yaml:"max_file_bytes"`
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
	MaxMemoryBytes  int64 `yaml:"max_memory_bytes"`
}

// PaywallConfig controls how processed photos are exposed to owners
type PaywallConfig struct {
	FreePreviews int     `yaml:"free_previews"`
	CheckoutURL  string  `yaml:"checkout_url"`
	PreviewBlur  float32 `yaml:"preview_blur"`
	PreviewWidth int     `yaml:"preview_width"`
}

// RateLimitConfig holds per-client rate limiting
type RateLimitConfig struct {
	RequestsPerSecond int    `yaml:"requests_per_second"`
	Burst             int    `yaml:"burst"`
	CleanupSchedule   string `yaml:"cleanup_schedule"`
}

// APNsConfig enables completion push notifications when KeyFile is set
type APNsConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used for any key the file leaves out
func Default() Config {
	return Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			MaxConns: 10,
			Migrate:  true,
		},
		Storage:  StorageConfig{Driver: "s3", AWS: AWSConfig{Region: "us-east-1"}},
		JWT:      JWTConfig{TTL: 7 * 24 * time.Hour},
		Workflow: WorkflowConfig{ImplicitCompletion: true},
		Upload: UploadConfig{
			MaxFileBytes:    15 << 20,
			MaxRequestBytes: 120 << 20,
			MaxMemoryBytes:  32 << 20,
		},
		Paywall:   PaywallConfig{FreePreviews: 1, PreviewBlur: 12, PreviewWidth: 640},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20, CleanupSchedule: "@every 10m"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file. Variables from a .env file in the
// working directory are loaded first and ${VAR} references in the YAML are expanded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Storage.Driver {
	case "s3":
		if c.Storage.AWS.S3Bucket == "" {
			return fmt.Errorf("storage.aws.s3_bucket is required")
		}
	case "gcs":
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Paywall.FreePreviews < 0 {
		return fmt.Errorf("paywall.free_previews must not be negative")
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrateURL returns the connection URL understood by the migration driver
func (c *DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
