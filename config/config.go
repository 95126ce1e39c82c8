// Package config loads the job configuration.
//
// Values are layered, later sources winning: built-in defaults, the config
// file (json5), its ".local" sibling, then environment variables. Secrets may
// additionally be pulled from AWS SSM Parameter Store, see ResolveParameters.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
)

// DefaultBaseURL is the API root the collection URLs default to.
const DefaultBaseURL = "http://127.0.0.1:8000"

// DefaultRegion is the default AWS region.
const DefaultRegion = "us-east-1"

// DefaultFile is read when no config file is given explicitly.
const DefaultFile = "etl.json5"

// IDPlaceholder is replaced by the apprenticeship id in APIConfig.ProjectsURL.
const IDPlaceholder = "{id}"

// APIConfig describes the source API.
type APIConfig struct {
	// BaseURL is only used to derive URLs left empty.
	BaseURL string `json:"base_url"`

	LoginURL           string `json:"login_url"`
	ApprenticeshipsURL string `json:"apprenticeships_url"`
	ProjectsURL        string `json:"projects_url"`
	ProgrammesURL      string `json:"programmes_url"`

	Username string `json:"username"`
	Password string `json:"password"`

	// Timeout is a Go duration ("30s"). Empty means requests never time out.
	Timeout string `json:"timeout"`

	// MaxPages bounds each paginated fetch. Zero means unbounded.
	MaxPages int `json:"max_pages"`

	DetectCursorCycles bool `json:"detect_cursor_cycles"`
}

// StorageConfig describes the S3 target.
type StorageConfig struct {
	Bucket string `json:"bucket"`
	Region string `json:"region"`

	// AccessKeyID and SecretAccessKey are static credentials. When both are
	// empty the default AWS credential chain is used.
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`

	// Endpoint overrides the S3 endpoint, e.g. for MinIO or LocalStack.
	Endpoint     string `json:"endpoint"`
	UsePathStyle bool   `json:"use_path_style"`

	// KeyPrefix is prepended to every object key.
	KeyPrefix string `json:"key_prefix"`

	// KMSKeyID enables SSE-KMS with this key.
	KMSKeyID string `json:"kms_key_id"`

	// NotifyQueueURL receives one SQS message per uploaded object.
	NotifyQueueURL string `json:"notify_queue_url"`

	// VerifyCredentials checks the credentials with STS before the run.
	VerifyCredentials bool `json:"verify_credentials"`
}

// SSMConfig names SSM parameters that override secrets. Empty names are
// skipped.
type SSMConfig struct {
	PasswordParameter        string `json:"password_parameter"`
	SecretAccessKeyParameter string `json:"secret_access_key_parameter"`
	BucketParameter          string `json:"bucket_parameter"`
}

// Config is the full job configuration.
type Config struct {
	API     APIConfig     `json:"api"`
	Storage StorageConfig `json:"storage"`
	SSM     SSMConfig     `json:"ssm"`

	// AbortOnMissingCredentials makes a missing-credentials upload failure
	// end the run like every other error. By default it is reported and the
	// run continues.
	AbortOnMissingCredentials bool `json:"abort_on_missing_credentials"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
		},
		Storage: StorageConfig{
			Region: DefaultRegion,
		},
	}
}

// Load reads the configuration. An empty path reads DefaultFile and
// tolerates its absence; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	fileCfg, err := readFile[Config](path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, fmt.Errorf("failed to merge config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.applyDerived()
	return cfg, nil
}

// applyEnv overrides values from ETL_* environment variables.
func applyEnv(cfg *Config) error {
	cfg.API.BaseURL = getEnvOrDefault("ETL_API_BASE_URL", cfg.API.BaseURL)
	cfg.API.LoginURL = getEnvOrDefault("ETL_API_LOGIN_URL", cfg.API.LoginURL)
	cfg.API.ApprenticeshipsURL = getEnvOrDefault("ETL_API_APPRENTICESHIPS_URL", cfg.API.ApprenticeshipsURL)
	cfg.API.ProjectsURL = getEnvOrDefault("ETL_API_PROJECTS_URL", cfg.API.ProjectsURL)
	cfg.API.ProgrammesURL = getEnvOrDefault("ETL_API_PROGRAMMES_URL", cfg.API.ProgrammesURL)
	cfg.API.Username = getEnvOrDefault("ETL_API_USERNAME", cfg.API.Username)
	cfg.API.Password = getEnvOrDefault("ETL_API_PASSWORD", cfg.API.Password)
	cfg.API.Timeout = getEnvOrDefault("ETL_API_TIMEOUT", cfg.API.Timeout)

	cfg.Storage.Bucket = getEnvOrDefault("ETL_STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Region = getEnvOrDefault("ETL_STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.AccessKeyID = getEnvOrDefault("ETL_STORAGE_ACCESS_KEY_ID", cfg.Storage.AccessKeyID)
	cfg.Storage.SecretAccessKey = getEnvOrDefault("ETL_STORAGE_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey)
	cfg.Storage.Endpoint = getEnvOrDefault("ETL_STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.KeyPrefix = getEnvOrDefault("ETL_STORAGE_KEY_PREFIX", cfg.Storage.KeyPrefix)
	cfg.Storage.KMSKeyID = getEnvOrDefault("ETL_STORAGE_KMS_KEY_ID", cfg.Storage.KMSKeyID)
	cfg.Storage.NotifyQueueURL = getEnvOrDefault("ETL_STORAGE_NOTIFY_QUEUE_URL", cfg.Storage.NotifyQueueURL)

	if v := os.Getenv("ETL_API_MAX_PAGES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ETL_API_MAX_PAGES %q: %w", v, err)
		}
		cfg.API.MaxPages = n
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"ETL_API_DETECT_CURSOR_CYCLES", &cfg.API.DetectCursorCycles},
		{"ETL_STORAGE_USE_PATH_STYLE", &cfg.Storage.UsePathStyle},
		{"ETL_STORAGE_VERIFY_CREDENTIALS", &cfg.Storage.VerifyCredentials},
		{"ETL_ABORT_ON_MISSING_CREDENTIALS", &cfg.AbortOnMissingCredentials},
	}
	for _, b := range bools {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", b.key, v, err)
		}
		*b.dst = parsed
	}

	return nil
}

// applyDerived fills URLs left empty from BaseURL.
func (c *Config) applyDerived() {
	base := strings.TrimRight(c.API.BaseURL, "/")
	if base == "" {
		return
	}

	if c.API.LoginURL == "" {
		c.API.LoginURL = base + "/login"
	}
	if c.API.ApprenticeshipsURL == "" {
		c.API.ApprenticeshipsURL = base + "/apprenticeships"
	}
	if c.API.ProjectsURL == "" {
		c.API.ProjectsURL = base + "/apprenticeships/" + IDPlaceholder + "/projects"
	}
	if c.API.ProgrammesURL == "" {
		c.API.ProgrammesURL = base + "/programmes"
	}
}

// TimeoutDuration parses API.Timeout. An empty value is zero.
func (a APIConfig) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid api.timeout %q: %w", a.Timeout, err)
	}
	return d, nil
}

// Validate reports every missing or malformed value at once.
func (c Config) Validate() error {
	var errs []error

	required := []struct {
		name  string
		value string
	}{
		{"api.login_url", c.API.LoginURL},
		{"api.apprenticeships_url", c.API.ApprenticeshipsURL},
		{"api.projects_url", c.API.ProjectsURL},
		{"api.programmes_url", c.API.ProgrammesURL},
		{"api.username", c.API.Username},
		{"storage.bucket", c.Storage.Bucket},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if c.API.ProjectsURL != "" && !strings.Contains(c.API.ProjectsURL, IDPlaceholder) {
		errs = append(errs, fmt.Errorf("api.projects_url must contain %s", IDPlaceholder))
	}
	if c.API.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("api.max_pages must not be negative"))
	}
	if _, err := c.API.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	// A half-set static key pair is left for the uploader to report as
	// missing credentials.

	return errors.Join(errs...)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultValue
}
