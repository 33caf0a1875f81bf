// Package config provides configuration loading for the editor API.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dukex/decision-editor/pkg/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 3001
	DefaultBasePath      = "/api"
	DefaultLocalURL      = "memory://"
	DefaultEngineURL     = "http://localhost:3000"
	DefaultEngineTimeout = 30 * time.Second
	DefaultKeyPrefix     = "decision-editor"
)

var (
	ErrMissingBucket    = errors.New("cloud storage requires a bucket url")
	ErrMissingProjectID = errors.New("cloud storage requires a project id")
)

// Config is handed to the persistence factory and the API at construction time.
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	BasePath     string        `yaml:"base_path"`
	LogLevel     string        `yaml:"log_level"`
	CloudStorage bool          `yaml:"cloud_storage"`
	Object       ObjectStorage `yaml:"object_storage"`
	Local        LocalStorage  `yaml:"local_storage"`
	Simulation   Simulation    `yaml:"simulation"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	Tracing      bool          `yaml:"tracing"`
}

// ObjectStorage configures the cloud backend. BucketURL is s3://<bucket> or file://<dir>.
type ObjectStorage struct {
	BucketURL       string `yaml:"bucket_url"`
	ProjectID       string `yaml:"project_id"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LocalStorage configures the key-value backend. URL is memory:// or redis://...
type LocalStorage struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Simulation configures the evaluation engine forwarder.
type Simulation struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:        DefaultPort,
		BasePath:    DefaultBasePath,
		LogLevel:    "info",
		CORSOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		Local: LocalStorage{
			URL:       DefaultLocalURL,
			KeyPrefix: DefaultKeyPrefix,
		},
		Simulation: Simulation{
			BaseURL: DefaultEngineURL,
			Timeout: DefaultEngineTimeout,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return cfg, nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}

	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base path %q must start with '/'", c.BasePath)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.CloudStorage {
		if err := c.Object.validate(); err != nil {
			return err
		}
	} else if err := c.Local.validate(); err != nil {
		return err
	}

	return c.Simulation.validate()
}

func (o ObjectStorage) validate() error {
	if o.BucketURL == "" {
		return ErrMissingBucket
	}

	if o.ProjectID == "" {
		return ErrMissingProjectID
	}

	scheme, name, err := ParseBucketURL(o.BucketURL)
	if err != nil {
		return err
	}

	if name == "" {
		return fmt.Errorf("bucket url %q has no bucket name", o.BucketURL)
	}

	if scheme == "s3" && o.AccessKeyID != "" && o.SecretAccessKey == "" {
		return errors.New("access key id given without secret access key")
	}

	return nil
}

func (l LocalStorage) validate() error {
	switch scheme(l.URL) {
	case "memory", "redis", "rediss":
		return nil
	default:
		return fmt.Errorf("unsupported local storage url %q (memory://, redis://)", l.URL)
	}
}

func (s Simulation) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid evaluation engine url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("evaluation engine url %q must be http or https", s.BaseURL)
	}

	if s.Timeout <= 0 {
		return errors.New("simulation timeout must be positive")
	}

	return nil
}

// ParseBucketURL splits s3://bucket or file:///dir into scheme and bucket name or directory.
func ParseBucketURL(bucketURL string) (string, string, error) {
	s := scheme(bucketURL)

	switch s {
	case "s3", "file":
		return s, strings.TrimPrefix(bucketURL, s+"://"), nil
	default:
		return "", "", fmt.Errorf("unsupported bucket url %q (s3://, file://)", bucketURL)
	}
}

func scheme(rawURL string) string {
	s, _, found := strings.Cut(rawURL, "://")
	if !found {
		return ""
	}

	return strings.ToLower(s)
}
