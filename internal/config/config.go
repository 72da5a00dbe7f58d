package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Jobs       JobsConfig       `koanf:"jobs"`
	Transform  TransformConfig  `koanf:"transform"`
	Cloudinary CloudinaryConfig `koanf:"cloudinary"`
	Kafka      KafkaConfig      `koanf:"kafka"`
	Logging    LoggingConfig    `koanf:"logging"`
}

type ServerConfig struct {
	Port           string `koanf:"port"`
	PublicBaseURL  string `koanf:"public_base_url"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
	CORSOrigins    string `koanf:"cors_origins"`
}

type StorageConfig struct {
	OutputDir string `koanf:"output_dir"`
}

type JobsConfig struct {
	Store             string        `koanf:"store"`
	DBPath            string        `koanf:"db_path"`
	Workers           int           `koanf:"workers"`
	QueueSize         int           `koanf:"queue_size"`
	Timeout           time.Duration `koanf:"timeout"`
	Retention         time.Duration `koanf:"retention"`
	RetentionInterval time.Duration `koanf:"retention_interval"`
}

type TransformConfig struct {
	Provider string `koanf:"provider"`
}

type CloudinaryConfig struct {
	CloudName string `koanf:"cloud_name"`
	APIKey    string `koanf:"api_key"`
	APISecret string `koanf:"api_secret"`
	Folder    string `koanf:"folder"`
}

type KafkaConfig struct {
	Brokers string `koanf:"brokers"`
	Topic   string `koanf:"topic"`
}

type LoggingConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// envKeys maps the recognized environment variables onto config keys.
var envKeys = map[string]string{
	"PORT":                  "server.port",
	"PUBLIC_BASE_URL":       "server.public_base_url",
	"MAX_UPLOAD_BYTES":      "server.max_upload_bytes",
	"CORS_ORIGINS":          "server.cors_origins",
	"OUTPUT_DIR":            "storage.output_dir",
	"JOB_STORE":             "jobs.store",
	"DB_PATH":               "jobs.db_path",
	"WORKERS":               "jobs.workers",
	"QUEUE_SIZE":            "jobs.queue_size",
	"TRANSFORM_TIMEOUT":     "jobs.timeout",
	"JOB_RETENTION":         "jobs.retention",
	"RETENTION_INTERVAL":    "jobs.retention_interval",
	"TRANSFORMER":           "transform.provider",
	"CLOUDINARY_CLOUD_NAME": "cloudinary.cloud_name",
	"CLOUDINARY_API_KEY":    "cloudinary.api_key",
	"CLOUDINARY_API_SECRET": "cloudinary.api_secret",
	"CLOUDINARY_FOLDER":     "cloudinary.folder",
	"KAFKA_BROKERS":         "kafka.brokers",
	"KAFKA_TOPIC":           "kafka.topic",
	"LOG_LEVEL":             "logging.level",
	"LOG_JSON":              "logging.json",
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":             "8080",
		"server.max_upload_bytes": 15 << 20,
		"server.cors_origins":     "*",

		"storage.output_dir": "outputs",

		"jobs.store":              "memory",
		"jobs.db_path":            ":memory:",
		"jobs.workers":            5,
		"jobs.queue_size":         64,
		"jobs.timeout":            "2m",
		"jobs.retention":          "0s",
		"jobs.retention_interval": "1m",

		"transform.provider": "auto",

		"cloudinary.folder": "cartoon-uploads",

		"kafka.topic": "cartoon.jobs",

		"logging.level": "info",
	}
}

// Load reads defaults, then the YAML file at configPath (if any), then the
// environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults() {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", configPath, err)
		}
	}

	// Empty variables do not override file values.
	if err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		path, ok := envKeys[key]
		if !ok || value == "" {
			return "", nil
		}
		return path, value
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	switch c.Jobs.Store {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("jobs.store %q must be memory or sqlite", c.Jobs.Store))
	}
	if c.Jobs.Workers <= 0 {
		errs = append(errs, errors.New("jobs.workers must be positive"))
	}
	if c.Jobs.QueueSize < 0 {
		errs = append(errs, errors.New("jobs.queue_size must not be negative"))
	}
	if c.Jobs.Timeout < 0 || c.Jobs.Retention < 0 {
		errs = append(errs, errors.New("jobs durations must not be negative"))
	}
	switch c.Transform.Provider {
	case "auto", "local":
	case "cloudinary":
		if !c.Cloudinary.Enabled() {
			errs = append(errs, errors.New("transform.provider cloudinary requires cloud name, api key and api secret"))
		}
	default:
		errs = append(errs, fmt.Errorf("transform.provider %q must be auto, local or cloudinary", c.Transform.Provider))
	}
	return errors.Join(errs...)
}

// Enabled reports whether the full credential triple is present.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// BrokerList splits the comma separated broker list.
func (c KafkaConfig) BrokerList() []string {
	return splitList(c.Brokers)
}

// Origins splits the comma separated CORS origin list.
func (c ServerConfig) Origins() []string {
	return splitList(c.CORSOrigins)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
