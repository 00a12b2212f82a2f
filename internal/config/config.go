package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// OutcomeRecordTimeout is how long a worker may spend recording an attempt's outcome after
// the attempt ends. The lease must outlast task_timeout plus this window.
const OutcomeRecordTimeout = 10 * time.Second

// Config represents the application configuration
type Config struct {
	Server struct {
		Port         int           `yaml:"port" default:"8080"`
		Host         string        `yaml:"host" default:"0.0.0.0"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
		IdleTimeout  time.Duration `yaml:"idle_timeout" default:"60s"`

		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Workers struct {
		Count     int `yaml:"count" default:"1"`
		RateLimit int `yaml:"rate_limit" default:"0"` // outbound reasoning calls per minute, 0 = unlimited
		RateBurst int `yaml:"rate_burst" default:"5"`
	} `yaml:"workers"`

	Pipeline struct {
		MaxConcurrency    int           `yaml:"max_concurrency" default:"10"`
		ExtractionTimeout time.Duration `yaml:"extraction_timeout" default:"60s"`
		EvaluationTimeout time.Duration `yaml:"evaluation_timeout" default:"120s"`
		MinTextLength     int           `yaml:"min_text_length" default:"10"`
	} `yaml:"pipeline"`

	Queue struct {
		Backend      string        `yaml:"backend" default:"redis"` // redis | memory
		KeyPrefix    string        `yaml:"key_prefix" default:"screening"`
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		BackoffBase  time.Duration `yaml:"backoff_base" default:"5s"`
		PollTimeout  time.Duration `yaml:"poll_timeout" default:"2s"`
		LeaseTimeout time.Duration `yaml:"lease_timeout" default:"30m"`
		TaskTimeout  time.Duration `yaml:"task_timeout" default:"20m"`
	} `yaml:"queue"`

	Redis struct {
		URL      string        `yaml:"url" default:"redis://localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db" default:"0"`
		Timeout  time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"redis"`

	LLM struct {
		Provider    string        `yaml:"provider" default:"claude"`
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model" default:"claude-3-5-haiku-latest"`
		MaxTokens   int           `yaml:"max_tokens" default:"4096"`
		Temperature float32       `yaml:"temperature" default:"0.1"`
		Timeout     time.Duration `yaml:"timeout" default:"120s"`
	} `yaml:"llm"`

	Evaluation struct {
		Mode               string  `yaml:"mode" default:"llm"` // llm | heuristic
		ShortlistThreshold float64 `yaml:"shortlist_threshold" default:"70"`
		ReviewThreshold    float64 `yaml:"review_threshold" default:"50"`
	} `yaml:"evaluation"`

	Database struct {
		Driver          string        `yaml:"driver" default:"postgres"` // postgres | memory
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
		AutoMigrate     bool          `yaml:"auto_migrate" default:"true"`
	} `yaml:"database"`

	Documents struct {
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"30s"`
		MaxBytes     int64         `yaml:"max_bytes" default:"10485760"`
		UserAgent    string        `yaml:"user_agent"`
		// locators that are not URLs are resolved against this base
		StorageBaseURL string `yaml:"storage_base_url"`
	} `yaml:"documents"`

	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`

		Adapters []struct {
			Name    string                 `yaml:"name"`
			Type    string                 `yaml:"type"`
			Enabled bool                   `yaml:"enabled"`
			Options map[string]interface{} `yaml:"options"`
		} `yaml:"adapters"`
	} `yaml:"logging"`
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep unresolved references visible
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[1:]); val != "" {
			return val
		}
		return match
	})

	return s
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	config := &Config{}

	config.Server.Port = 8080
	config.Server.Host = "0.0.0.0"
	config.Server.ReadTimeout = 30 * time.Second
	config.Server.WriteTimeout = 30 * time.Second
	config.Server.IdleTimeout = 60 * time.Second

	config.Workers.Count = 1
	config.Workers.RateBurst = 5

	config.Pipeline.MaxConcurrency = 10
	config.Pipeline.ExtractionTimeout = 60 * time.Second
	config.Pipeline.EvaluationTimeout = 120 * time.Second
	config.Pipeline.MinTextLength = 10

	config.Queue.Backend = "redis"
	config.Queue.KeyPrefix = "screening"
	config.Queue.MaxAttempts = 3
	config.Queue.BackoffBase = 5 * time.Second
	config.Queue.PollTimeout = 2 * time.Second
	config.Queue.LeaseTimeout = 30 * time.Minute
	config.Queue.TaskTimeout = 20 * time.Minute

	config.Redis.URL = "redis://localhost:6379"
	config.Redis.Timeout = 5 * time.Second

	config.LLM.Provider = "claude"
	config.LLM.Model = "claude-3-5-haiku-latest"
	config.LLM.MaxTokens = 4096
	config.LLM.Temperature = 0.1
	config.LLM.Timeout = 120 * time.Second

	config.Evaluation.Mode = "llm"
	config.Evaluation.ShortlistThreshold = 70
	config.Evaluation.ReviewThreshold = 50

	config.Database.Driver = "postgres"
	config.Database.MaxOpenConns = 10
	config.Database.MaxIdleConns = 5
	config.Database.ConnMaxLifetime = 30 * time.Minute
	config.Database.AutoMigrate = true

	config.Documents.FetchTimeout = 30 * time.Second
	config.Documents.MaxBytes = 10 << 20
	config.Documents.UserAgent = "screening-pipeline/1.0 (+document-fetcher)"

	config.Logging.Level = "info"
	config.Logging.Format = "json"
	config.Logging.Output = "stdout"

	return config
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			yamlContent := expandEnvVars(string(data))

			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	config.loadFromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	switch c.Evaluation.Mode {
	case "llm", "heuristic":
	default:
		return fmt.Errorf("invalid evaluation mode %q: expected llm or heuristic", c.Evaluation.Mode)
	}
	switch c.Queue.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("invalid queue backend %q: expected redis or memory", c.Queue.Backend)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid database driver %q: expected postgres or memory", c.Database.Driver)
	}
	if c.Pipeline.MaxConcurrency <= 0 {
		return fmt.Errorf("pipeline.max_concurrency must be positive, got %d", c.Pipeline.MaxConcurrency)
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be positive, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.TaskTimeout <= 0 {
		return fmt.Errorf("queue.task_timeout must be positive, got %s", c.Queue.TaskTimeout)
	}
	if c.Queue.TaskTimeout+OutcomeRecordTimeout >= c.Queue.LeaseTimeout {
		return fmt.Errorf("queue.lease_timeout (%s) must exceed task_timeout (%s) by more than %s",
			c.Queue.LeaseTimeout, c.Queue.TaskTimeout, OutcomeRecordTimeout)
	}
	if c.Evaluation.ReviewThreshold > c.Evaluation.ShortlistThreshold {
		return fmt.Errorf("evaluation.review_threshold (%.1f) exceeds shortlist_threshold (%.1f)",
			c.Evaluation.ReviewThreshold, c.Evaluation.ShortlistThreshold)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		c.Server.Host = host
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	if apiKey := os.Getenv("LLM_API_KEY"); apiKey != "" {
		c.LLM.APIKey = apiKey
	}

	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}

	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if mode := os.Getenv("EVALUATION_MODE"); mode != "" {
		c.Evaluation.Mode = strings.ToLower(mode)
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		c.Logging.Format = logFormat
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}

	if storageURL := os.Getenv("DOCUMENT_STORAGE_BASE_URL"); storageURL != "" {
		c.Documents.StorageBaseURL = storageURL
	}

	if backend := os.Getenv("QUEUE_BACKEND"); backend != "" {
		c.Queue.Backend = backend
	}

	if maxAttempts := os.Getenv("QUEUE_MAX_ATTEMPTS"); maxAttempts != "" {
		if n, err := strconv.Atoi(maxAttempts); err == nil {
			c.Queue.MaxAttempts = n
		}
	}

	if backoff := os.Getenv("QUEUE_BACKOFF_BASE"); backoff != "" {
		if d, err := time.ParseDuration(backoff); err == nil {
			c.Queue.BackoffBase = d
		}
	}

	if concurrency := os.Getenv("PIPELINE_MAX_CONCURRENCY"); concurrency != "" {
		if n, err := strconv.Atoi(concurrency); err == nil {
			c.Pipeline.MaxConcurrency = n
		}
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.URL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.Redis.Password = redisPassword
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			c.Redis.DB = db
		}
	}

	if redisTimeout := os.Getenv("REDIS_TIMEOUT"); redisTimeout != "" {
		if timeout, err := time.ParseDuration(redisTimeout); err == nil {
			c.Redis.Timeout = timeout
		}
	}

	c.loadLoggingAdapterEnvVars()
}

// loadLoggingAdapterEnvVars loads environment variables for logging adapters
func (c *Config) loadLoggingAdapterEnvVars() {
	for i := range c.Logging.Adapters {
		adapter := &c.Logging.Adapters[i]

		switch adapter.Type {
		case "file":
			if path := os.Getenv("LOG_FILE_PATH"); path != "" {
				if adapter.Options == nil {
					adapter.Options = make(map[string]interface{})
				}
				adapter.Options["file_path"] = path
			}
		case "stdout", "console":
			if color := os.Getenv("LOG_COLOR"); color != "" {
				if adapter.Options == nil {
					adapter.Options = make(map[string]interface{})
				}
				adapter.Options["colorize"] = color == "true" || color == "1"
			}
		}
	}
}
