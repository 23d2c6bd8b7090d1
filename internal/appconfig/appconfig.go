// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mwiater/coachrag/internal/rag"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultRequestTimeout is the default timeout for provider requests.
	defaultRequestTimeout = 120 * time.Second
	// defaultListenAddr is where `serve` listens when none is configured.
	defaultListenAddr = ":8080"

	EmbedderOpenAI = "openai"
	EmbedderHash   = "hash"
)

// Config represents the top-level application configuration.
type Config struct {
	CorpusPath        string   `json:"corpusPath" mapstructure:"corpusPath"`
	IndexLocation     string   `json:"indexLocation" mapstructure:"indexLocation"`
	AllowedExtensions []string `json:"allowedExtensions" mapstructure:"allowedExtensions"`
	ExcludeGlobs      []string `json:"excludeGlobs,omitempty" mapstructure:"excludeGlobs"`

	ChunkSizeChars    int    `json:"chunkSize" mapstructure:"chunkSize"`
	ChunkOverlapChars int    `json:"chunkOverlap" mapstructure:"chunkOverlap"`
	TopK              int    `json:"topK" mapstructure:"topK"`
	ContextTokenLimit int    `json:"contextTokenLimit,omitempty" mapstructure:"contextTokenLimit"`
	Similarity        string `json:"similarity" mapstructure:"similarity"`

	Embedder           string  `json:"embedder" mapstructure:"embedder"`
	HashDimension      int     `json:"hashDimension,omitempty" mapstructure:"hashDimension"`
	BaseURL            string  `json:"baseURL" mapstructure:"baseURL"`
	APIKey             string  `json:"apiKey,omitempty" mapstructure:"apiKey"`
	EmbeddingModel     string  `json:"embeddingModel" mapstructure:"embeddingModel"`
	EmbeddingDimension int     `json:"embeddingDimension,omitempty" mapstructure:"embeddingDimension"`
	ChatModel          string  `json:"chatModel" mapstructure:"chatModel"`
	Temperature        float64 `json:"temperature" mapstructure:"temperature"`
	Coaching           bool    `json:"coaching" mapstructure:"coaching"`

	ExtractConcurrency     int     `json:"extractConcurrency" mapstructure:"extractConcurrency"`
	EmbedConcurrency       int     `json:"embedConcurrency" mapstructure:"embedConcurrency"`
	EmbedBatchSize         int     `json:"embedBatchSize" mapstructure:"embedBatchSize"`
	EmbedRequestsPerSecond float64 `json:"embedRequestsPerSecond" mapstructure:"embedRequestsPerSecond"`
	EmbedRetries           int     `json:"embedRetries" mapstructure:"embedRetries"`
	TimeoutSeconds         int     `json:"timeout,omitempty" mapstructure:"timeout"`

	ListenAddr  string `json:"listen,omitempty" mapstructure:"listen"`
	MetricsFile string `json:"metricsFile,omitempty" mapstructure:"metricsFile"`
	AWSRegion  string `json:"awsRegion,omitempty" mapstructure:"awsRegion"`
	S3Bucket   string `json:"s3Bucket,omitempty" mapstructure:"s3Bucket"`
	S3Prefix   string `json:"s3Prefix,omitempty" mapstructure:"s3Prefix"`

	Debug      bool   `json:"debug" mapstructure:"debug"`
	LogFile    string `json:"logFile,omitempty" mapstructure:"logFile"`
	ConfigPath string `json:"-" mapstructure:"-"`
}

// Defaults returns the configuration used when no file or flag overrides a key.
func Defaults() Config {
	return Config{
		CorpusPath:             "data",
		IndexLocation:          "index",
		AllowedExtensions:      []string{".pdf", ".txt", ".md"},
		ChunkSizeChars:         rag.DefaultChunkSize,
		ChunkOverlapChars:      rag.DefaultChunkOverlap,
		TopK:                   rag.DefaultTopK,
		Similarity:             string(rag.MetricCosine),
		Embedder:               EmbedderOpenAI,
		BaseURL:                "https://api.openai.com/v1",
		EmbeddingModel:         "text-embedding-3-small",
		ChatModel:              "gpt-4o-mini",
		Temperature:            0,
		Coaching:               true,
		ExtractConcurrency:     4,
		EmbedConcurrency:       4,
		EmbedBatchSize:         16,
		EmbedRequestsPerSecond: 5,
		EmbedRetries:           3,
		TimeoutSeconds:         int(defaultRequestTimeout.Seconds()),
		ListenAddr:             defaultListenAddr,
	}
}

// DefaultValues returns Defaults keyed by configuration name, for seeding viper.
func DefaultValues() map[string]any {
	data, err := json.Marshal(Defaults())
	if err != nil {
		return map[string]any{}
	}
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return map[string]any{}
	}
	return values
}

// RequestTimeout returns the timeout for a single provider request, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ChunkSize returns the maximum chunk length in characters.
func (c Config) ChunkSize() int {
	if c.ChunkSizeChars <= 0 {
		return rag.DefaultChunkSize
	}
	return c.ChunkSizeChars
}

// ChunkOverlap returns the chunk overlap in characters. Negative values read as zero.
func (c Config) ChunkOverlap() int {
	if c.ChunkOverlapChars < 0 {
		return 0
	}
	return c.ChunkOverlapChars
}

// TopKOrDefault returns the number of chunks retrieved per question.
func (c Config) TopKOrDefault() int {
	if c.TopK <= 0 {
		return rag.DefaultTopK
	}
	return c.TopK
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "coachrag.log"
}

// Listen returns the HTTP listen address.
func (c Config) Listen() string {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return defaultListenAddr
	}
	return c.ListenAddr
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkOverlap() >= c.ChunkSize() {
		errs = append(errs, fmt.Errorf("chunkOverlap (%d) must be smaller than chunkSize (%d)", c.ChunkOverlap(), c.ChunkSize()))
	}
	if _, err := rag.ParseMetric(c.Similarity); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Embedder)) {
	case "", EmbedderOpenAI, EmbedderHash:
	default:
		errs = append(errs, fmt.Errorf("unknown embedder %q (want %q or %q)", c.Embedder, EmbedderOpenAI, EmbedderHash))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f is outside [0, 2]", c.Temperature))
	}
	if c.EmbedRequestsPerSecond < 0 {
		errs = append(errs, errors.New("embedRequestsPerSecond must not be negative"))
	}
	if strings.TrimSpace(c.IndexLocation) == "" {
		errs = append(errs, errors.New("indexLocation is required"))
	}
	return errors.Join(errs...)
}

// UsesHashEmbedder reports whether the offline hashing embedder is selected.
func (c Config) UsesHashEmbedder() bool {
	return strings.EqualFold(strings.TrimSpace(c.Embedder), EmbedderHash)
}

// Load reads the application configuration from path on top of Defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration in %q: %w", path, err)
	}
	config.ConfigPath = path
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	config := Defaults()
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}
	return config, nil
}
