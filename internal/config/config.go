package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Zhang-Henry/paper-collection/internal/retry"
)

// ConfigPathEnv points at the YAML config file to load.
const ConfigPathEnv = "PAPER_COLLECTION_CONFIG"

const (
	openReviewEmailEnv    = "OPENREVIEW_EMAIL"
	openReviewPasswordEnv = "OPENREVIEW_PASSWORD"
	openReviewTokenEnv    = "OPENREVIEW_TOKEN"
	openAIAPIKeyEnv       = "OPENAI_API_KEY"
	openAIModelEnv        = "OPENAI_MODEL"
	databaseDSNEnv        = "DATABASE_DSN"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	OpenReview OpenReviewConfig `yaml:"openreview"`
	Collection CollectionConfig `yaml:"collection"`
	Cache      CacheConfig      `yaml:"cache"`
	Output     OutputConfig     `yaml:"output"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Retry      RetryConfig      `yaml:"retry"`
	Database   DatabaseConfig   `yaml:"database"`
}

// LoggingConfig controls console log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// OpenReviewConfig wires the remote submission API endpoints and the
// optional credential triple.
type OpenReviewConfig struct {
	BaseURLs []string `yaml:"baseUrls"`
	SiteURL  string   `yaml:"siteUrl"`
	Email    string   `yaml:"email"`
	Password string   `yaml:"password"`
	Token    string   `yaml:"token"`
}

// CollectionConfig describes what to collect and how.
type CollectionConfig struct {
	Conferences     []string `yaml:"conferences"`
	Years           []string `yaml:"years"`
	Keywords        []string `yaml:"keywords"`
	Groups          []string `yaml:"groups"`
	ForceRedownload bool     `yaml:"forceRedownload"`
	SampleCap       int      `yaml:"sampleCap"`
	RequestBudget   int      `yaml:"requestBudget"`
}

// CacheConfig roots the per-(conference, year) record sets.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// OutputConfig names the emitted CSV files.
type OutputConfig struct {
	Aggregated   string `yaml:"aggregated"`
	AllEvaluated string `yaml:"allEvaluated"`
	Relevant     string `yaml:"relevant"`
}

// ClassifierConfig defines how to contact the relevance model.
type ClassifierConfig struct {
	Endpoint          string  `yaml:"endpoint"`
	Model             string  `yaml:"model"`
	APIKey            string  `yaml:"apiKey"`
	MaxTokens         int     `yaml:"maxTokens"`
	Temperature       float64 `yaml:"temperature"`
	BatchSize         int     `yaml:"batchSize"`
	RequestsPerMinute int     `yaml:"requestsPerMinute"`
	Topic             string  `yaml:"topic"`
	Description       string  `yaml:"description"`
}

// RetryConfig parameterizes the shared backoff policy.
type RetryConfig struct {
	MaxAttempts int `yaml:"maxAttempts"`
	BaseDelayMS int `yaml:"baseDelayMs"`
	MaxDelayMS  int `yaml:"maxDelayMs"`
}

// Policy resolves the section to a retry.Policy, defaulting empty fields.
func (r RetryConfig) Policy() retry.Policy {
	policy := retry.Default()
	if r.MaxAttempts > 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(r.BaseDelayMS) * time.Millisecond
	}
	if r.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(r.MaxDelayMS) * time.Millisecond
	}
	return policy
}

// DatabaseConfig describes the optional Postgres catalog connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(openReviewEmailEnv); v != "" {
		c.OpenReview.Email = v
	}
	if v := os.Getenv(openReviewPasswordEnv); v != "" {
		c.OpenReview.Password = v
	}
	if v := os.Getenv(openReviewTokenEnv); v != "" {
		c.OpenReview.Token = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Classifier.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.Classifier.Model = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if len(override.OpenReview.BaseURLs) > 0 {
		base.OpenReview.BaseURLs = override.OpenReview.BaseURLs
	}
	if override.OpenReview.SiteURL != "" {
		base.OpenReview.SiteURL = override.OpenReview.SiteURL
	}
	if override.OpenReview.Email != "" {
		base.OpenReview.Email = override.OpenReview.Email
	}
	if override.OpenReview.Password != "" {
		base.OpenReview.Password = override.OpenReview.Password
	}
	if override.OpenReview.Token != "" {
		base.OpenReview.Token = override.OpenReview.Token
	}

	if len(override.Collection.Conferences) > 0 {
		base.Collection.Conferences = override.Collection.Conferences
	}
	if len(override.Collection.Years) > 0 {
		base.Collection.Years = override.Collection.Years
	}
	if len(override.Collection.Keywords) > 0 {
		base.Collection.Keywords = override.Collection.Keywords
	}
	if len(override.Collection.Groups) > 0 {
		base.Collection.Groups = override.Collection.Groups
	}
	if override.Collection.ForceRedownload {
		base.Collection.ForceRedownload = true
	}
	if override.Collection.SampleCap > 0 {
		base.Collection.SampleCap = override.Collection.SampleCap
	}
	if override.Collection.RequestBudget > 0 {
		base.Collection.RequestBudget = override.Collection.RequestBudget
	}

	if override.Cache.Dir != "" {
		base.Cache.Dir = override.Cache.Dir
	}

	if override.Output.Aggregated != "" {
		base.Output.Aggregated = override.Output.Aggregated
	}
	if override.Output.AllEvaluated != "" {
		base.Output.AllEvaluated = override.Output.AllEvaluated
	}
	if override.Output.Relevant != "" {
		base.Output.Relevant = override.Output.Relevant
	}

	if override.Classifier.Endpoint != "" {
		base.Classifier.Endpoint = override.Classifier.Endpoint
	}
	if override.Classifier.Model != "" {
		base.Classifier.Model = override.Classifier.Model
	}
	if override.Classifier.APIKey != "" {
		base.Classifier.APIKey = override.Classifier.APIKey
	}
	if override.Classifier.MaxTokens > 0 {
		base.Classifier.MaxTokens = override.Classifier.MaxTokens
	}
	if override.Classifier.Temperature > 0 {
		base.Classifier.Temperature = override.Classifier.Temperature
	}
	if override.Classifier.BatchSize > 0 {
		base.Classifier.BatchSize = override.Classifier.BatchSize
	}
	if override.Classifier.RequestsPerMinute > 0 {
		base.Classifier.RequestsPerMinute = override.Classifier.RequestsPerMinute
	}
	if override.Classifier.Topic != "" {
		base.Classifier.Topic = override.Classifier.Topic
	}
	if override.Classifier.Description != "" {
		base.Classifier.Description = override.Classifier.Description
	}

	if override.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.BaseDelayMS > 0 {
		base.Retry.BaseDelayMS = override.Retry.BaseDelayMS
	}
	if override.Retry.MaxDelayMS > 0 {
		base.Retry.MaxDelayMS = override.Retry.MaxDelayMS
	}

	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		OpenReview: OpenReviewConfig{
			BaseURLs: []string{
				"https://api.openreview.net",
				"https://api2.openreview.net",
			},
			SiteURL: "https://openreview.net",
		},
		Collection: CollectionConfig{
			Conferences: []string{"ICLR", "ICML", "NeurIPS"},
			Years:       []string{"2025", "2024", "2023"},
			Keywords:    []string{"Agent", "Data Synthesis", "Synthetic", "Trajectory"},
			Groups:      []string{"conference"},
		},
		Cache:  CacheConfig{Dir: "data"},
		Output: OutputConfig{
			Aggregated:   "papers.csv",
			AllEvaluated: "data/survey_relevant_papers_all_evaluated.csv",
			Relevant:     "data/survey_relevant_papers.csv",
		},
		Classifier: ClassifierConfig{
			Endpoint:          "https://api.openai.com/v1/chat/completions",
			Model:             "gpt-4o-mini",
			MaxTokens:         500,
			Temperature:       0.1,
			BatchSize:         10,
			RequestsPerMinute: 60,
			Topic:             "Agent Learning with Data Synthesis",
			Description: "A comprehensive survey on agent learning methods that utilize " +
				"data synthesis techniques: reinforcement learning agents trained on synthetic " +
				"data, multi-agent systems with synthetic trajectory generation, simulated " +
				"environments, and learning from synthetic demonstrations.",
		},
	}
}
