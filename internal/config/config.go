package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abdulachik/amplibot/internal/model"
)

// State backends.
const (
	BackendFile    = "file"
	BackendSQLite  = "sqlite"
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Config holds all application configuration.
type Config struct {
	// X API
	BearerToken       string
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
	APIBaseURL        string
	APIRPS            float64
	APIBurst          int
	APIMaxRetries     int

	// Search
	Query      string
	MaxResults int

	// Actions
	PerformRetweet  bool
	PerformLike     bool
	PerformFollow   bool
	RetweetCooldown time.Duration
	LikeCooldown    time.Duration
	FollowCooldown  time.Duration

	// Loop pacing
	SearchIntervalSuccess   time.Duration
	SearchIntervalNoResults time.Duration
	SleepBetweenActions     time.Duration
	SleepIfNoActions        time.Duration
	SleepAfterAPIError      time.Duration
	RateLimitBuffer         time.Duration
	SleepAfterCriticalError time.Duration

	// Filters
	TargetLanguages  []string
	NegativeKeywords []string
	UserBlocklist    []string
	FiltersFile      string

	// State
	StateBackend string
	StateDir     string
	DatabasePath string
	LevelDBPath  string

	// Logging
	LogLevel string
	LogFile  string

	// Metrics and notifications
	MetricsAddr      string
	NotifyWebhookURL string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		BearerToken:       getEnv("X_BEARER_TOKEN", ""),
		ConsumerKey:       getEnv("X_CONSUMER_KEY", ""),
		ConsumerSecret:    getEnv("X_CONSUMER_SECRET", ""),
		AccessToken:       getEnv("X_ACCESS_TOKEN", ""),
		AccessTokenSecret: getEnv("X_ACCESS_TOKEN_SECRET", ""),
		APIBaseURL:        strings.TrimRight(getEnv("X_API_BASE_URL", "https://api.twitter.com"), "/"),
		Query:             getEnv("SEARCH_QUERY", "#alxafrica"),
		TargetLanguages:   getList("TARGET_LANGUAGES", []string{"en"}),
		NegativeKeywords: getList("NEGATIVE_KEYWORDS", []string{
			"#ignorethis", "buy now", "limited time offer", "crypto scam", "adult content", "click here for free",
		}),
		UserBlocklist:    getList("USER_BLOCKLIST", []string{"spamuser1", "ignorethisuser", "anotherbot"}),
		FiltersFile:      getEnv("FILTERS_FILE", ""),
		StateBackend:     strings.ToLower(getEnv("STATE_BACKEND", BackendFile)),
		StateDir:         getEnv("STATE_DIR", "data"),
		DatabasePath:     getEnv("DATABASE_PATH", "data/amplibot.db"),
		LevelDBPath:      getEnv("LEVELDB_PATH", "data/amplibot.ldb"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          getEnv("LOG_FILE", ""),
		MetricsAddr:      getEnv("METRICS_ADDR", ""),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
	}

	var err error

	// Parse numbers
	if cfg.APIRPS, err = strconv.ParseFloat(getEnv("X_API_RPS", "1"), 64); err != nil {
		return nil, fmt.Errorf("invalid X_API_RPS: %w", err)
	}
	ints := []struct {
		key string
		def string
		dst *int
	}{
		{"X_API_BURST", "5", &cfg.APIBurst},
		{"X_API_MAX_RETRIES", "3", &cfg.APIMaxRetries},
		{"MAX_RESULTS_PER_SEARCH", "10", &cfg.MaxResults},
	}
	for _, v := range ints {
		if *v.dst, err = strconv.Atoi(getEnv(v.key, v.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	// Parse flags
	bools := []struct {
		key string
		dst *bool
	}{
		{"PERFORM_RETWEET", &cfg.PerformRetweet},
		{"PERFORM_LIKE", &cfg.PerformLike},
		{"PERFORM_FOLLOW", &cfg.PerformFollow},
	}
	for _, v := range bools {
		if *v.dst, err = ParseBool(getEnv(v.key, "true")); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	// Parse durations
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"RETWEET_COOLDOWN", "910s", &cfg.RetweetCooldown},
		{"LIKE_COOLDOWN", "915s", &cfg.LikeCooldown},
		{"FOLLOW_COOLDOWN", "920s", &cfg.FollowCooldown},
		{"SEARCH_INTERVAL_SUCCESS", "905s", &cfg.SearchIntervalSuccess},
		{"SEARCH_INTERVAL_NO_RESULTS", "300s", &cfg.SearchIntervalNoResults},
		{"SLEEP_BETWEEN_ACTIONS", "60s", &cfg.SleepBetweenActions},
		{"SLEEP_IF_NO_ACTIONS", "10s", &cfg.SleepIfNoActions},
		{"SLEEP_AFTER_API_ERROR", "60s", &cfg.SleepAfterAPIError},
		{"RATE_LIMIT_BUFFER", "60s", &cfg.RateLimitBuffer},
		{"SLEEP_AFTER_CRITICAL_ERROR", "10s", &cfg.SleepAfterCriticalError},
	}
	for _, v := range durations {
		if *v.dst, err = ParseDuration(getEnv(v.key, v.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", v.key, err)
		}
	}

	if cfg.FiltersFile != "" {
		if err := cfg.loadFilters(cfg.FiltersFile); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// filterFile is the YAML overlay for the filter lists. A key that is present
// replaces the list, even when empty.
type filterFile struct {
	Languages        *[]string `yaml:"languages"`
	NegativeKeywords *[]string `yaml:"negative_keywords"`
	BlockedUsers     *[]string `yaml:"blocked_users"`
}

func (c *Config) loadFilters(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read filters file: %w", err)
	}

	var ff filterFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse filters file %s: %w", path, err)
	}

	if ff.Languages != nil {
		c.TargetLanguages = cleanList(*ff.Languages)
	}
	if ff.NegativeKeywords != nil {
		c.NegativeKeywords = cleanList(*ff.NegativeKeywords)
	}
	if ff.BlockedUsers != nil {
		c.UserBlocklist = cleanList(*ff.BlockedUsers)
	}
	return nil
}

// Enabled returns the per-kind action switches.
func (c *Config) Enabled() map[model.Kind]bool {
	return map[model.Kind]bool{
		model.KindRetweet: c.PerformRetweet,
		model.KindLike:    c.PerformLike,
		model.KindFollow:  c.PerformFollow,
	}
}

// Cooldowns returns the per-kind cooldown windows.
func (c *Config) Cooldowns() map[model.Kind]time.Duration {
	return map[model.Kind]time.Duration{
		model.KindRetweet: c.RetweetCooldown,
		model.KindLike:    c.LikeCooldown,
		model.KindFollow:  c.FollowCooldown,
	}
}

// HasUserContext reports whether all OAuth 1.0a user credentials are set.
func (c *Config) HasUserContext() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.AccessToken != "" && c.AccessTokenSecret != ""
}

// IsBroadQuery reports whether the query is a single bare word, which tends
// to match far more than intended.
func (c *Config) IsBroadQuery() bool {
	q := strings.TrimSpace(c.Query)
	return q != "" &&
		!strings.HasPrefix(q, "#") &&
		!strings.HasPrefix(q, "@") &&
		!strings.ContainsAny(q, " \t")
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendFile:
		if c.StateDir == "" {
			return fmt.Errorf("STATE_DIR is required for the file backend")
		}
	case BackendSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite backend")
		}
	case BackendLevelDB:
		if c.LevelDBPath == "" {
			return fmt.Errorf("LEVELDB_PATH is required for the leveldb backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid STATE_BACKEND: %s (must be file, sqlite, leveldb or memory)", c.StateBackend)
	}
	return nil
}

// ValidateForSearch checks configuration needed to run a search.
func (c *Config) ValidateForSearch() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Query) == "" {
		return fmt.Errorf("SEARCH_QUERY is required")
	}
	if c.MaxResults < 1 || c.MaxResults > 100 {
		return fmt.Errorf("MAX_RESULTS_PER_SEARCH must be between 1 and 100, got %d", c.MaxResults)
	}
	if c.BearerToken == "" && (c.ConsumerKey == "" || c.ConsumerSecret == "") {
		return fmt.Errorf("X_BEARER_TOKEN or X_CONSUMER_KEY and X_CONSUMER_SECRET are required for search")
	}
	return nil
}

// ValidateForWhoami checks the user-context credentials.
func (c *Config) ValidateForWhoami() error {
	for _, v := range []struct{ key, val string }{
		{"X_CONSUMER_KEY", c.ConsumerKey},
		{"X_CONSUMER_SECRET", c.ConsumerSecret},
		{"X_ACCESS_TOKEN", c.AccessToken},
		{"X_ACCESS_TOKEN_SECRET", c.AccessTokenSecret},
	} {
		if v.val == "" {
			return fmt.Errorf("%s is required", v.key)
		}
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForSearch(); err != nil {
		return err
	}
	if err := c.ValidateForWhoami(); err != nil {
		return err
	}

	for _, v := range []struct {
		key string
		val time.Duration
	}{
		{"RETWEET_COOLDOWN", c.RetweetCooldown},
		{"LIKE_COOLDOWN", c.LikeCooldown},
		{"FOLLOW_COOLDOWN", c.FollowCooldown},
	} {
		if v.val <= 0 {
			return fmt.Errorf("%s must be positive", v.key)
		}
	}

	for _, v := range []struct {
		key string
		val time.Duration
	}{
		{"SEARCH_INTERVAL_SUCCESS", c.SearchIntervalSuccess},
		{"SEARCH_INTERVAL_NO_RESULTS", c.SearchIntervalNoResults},
		{"SLEEP_BETWEEN_ACTIONS", c.SleepBetweenActions},
		{"SLEEP_IF_NO_ACTIONS", c.SleepIfNoActions},
		{"SLEEP_AFTER_API_ERROR", c.SleepAfterAPIError},
		{"RATE_LIMIT_BUFFER", c.RateLimitBuffer},
		{"SLEEP_AFTER_CRITICAL_ERROR", c.SleepAfterCriticalError},
	} {
		if v.val < 0 {
			return fmt.Errorf("%s must not be negative", v.key)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getList reads a comma-separated list. An unset or empty variable keeps the
// default and "-" clears the list.
func getList(key string, defaultVal []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	switch val {
	case "":
		return defaultVal
	case "-":
		return nil
	}
	return ParseList(val)
}

// ParseList splits a comma-separated list, trimming items and dropping blanks.
func ParseList(s string) []string {
	return cleanList(strings.Split(s, ","))
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseDuration accepts Go durations ("15m", "910s") and bare integers as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// ParseBool accepts strconv booleans plus y/yes/n/no.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "on":
		return true, nil
	case "n", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
