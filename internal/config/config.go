package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/CityPulse/internal/article"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrNoConfig is returned when no config file can be found.
var ErrNoConfig = errors.New("no config file found")

type Config struct {
	Locale      Locale      `yaml:"locale"`
	Sources     Sources     `yaml:"sources"`
	Aggregation Aggregation `yaml:"aggregation"`
	Output      Output      `yaml:"output"`
	Server      Server      `yaml:"server"`
	Schedule    Schedule    `yaml:"schedule"`
	Logging     Logging     `yaml:"logging"`
}

// Locale describes the area the aggregator is tuned for.
type Locale struct {
	Names         []string `yaml:"names"`
	Aliases       []string `yaml:"aliases"`
	Neighborhoods []string `yaml:"neighborhoods"`
	Outlets       []string `yaml:"outlets"`
	Organizations []string `yaml:"organizations"`
	Timezone      string   `yaml:"timezone"`
}

type Sources struct {
	Feeds      []Feed           `yaml:"feeds"`
	Reddit     RedditConfig     `yaml:"reddit"`
	HackerNews HackerNewsConfig `yaml:"hackernews"`
	NewsAPI    NewsAPIConfig    `yaml:"newsapi"`
}

// Feed is one syndication feed. An empty Category means "infer from content".
type Feed struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Parser   string `yaml:"parser"` // "tolerant" (default) or "strict"
	Enabled  *bool  `yaml:"enabled"`
	Priority int    `yaml:"priority"`
	MaxItems int    `yaml:"max_items"`
}

// IsEnabled reports whether the feed is enabled. Feeds default to enabled.
func (f Feed) IsEnabled() bool {
	return f.Enabled == nil || *f.Enabled
}

type RedditConfig struct {
	Enabled        bool     `yaml:"enabled"`
	BaseURL        string   `yaml:"base_url"`
	Communities    []string `yaml:"communities"`
	Sort           string   `yaml:"sort"`
	Limit          int      `yaml:"limit"`
	MinScore       int      `yaml:"min_score"`
	MinTitleLength int      `yaml:"min_title_length"`
	Delay          string   `yaml:"delay"`
	Category       string   `yaml:"category"`
	Priority       int      `yaml:"priority"`
}

type HackerNewsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	MaxStories     int    `yaml:"max_stories"`
	BatchSize      int    `yaml:"batch_size"`
	Category       string `yaml:"category"`
	Priority       int    `yaml:"priority"`
	EnrichSnippets bool   `yaml:"enrich_snippets"`
}

type NewsAPIConfig struct {
	Enabled      bool              `yaml:"enabled"`
	BaseURL      string            `yaml:"base_url"`
	APIKeyEnv    string            `yaml:"api_key_env"`
	DailyLimit   int               `yaml:"daily_limit"`
	SafetyMargin int               `yaml:"safety_margin"`
	Language     string            `yaml:"language"`
	PageSize     int               `yaml:"page_size"`
	Priority     int               `yaml:"priority"`
	Queries      map[string]string `yaml:"queries"`
}

// APIKey returns the key from the configured environment variable.
func (n NewsAPIConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(n.APIKeyEnv))
}

type Aggregation struct {
	Limit          int    `yaml:"limit"`
	DaysBack       int    `yaml:"days_back"`
	MinPerCategory int    `yaml:"min_per_category"`
	Timeout        string `yaml:"timeout"`
}

type Output struct {
	DataDir  string `yaml:"data_dir"`
	KeepRuns int    `yaml:"keep_runs"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Schedule struct {
	Cron string `yaml:"cron"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for citypulse.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "citypulse")
}

// DataDir returns the XDG data directory for citypulse.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "citypulse")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > $XDG_CONFIG_HOME/citypulse/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"%w; searched:\n  %s\n  ./config.yaml\n\nRun 'citypulse init' to create a default config",
		ErrNoConfig, xdgConfig,
	)
}

// LoadEnv loads .env files from the working directory and the config
// directory. Existing environment variables win; missing files are ignored.
func LoadEnv() {
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(ConfigDir(), ".env"))
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Locale: Locale{
			Names:         []string{"San Francisco"},
			Aliases:       []string{"Bay Area"},
			Neighborhoods: defaultNeighborhoods,
			Outlets:       defaultOutlets,
			Organizations: defaultOrganizations,
			Timezone:      "America/Los_Angeles",
		},
		Sources: Sources{
			Reddit: RedditConfig{
				Enabled:        true,
				BaseURL:        "https://www.reddit.com",
				Communities:    []string{"sanfrancisco", "bayarea"},
				Sort:           "hot",
				Limit:          25,
				MinScore:       10,
				MinTitleLength: 15,
				Delay:          "2s",
			},
			HackerNews: HackerNewsConfig{
				Enabled:    true,
				BaseURL:    "https://hacker-news.firebaseio.com/v0",
				MaxStories: 200,
				BatchSize:  20,
				Category:   "tech",
			},
			NewsAPI: NewsAPIConfig{
				Enabled:      true,
				BaseURL:      "https://newsapi.org/v2/everything",
				APIKeyEnv:    "NEWSAPI_KEY",
				DailyLimit:   100,
				SafetyMargin: 5,
				Language:     "en",
				PageSize:     20,
			},
		},
		Aggregation: Aggregation{
			Limit:          20,
			DaysBack:       3,
			MinPerCategory: 3,
			Timeout:        "15s",
		},
		Output:   Output{KeepRuns: 30},
		Server:   Server{Port: 8000},
		Schedule: Schedule{Cron: "0 */2 * * *"},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	for i, f := range c.Sources.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("sources.feeds[%d]: url is required", i)
		}
		if err := checkCategory(f.Category); err != nil {
			return fmt.Errorf("sources.feeds[%d] (%s): %w", i, f.URL, err)
		}
		switch f.Parser {
		case "", "tolerant", "strict":
		default:
			return fmt.Errorf("sources.feeds[%d] (%s): unknown parser %q", i, f.URL, f.Parser)
		}
	}
	if err := checkCategory(c.Sources.Reddit.Category); err != nil {
		return fmt.Errorf("sources.reddit: %w", err)
	}
	if err := checkCategory(c.Sources.HackerNews.Category); err != nil {
		return fmt.Errorf("sources.hackernews: %w", err)
	}
	for cat := range c.Sources.NewsAPI.Queries {
		if _, err := article.ParseCategory(cat); err != nil {
			return fmt.Errorf("sources.newsapi.queries: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Sources.Reddit.Delay); c.Sources.Reddit.Delay != "" && err != nil {
		return fmt.Errorf("sources.reddit.delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Aggregation.Timeout); c.Aggregation.Timeout != "" && err != nil {
		return fmt.Errorf("aggregation.timeout: %w", err)
	}
	if _, err := time.LoadLocation(c.Locale.Timezone); err != nil {
		return fmt.Errorf("locale.timezone: %w", err)
	}
	return nil
}

func checkCategory(s string) error {
	if s == "" || strings.EqualFold(s, "auto") {
		return nil
	}
	_, err := article.ParseCategory(s)
	return err
}

// Affinity converts a configured category to an article.Category. Empty and
// "auto" mean the adapter infers the category from content.
func Affinity(s string) article.Category {
	c, err := article.ParseCategory(s)
	if err != nil {
		return ""
	}
	return c
}

// RedditDelay returns the pause between community requests.
func (c *Config) RedditDelay() time.Duration {
	d, err := time.ParseDuration(c.Sources.Reddit.Delay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// RequestTimeout returns the per-call HTTP timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Aggregation.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// Location returns the locale's time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Locale.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Debug reports whether debug logging was requested.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Logging.Level, "DEBUG")
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

var defaultNeighborhoods = []string{
	"Mission District", "Tenderloin", "SoMa", "Sunset", "Richmond District",
	"Haight-Ashbury", "Castro", "Noe Valley", "Bayview", "Hunters Point",
	"Chinatown", "North Beach", "Nob Hill", "Pacific Heights", "Marina District",
	"Potrero Hill", "Dogpatch", "Bernal Heights", "Excelsior", "Presidio",
	"Hayes Valley", "Japantown", "Western Addition", "Fillmore", "Embarcadero",
	"Financial District", "Union Square", "Mission Bay", "Glen Park", "Visitacion Valley",
}

var defaultOutlets = []string{
	"SF Standard", "San Francisco Standard", "SF Chronicle", "San Francisco Chronicle",
	"SFGATE", "Mission Local", "KQED", "SF Examiner", "San Francisco Examiner",
	"48 Hills", "Hoodline", "SF Public Press", "KRON", "ABC7 News",
}

var defaultOrganizations = []string{
	"Salesforce", "Uber", "Lyft", "Airbnb", "OpenAI", "Anthropic", "Stripe",
	"Dropbox", "Pinterest", "Twitch", "Square", "Block Inc", "Slack", "Twitter",
	"Discord", "Reddit", "Instacart", "DoorDash", "Figma", "Cruise", "Waymo",
	"BART", "Muni", "SFMTA", "UCSF", "Wells Fargo",
}
