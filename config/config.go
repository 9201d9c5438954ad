package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is loaded once at startup and treated as immutable: every
// component receives the pieces it needs at construction instead of
// reading ambient state.
type Config struct {
	DatabaseURL string
	OpsDBPath   string
	LogLevel    string
	Scraper     ScraperConfig
	Schedule    ScheduleConfig
	Geocoder    GeocoderConfig
	City        CityConfig
	Sites       map[string]*SiteConfig
}

type ScraperConfig struct {
	MinDelayMS int
	MaxDelayMS int
}

type ScheduleConfig struct {
	// Wall-clock "HH:MM" triggers for the ingestion pipeline and the
	// nightly janitor.
	PipelineTimes []string
	JanitorTime   string
}

type GeocoderConfig struct {
	// UserAgent identifies us to Nominatim. Empty disables geocoding
	// entirely (the resolver falls through to the city centroid).
	UserAgent string
}

// SiteConfig describes one (platform, transaction-type) scrape target,
// loaded from config/sites/*.yaml.
type SiteConfig struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Handler         string   `yaml:"handler"` // "json" or "browser"
	Platform        string   `yaml:"platform"`
	TransactionType string   `yaml:"transaction_type"`
	ResultsURL      string   `yaml:"results_url"`
	DetailURLPrefix string   `yaml:"detail_url_prefix"`
	Soft404Phrases  []string `yaml:"soft404_phrases"`
	RateLimitMS     int      `yaml:"rate_limit_ms"`
}

// CityConfig carries the centroid and the named-zone coordinate table
// from config/zones.yaml.
type CityConfig struct {
	Name  string               `yaml:"name"`
	Lat   float64              `yaml:"lat"`
	Lng   float64              `yaml:"lng"`
	Zones map[string]ZonePoint `yaml:"zones"`
}

type ZonePoint struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		OpsDBPath:   getEnv("OPS_DB_PATH", "pipeline.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Scraper: ScraperConfig{
			MinDelayMS: getEnvInt("SCRAPE_MIN_DELAY_MS", 1000),
			MaxDelayMS: getEnvInt("SCRAPE_MAX_DELAY_MS", 2500),
		},
		Schedule: ScheduleConfig{
			PipelineTimes: splitTimes(getEnv("PIPELINE_TIMES", "08:00,12:00,18:00,22:00")),
			JanitorTime:   getEnv("JANITOR_TIME", "04:00"),
		},
		Geocoder: GeocoderConfig{
			UserAgent: os.Getenv("NOMINATIM_USER_AGENT"),
		},
		Sites: make(map[string]*SiteConfig),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.loadZones("config/zones.yaml"); err != nil {
		return nil, err
	}
	if err := cfg.loadSiteConfigs("config/sites"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadZones(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read zones config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c.City); err != nil {
		return fmt.Errorf("parse zones config: %w", err)
	}
	if c.City.Name == "" {
		return fmt.Errorf("zones config: city name missing")
	}
	return nil
}

func (c *Config) loadSiteConfigs(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if site.ID == "" {
			return fmt.Errorf("%s: site id missing", entry.Name())
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

func splitTimes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
