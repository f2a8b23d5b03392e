package cfg

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmpOr(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/hasici.sqlite" description:"SQLite database file"`

	// Sources
	FeedsDir      string        `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing source configuration files"`
	FeedURL       string        `long:"feed-url" env:"FEED_URL" description:"Incident feed URL used when no source files are present"`
	Relays        []string      `long:"relay" env:"FEED_RELAYS" env-delim:"," description:"Relay URL template with {url} or {url_escaped}, tried after the direct URL"`
	InsecureHosts []string      `long:"insecure-host" env:"INSECURE_HOSTS" env-delim:"," description:"Hosts fetched with relaxed TLS certificate validation"`
	GUIDPrefix    string        `long:"guid-prefix" env:"GUID_PREFIX" description:"Prefix stripped from item guids of the default source"`
	FetchTimeout  time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"20s" description:"Timeout of a single fetch attempt"`
	Timezone      string        `long:"timezone" env:"FEED_TIMEZONE" default:"Europe/Prague" description:"Civil timezone of local times in the feed"`

	// Geocoding
	GeocodeEnabled bool          `long:"geocode" env:"GEOCODE_ENABLED" description:"Geocode places after each ingest run"`
	GeocodeURL     string        `long:"geocode-url" env:"GEOCODE_URL" default:"https://nominatim.openstreetmap.org/search" description:"Nominatim search endpoint"`
	GeocodeLimit   int           `long:"geocode-limit" env:"GEOCODE_LIMIT" default:"5" description:"Maximum geocode lookups per run"`
	GeocodeDelay   time.Duration `long:"geocode-delay" env:"GEOCODE_DELAY" default:"1100ms" description:"Minimum delay between geocode lookups"`
	GeocodeCountry string        `long:"geocode-country" env:"GEOCODE_COUNTRY" default:"cz" description:"Country code hint for geocoding"`

	// HTTP server and scheduler
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://hasici.example.cz)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"1" description:"Number of background ingest workers"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"30" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for mutating endpoints (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"hasici-feed/1.0 (+https://github.com/lysyi3m/hasici-feed)" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Log output format"`
}

// Load parses flags and environment. It returns nil, nil when help was
// requested.
func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:            raw.DBPath,
		FeedsDir:          raw.FeedsDir,
		FeedURL:           strings.TrimSpace(raw.FeedURL),
		Relays:            compact(raw.Relays),
		InsecureHosts:     compact(raw.InsecureHosts),
		GUIDPrefix:        raw.GUIDPrefix,
		FetchTimeout:      raw.FetchTimeout,
		Timezone:          raw.Timezone,
		GeocodeEnabled:    raw.GeocodeEnabled,
		GeocodeURL:        raw.GeocodeURL,
		GeocodeLimit:      raw.GeocodeLimit,
		GeocodeDelay:      raw.GeocodeDelay,
		GeocodeCountry:    raw.GeocodeCountry,
		Port:              raw.Port,
		BaseUrl:           strings.TrimSuffix(raw.BaseUrl, "/"),
		WorkerCount:       raw.WorkerCount,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		UserAgent:         raw.UserAgent,
		Debug:             raw.Debug,
		LogFormat:         raw.LogFormat,
		Version:           GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.GeocodeLimit < 1 {
		return fmt.Errorf("geocode limit must be at least 1, set GEOCODE_ENABLED=false to turn geocoding off")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.SchedulerInterval < 1 {
		return fmt.Errorf("scheduler interval must be at least 1 second")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// cmpOr returns the first of its arguments that is not the zero value
// (same semantics as cmp.Or, which requires Go 1.22).
func cmpOr[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}
