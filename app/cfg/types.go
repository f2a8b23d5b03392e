package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// Sources
	FeedsDir      string
	FeedURL       string
	Relays        []string
	InsecureHosts []string
	GUIDPrefix    string
	FetchTimeout  time.Duration
	Timezone      string

	// Geocoding
	GeocodeEnabled bool
	GeocodeURL     string
	GeocodeLimit   int
	GeocodeDelay   time.Duration
	GeocodeCountry string

	// HTTP server and scheduler
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Debug     bool
	LogFormat string
	Version   string
}
