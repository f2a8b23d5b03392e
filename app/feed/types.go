package feed

import (
	"fmt"
	"strings"
)

// Source configuration, one YAML file per upstream feed.

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Relays   []string       `yaml:"relays"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled         bool   `yaml:"enabled"`
	RefreshInterval int    `yaml:"refresh_interval"` // seconds
	GUIDPrefix      string `yaml:"guid_prefix"`
}

// Fetch types

type FetchResult struct {
	Body   []byte
	Source string // candidate location that answered
}

type Attempt struct {
	Candidate string
	Reason    string
}

// FetchError is returned once every candidate location failed.
type FetchError struct {
	Attempts []Attempt
}

func (e *FetchError) Error() string {
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, fmt.Sprintf("%s: %s", a.Candidate, a.Reason))
	}
	return fmt.Sprintf("fetch failed after %d attempts: %s", len(e.Attempts), strings.Join(reasons, "; "))
}
