// Package civiltime converts feed-local wall-clock strings into UTC instants.
//
// The upstream feed writes end times as "D. <month> YYYY, HH:MM" where the month
// is a Czech genitive month name ("1. října 2026, 21:32"). The string carries no
// offset; it is local time in a fixed civil timezone whose offset depends on the
// date (CET in winter, CEST in summer for Europe/Prague).
package civiltime

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const DefaultTimezone = "Europe/Prague"

var ErrUnparsableTime = errors.New("unparsable time")

var wallClockRe = regexp.MustCompile(`^(\d{1,2})\.[\s\p{Zs}]*(\p{L}+)[\s\p{Zs}]+(\d{4}),?[\s\p{Zs}]+(\d{1,2}):(\d{2})$`)

// Keys are ASCII-folded, so "října" and "rijna" resolve to the same month.
var czechMonths = map[string]time.Month{
	"ledna":     time.January,
	"unora":     time.February,
	"brezna":    time.March,
	"dubna":     time.April,
	"kvetna":    time.May,
	"cervna":    time.June,
	"cervence":  time.July,
	"srpna":     time.August,
	"zari":      time.September,
	"rijna":     time.October,
	"listopadu": time.November,
	"prosince":  time.December,
}

// Normalizer resolves wall-clock strings in one civil timezone.
type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(timezone string) (*Normalizer, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", timezone, err)
	}
	return &Normalizer{loc: loc}, nil
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// ToUTC parses s as local time in the normalizer's timezone and returns the
// corresponding UTC instant.
//
// The fields are first read as a UTC instant, then the zone offset in effect
// at that instant is subtracted. A date in October gets CEST while a date in
// January gets CET. A wall-clock time inside the spring-forward gap resolves
// with the summer offset ("29. března 2026, 02:30" is 00:30 UTC).
func (n *Normalizer) ToUTC(s string) (time.Time, error) {
	m := wallClockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q does not match \"D. month YYYY, HH:MM\"", ErrUnparsableTime, s)
	}

	month, ok := LookupMonth(m[2])
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", ErrUnparsableTime, m[2])
	}

	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	if day < 1 || day > daysIn(month, year) || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %q is out of range", ErrUnparsableTime, s)
	}

	fields := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	_, offset := fields.In(n.loc).Zone()
	return fields.Add(-time.Duration(offset) * time.Second), nil
}

// LookupMonth maps a Czech genitive month name, with or without diacritics, to
// its month.
func LookupMonth(word string) (time.Month, bool) {
	month, ok := czechMonths[Fold(word)]
	return month, ok
}

// Fold lowercases s and strips combining marks ("Října" -> "rijna").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// DurationMinutes returns the whole minutes between start and end, or nil when
// either instant is missing or end precedes start.
func DurationMinutes(start, end *time.Time) *int {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return nil
	}
	if end.Before(*start) {
		return nil
	}
	minutes := int(math.Round(end.Sub(*start).Minutes()))
	return &minutes
}

func daysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
