package incident

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lysyi3m/hasici-feed/app/civiltime"
)

const maxColonHeadLength = 40

var (
	lineBreakRe = regexp.MustCompile(`(?i)<br\s*/?>`)
	distanceRe  = regexp.MustCompile(`(?i)\bkm:\s*(\d+(?:[.,]\d+)?)`)
	roadRe      = regexp.MustCompile(`\b([A-Z]{1,2}\d{1,3})\b`)
)

type titleSeparator struct {
	split string
	join  string
}

var titleSeparators = []titleSeparator{
	{split: " - ", join: " - "},
	{split: " – ", join: " – "},
	{split: ":", join: ": "},
}

// Extract decomposes a feed item's title and description into Fields.
// It never fails; anything it cannot recognize is left nil.
func Extract(title, description string) Fields {
	var f Fields

	f.Category, f.Subtype, f.Place = SplitTitle(title)

	lines := DescriptionLines(description)
	f.RawDescription = strings.Join(lines, "\n")

	var remaining []string
	for _, line := range lines {
		if key, value, ok := strings.Cut(line, ":"); ok {
			switch civiltime.Fold(strings.TrimSpace(key)) {
			case "stav":
				f.Status = optional(value)
				continue
			case "ukonceni":
				f.EndTimeRaw = optional(value)
				continue
			}
		}

		if len(line) > len("okres ") && strings.EqualFold(line[:len("okres ")], "okres ") {
			f.District = optional(line[len("okres "):])
			continue
		}

		matched := false
		if m := distanceRe.FindStringSubmatch(line); m != nil {
			if f.DistanceKm == nil {
				if km, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
					f.DistanceKm = &km
				}
			}
			matched = true
		}
		if m := roadRe.FindStringSubmatch(line); m != nil {
			if f.Road == nil {
				f.Road = optional(m[1])
			}
			matched = true
		}
		if matched {
			continue
		}

		remaining = append(remaining, line)
	}

	if len(remaining) > 0 {
		f.Place = optional(remaining[len(remaining)-1])
	}

	return f
}

// SplitTitle splits "category - [subtype -] place" titles. The hyphen form is
// tried first, then the en-dash form, then a colon when the text before it is
// short enough to be a category.
func SplitTitle(title string) (category, subtype, place *string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil, nil
	}

	segments := []string{title}
	sep := ""
	for _, candidate := range titleSeparators {
		if !strings.Contains(title, candidate.split) {
			continue
		}
		parts := nonEmpty(strings.Split(title, candidate.split))
		if candidate.split == ":" && (len(parts) < 2 || utf8.RuneCountInString(parts[0]) > maxColonHeadLength) {
			continue
		}
		segments = parts
		sep = candidate.join
		break
	}

	switch {
	case len(segments) >= 3:
		return optional(segments[0]),
			optional(strings.Join(segments[1:len(segments)-1], sep)),
			optional(segments[len(segments)-1])
	case len(segments) == 2:
		return optional(segments[0]), nil, optional(segments[1])
	case len(segments) == 1:
		return optional(segments[0]), nil, nil
	}
	return nil, nil, nil
}

// DescriptionLines decodes entities, turns <br> markers into line breaks and
// returns the trimmed non-empty lines.
func DescriptionLines(description string) []string {
	text := html.UnescapeString(description)
	text = lineBreakRe.ReplaceAllString(text, "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
