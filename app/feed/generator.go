package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/hasici-feed/app/incident"
)

// Channel describes the exported feed itself.
type Channel struct {
	Title       string
	Link        string
	Description string
	SelfLink    string
	Version     string
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run renders normalized incidents as an RSS 2.0 document. Records are
// written in the order given.
func (g *Generator) Run(channel Channel, records []incident.Record) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4)
	g.writeElement(&buf, "link", channel.Link, 4)
	g.writeElement(&buf, "description", channel.Description, 4)

	if channel.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(channel.SelfLink)))
	}

	lastBuildDate := time.Now().UTC()
	if len(records) > 0 {
		lastBuildDate = records[0].IngestedAt
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("hasici-feed/%s", channel.Version), 4)
	g.writeElement(&buf, "language", "cs", 4)

	for i := range records {
		g.writeItem(&buf, &records[i])
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, record *incident.Record) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(record.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", record.Title, 6)
	g.writeElement(buf, "link", record.Link, 6)
	g.writeElement(buf, "description", g.describe(record), 6)
	g.writeElement(buf, "pubDate", record.PublishedAt.Format(time.RFC1123Z), 6)

	for _, category := range []*string{record.Category, record.Subtype} {
		if category != nil {
			g.writeElement(buf, "category", *category, 6)
		}
	}

	buf.WriteString("    </item>\n")
}

// describe renders the structured fields as "label: value" lines, falling
// back to the normalized source description.
func (g *Generator) describe(record *incident.Record) string {
	var lines []string
	add := func(label string, value *string) {
		if value != nil {
			lines = append(lines, label+": "+*value)
		}
	}

	add("místo", record.Place)
	add("okres", record.District)
	add("stav", record.Status)
	add("silnice", record.Road)
	if record.DistanceKm != nil {
		lines = append(lines, fmt.Sprintf("km: %g", *record.DistanceKm))
	}
	add("ukončení", record.EndTimeRaw)
	if record.DurationMinutes != nil {
		lines = append(lines, fmt.Sprintf("délka zásahu: %d min", *record.DurationMinutes))
	}

	if len(lines) == 0 {
		return record.RawDescription
	}
	return strings.Join(lines, "\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
