package incident

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/hasici-feed/app/civiltime"
)

var ErrInvalidItem = errors.New("invalid feed item")

// RawItem is one feed entry as delivered by the parser. GUID and PublishedAt
// are nil when the feed did not carry them.
type RawItem struct {
	Title       string
	Link        string
	GUID        *string
	Published   string
	PublishedAt *time.Time
	Description string
}

type Builder struct {
	normalizer *civiltime.Normalizer
	guidPrefix string
}

func NewBuilder(normalizer *civiltime.Normalizer, guidPrefix string) *Builder {
	return &Builder{
		normalizer: normalizer,
		guidPrefix: guidPrefix,
	}
}

// Build validates item and turns it into a Record stamped with ingestedAt.
// Validation failures wrap ErrInvalidItem.
func (b *Builder) Build(item RawItem, ingestedAt time.Time) (*Record, error) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)

	if title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrInvalidItem)
	}
	if link == "" {
		return nil, fmt.Errorf("%w: missing link", ErrInvalidItem)
	}
	if item.PublishedAt == nil || item.PublishedAt.IsZero() {
		return nil, fmt.Errorf("%w: unparsable publish time %q", ErrInvalidItem, item.Published)
	}

	id := DeriveID(link, item.GUID, b.guidPrefix, title, item.Published)
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidItem)
	}

	fields := Extract(title, item.Description)
	publishedAt := item.PublishedAt.UTC()

	record := &Record{
		ID:             id,
		Title:          title,
		Link:           link,
		PublishedAt:    publishedAt,
		Category:       fields.Category,
		Subtype:        fields.Subtype,
		Place:          fields.Place,
		District:       fields.District,
		Status:         fields.Status,
		Road:           fields.Road,
		DistanceKm:     fields.DistanceKm,
		EndTimeRaw:     fields.EndTimeRaw,
		RawDescription: fields.RawDescription,
		IngestedAt:     ingestedAt.UTC(),
	}

	if fields.EndTimeRaw != nil {
		endedAt, err := b.normalizer.ToUTC(*fields.EndTimeRaw)
		if err != nil {
			slog.Debug("End time not recognized", "item_id", id, "end_time", *fields.EndTimeRaw, "error", err)
		} else {
			record.EndedAt = &endedAt
		}
	}
	record.DurationMinutes = civiltime.DurationMinutes(&publishedAt, record.EndedAt)

	return record, nil
}

// DeriveID picks a stable identity for an item: the numeric id at the end of
// the link path, then the guid without guidPrefix, then a hash of title and
// publish time.
func DeriveID(link string, guid *string, guidPrefix, title, published string) string {
	if id := linkID(link); id != "" {
		return id
	}

	if guid != nil {
		g := strings.TrimSpace(*guid)
		if guidPrefix != "" {
			g = strings.TrimSpace(strings.TrimPrefix(g, guidPrefix))
		}
		if g != "" {
			return g
		}
	}

	sum := sha256.Sum256([]byte(title + "|" + published))
	return hex.EncodeToString(sum[:8])
}

func linkID(link string) string {
	path := link
	if u, err := url.Parse(link); err == nil {
		path = u.Path
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return ""
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return last
}
