package feed

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/hasici-feed/app/incident"
)

var ErrMalformedFeed = errors.New("malformed feed")

var byteOrderMark = []byte("\xef\xbb\xbf")

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run returns the feed's items in document order. Anything before the first
// '<' (a byte order mark, proxy banners, stray whitespace) is dropped first.
func (p *Parser) Run(data []byte) ([]incident.RawItem, error) {
	cleaned, err := Clean(data)
	if err != nil {
		return nil, err
	}

	feed, err := p.gofeedParser.Parse(bytes.NewReader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	items := make([]incident.RawItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item))
	}

	return items, nil
}

// Clean strips a byte order mark and any bytes before the first '<'.
func Clean(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, byteOrderMark)

	start := bytes.IndexByte(data, '<')
	if start < 0 {
		return nil, fmt.Errorf("%w: no markup found", ErrMalformedFeed)
	}
	return data[start:], nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) incident.RawItem {
	normalized := incident.RawItem{
		Title:       strings.TrimSpace(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Published:   strings.TrimSpace(cmpOr(item.Published, item.Updated)),
		Description: cmpOr(item.Description, item.Content),
	}

	if guid := strings.TrimSpace(item.GUID); guid != "" {
		normalized.GUID = &guid
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		normalized.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		normalized.PublishedAt = &updated
	}

	return normalized
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
