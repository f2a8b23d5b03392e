package incident_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/hasici-feed/app/civiltime"
	"github.com/lysyi3m/hasici-feed/app/incident"
)

func newBuilder(t *testing.T) *incident.Builder {
	t.Helper()
	normalizer, err := civiltime.NewNormalizer("Europe/Prague")
	require.NoError(t, err)
	return incident.NewBuilder(normalizer, "hzs-")
}

func ptr[T any](v T) *T { return &v }

func TestDeriveID_LinkNumericID(t *testing.T) {
	link := "https://www.hasici.example.cz/zasahy-jpo/12345/"

	assert.Equal(t, "12345", incident.DeriveID(link, nil, "", "t", "p"))
	assert.Equal(t, "12345", incident.DeriveID(link, ptr("hzs-999"), "hzs-", "t", "p"))
}

func TestDeriveID_GUIDFallback(t *testing.T) {
	id := incident.DeriveID("https://example.cz/zasahy-jpo/detail", ptr("hzs-abc-1"), "hzs-", "t", "p")

	assert.Equal(t, "abc-1", id)
}

func TestDeriveID_HashFallback(t *testing.T) {
	first := incident.DeriveID("https://example.cz/detail", nil, "", "požár - Kolín", "Thu, 01 Oct 2026 19:00:00 +0200")
	second := incident.DeriveID("https://example.cz/detail", ptr("  "), "", "požár - Kolín", "Thu, 01 Oct 2026 19:00:00 +0200")
	other := incident.DeriveID("https://example.cz/detail", nil, "", "požár - Nymburk", "Thu, 01 Oct 2026 19:00:00 +0200")

	assert.Len(t, first, 16)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
}

func TestBuild(t *testing.T) {
	b := newBuilder(t)
	published := time.Date(2026, time.October, 1, 18, 2, 0, 0, time.UTC)
	ingestedAt := time.Date(2026, time.October, 1, 20, 0, 0, 0, time.UTC)

	record, err := b.Build(incident.RawItem{
		Title:       "dopravní nehoda - uvolnění komunikace, odtažení - Kutná Hora",
		Link:        "https://example.cz/zasahy-jpo/12345/",
		GUID:        ptr("hzs-12345"),
		Published:   "Thu, 01 Oct 2026 20:02:00 +0200",
		PublishedAt: &published,
		Description: "stav: ukončená&lt;br&gt;ukončení: 1. října 2026, 21:32&lt;br&gt;Kutná Hora&lt;br&gt;okres Kutná Hora",
	}, ingestedAt)
	require.NoError(t, err)

	assert.Equal(t, "12345", record.ID)
	assert.Equal(t, "dopravní nehoda", *record.Category)
	assert.Equal(t, "uvolnění komunikace, odtažení", *record.Subtype)
	assert.Equal(t, "Kutná Hora", *record.Place)
	assert.Equal(t, "Kutná Hora", *record.District)
	require.NotNil(t, record.EndedAt)
	assert.Equal(t, time.Date(2026, time.October, 1, 19, 32, 0, 0, time.UTC), *record.EndedAt)
	require.NotNil(t, record.DurationMinutes)
	assert.Equal(t, 90, *record.DurationMinutes)
	assert.Equal(t, ingestedAt, record.IngestedAt)
}

func TestBuild_EndBeforePublishLeavesDurationAbsent(t *testing.T) {
	b := newBuilder(t)
	published := time.Date(2026, time.October, 2, 8, 0, 0, 0, time.UTC)

	record, err := b.Build(incident.RawItem{
		Title:       "požár - Kolín",
		Link:        "https://example.cz/zasahy-jpo/2/",
		PublishedAt: &published,
		Description: "ukončení: 1. října 2026, 21:32",
	}, time.Now())
	require.NoError(t, err)

	assert.NotNil(t, record.EndedAt)
	assert.Nil(t, record.DurationMinutes)
}

func TestBuild_UnparsableEndTimeKeepsRecord(t *testing.T) {
	b := newBuilder(t)
	published := time.Date(2026, time.October, 2, 8, 0, 0, 0, time.UTC)

	record, err := b.Build(incident.RawItem{
		Title:       "požár - Kolín",
		Link:        "https://example.cz/zasahy-jpo/3/",
		PublishedAt: &published,
		Description: "ukončení: zítra ráno",
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "zítra ráno", *record.EndTimeRaw)
	assert.Nil(t, record.EndedAt)
	assert.Nil(t, record.DurationMinutes)
}

func TestBuild_Validation(t *testing.T) {
	b := newBuilder(t)
	published := time.Now()

	cases := map[string]incident.RawItem{
		"missing title":   {Link: "https://example.cz/1/", PublishedAt: &published},
		"missing link":    {Title: "požár", PublishedAt: &published},
		"missing publish": {Title: "požár", Link: "https://example.cz/1/", Published: "včera"},
	}
	for name, item := range cases {
		t.Run(name, func(t *testing.T) {
			record, err := b.Build(item, time.Now())
			assert.Nil(t, record)
			assert.True(t, errors.Is(err, incident.ErrInvalidItem))
		})
	}
}

func TestSameContent(t *testing.T) {
	b := newBuilder(t)
	published := time.Date(2026, time.October, 2, 8, 0, 0, 0, time.UTC)
	item := incident.RawItem{
		Title:       "požár - Kolín",
		Link:        "https://example.cz/zasahy-jpo/4/",
		PublishedAt: &published,
		Description: "stav: probíhá",
	}

	first, err := b.Build(item, published.Add(time.Minute))
	require.NoError(t, err)
	second, err := b.Build(item, published.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, first.SameContent(second), "ingestedAt is not compared")

	inLocal := *second
	inLocal.PublishedAt = second.PublishedAt.In(time.FixedZone("CEST", 2*3600))
	assert.True(t, first.SameContent(&inLocal))

	item.Description = "stav: ukončená"
	changed, err := b.Build(item, published.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, first.SameContent(changed))
}
