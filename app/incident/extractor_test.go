package incident_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/hasici-feed/app/incident"
)

func TestSplitTitle_ThreeSegments(t *testing.T) {
	category, subtype, place := incident.SplitTitle("dopravní nehoda - uvolnění komunikace, odtažení - Kutná Hora")

	require.NotNil(t, category)
	require.NotNil(t, subtype)
	require.NotNil(t, place)
	assert.Equal(t, "dopravní nehoda", *category)
	assert.Equal(t, "uvolnění komunikace, odtažení", *subtype)
	assert.Equal(t, "Kutná Hora", *place)
}

func TestSplitTitle_TwoSegments(t *testing.T) {
	category, subtype, place := incident.SplitTitle("planý poplach - Bobnice")

	require.NotNil(t, category)
	require.NotNil(t, place)
	assert.Equal(t, "planý poplach", *category)
	assert.Nil(t, subtype)
	assert.Equal(t, "Bobnice", *place)
}

func TestSplitTitle_MiddleSegmentsKeepSeparator(t *testing.T) {
	_, subtype, place := incident.SplitTitle("požár - budova - sklad - Nymburk")

	require.NotNil(t, subtype)
	assert.Equal(t, "budova - sklad", *subtype)
	assert.Equal(t, "Nymburk", *place)
}

func TestSplitTitle_EnDash(t *testing.T) {
	category, subtype, place := incident.SplitTitle("technická pomoc – odstranění stromu – Kolín")

	assert.Equal(t, "technická pomoc", *category)
	assert.Equal(t, "odstranění stromu", *subtype)
	assert.Equal(t, "Kolín", *place)
}

func TestSplitTitle_Colon(t *testing.T) {
	category, subtype, place := incident.SplitTitle("požár: Poděbrady")

	assert.Equal(t, "požár", *category)
	assert.Nil(t, subtype)
	assert.Equal(t, "Poděbrady", *place)
}

func TestSplitTitle_ColonWithLongHeadIsNotSplit(t *testing.T) {
	title := "velmi dlouhý popis události který nemá být kategorií: Kolín"
	category, subtype, place := incident.SplitTitle(title)

	assert.Equal(t, title, *category)
	assert.Nil(t, subtype)
	assert.Nil(t, place)
}

func TestSplitTitle_SingleSegment(t *testing.T) {
	category, subtype, place := incident.SplitTitle("únik nebezpečných látek")

	assert.Equal(t, "únik nebezpečných látek", *category)
	assert.Nil(t, subtype)
	assert.Nil(t, place)
}

func TestSplitTitle_Empty(t *testing.T) {
	category, subtype, place := incident.SplitTitle("   ")

	assert.Nil(t, category)
	assert.Nil(t, subtype)
	assert.Nil(t, place)
}

func TestExtract_Description(t *testing.T) {
	description := "stav: ukončená&lt;br&gt;ukončení: 1. října 2026, 21:32&lt;br&gt;D1, km: 41,5&lt;br&gt;Ostrov&lt;br&gt;okres Kutná Hora&lt;br&gt;"

	f := incident.Extract("dopravní nehoda - Kutná Hora", description)

	require.NotNil(t, f.Status)
	assert.Equal(t, "ukončená", *f.Status)
	require.NotNil(t, f.EndTimeRaw)
	assert.Equal(t, "1. října 2026, 21:32", *f.EndTimeRaw)
	require.NotNil(t, f.District)
	assert.Equal(t, "Kutná Hora", *f.District)
	require.NotNil(t, f.Road)
	assert.Equal(t, "D1", *f.Road)
	require.NotNil(t, f.DistanceKm)
	assert.InDelta(t, 41.5, *f.DistanceKm, 0.0001)

	require.NotNil(t, f.Place)
	assert.Equal(t, "Ostrov", *f.Place, "description place overrides title place")
	assert.Equal(t, "stav: ukončená\nukončení: 1. října 2026, 21:32\nD1, km: 41,5\nOstrov\nokres Kutná Hora", f.RawDescription)
}

func TestExtract_CaseInsensitivePrefixes(t *testing.T) {
	f := incident.Extract("požár", "STAV: probíhá<br/>Ukonceni: 2. ledna 2026, 10:00<br>OKRES Nymburk")

	assert.Equal(t, "probíhá", *f.Status)
	assert.Equal(t, "2. ledna 2026, 10:00", *f.EndTimeRaw)
	assert.Equal(t, "Nymburk", *f.District)
	assert.Nil(t, f.Place)
}

func TestExtract_TitlePlaceKeptWithoutDescriptionPlace(t *testing.T) {
	f := incident.Extract("planý poplach - Bobnice", "stav: ukončená<br>okres Nymburk")

	require.NotNil(t, f.Place)
	assert.Equal(t, "Bobnice", *f.Place)
	assert.Nil(t, f.Road)
	assert.Nil(t, f.DistanceKm)
}

func TestExtract_NonBreakingSpaceInEndTime(t *testing.T) {
	f := incident.Extract("požár - Kolín", "ukončení:&nbsp;1.&nbsp;října 2026, 21:32")

	require.NotNil(t, f.EndTimeRaw)
	assert.Equal(t, "1.\u00a0října 2026, 21:32", *f.EndTimeRaw)
}

func TestExtract_EmptyDescription(t *testing.T) {
	f := incident.Extract("požár - Kolín", "")

	assert.Equal(t, "Kolín", *f.Place)
	assert.Empty(t, f.RawDescription)
	assert.Nil(t, f.Status)
}

func TestDescriptionLines(t *testing.T) {
	lines := incident.DescriptionLines("  a &amp; b <BR>  <br />\r\n c ")

	assert.Equal(t, []string{"a & b", "c"}, lines)
}
