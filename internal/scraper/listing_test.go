package scraper

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const baseURL = "https://empleos.codelco.cl"

func searchPage(tiles ...string) string {
	var body string
	for _, tile := range tiles {
		body += tile
	}
	return "<html><body><div class=\"search-results\">" + body + "</div></body></html>"
}

func tile(internalID, processID, title, date, region, zip string) string {
	return fmt.Sprintf(`
<div class="job-tile">
  <a class="jobTitle-link" href="/job/%[1]s/" data-focus-tile="job-id-%[1]s">%[3]s</a>
  <div id="job-%[1]s-desktop-section-customfield1-value">%[2]s</div>
  <div id="job-%[1]s-desktop-section-date-value">%[4]s</div>
  <div id="job-%[1]s-desktop-section-customfield2-value">%[5]s</div>
  <div id="job-%[1]s-desktop-section-zip-value">%[6]s</div>
</div>`, internalID, processID, title, date, region, zip)
}

func TestExtractListingsFullTile(t *testing.T) {
	t.Parallel()

	html := searchPage(tile("1001", "CC-4471", "Operador Mina Rajo", "10-03-2026", "Antofagasta", "1240000"))

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	got := listings[0]
	require.Equal(t, "CC-4471", got.ProcessID)
	require.Equal(t, "Operador Mina Rajo", got.Title)
	require.Equal(t, "https://empleos.codelco.cl/job/1001/", got.URL)
	require.Equal(t, "10-03-2026", got.Date)
	require.Equal(t, "Antofagasta", got.Region)
	require.Equal(t, "1240000", got.PostalCode)
	require.Equal(t, "Antofagasta - 1240000", got.Location)
	require.Equal(t, "1001", got.InternalID)
}

func TestExtractListingsSkipsNonJobHrefs(t *testing.T) {
	t.Parallel()

	html := searchPage(`<a class="jobTitle-link" href="/about/">Quiénes somos</a>`,
		tile("1001", "CC-1", "Operador Mina", "", "", ""))

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "Operador Mina", listings[0].Title)
}

func TestExtractListingsSkipsShortTitles(t *testing.T) {
	t.Parallel()

	html := searchPage(`<a class="jobTitle-link" href="/job/1/" data-focus-tile="job-id-1">ab</a>`)

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Empty(t, listings)
}

func TestExtractListingsInternalIDFromHref(t *testing.T) {
	t.Parallel()

	html := searchPage(`<a class="jobTitle-link" href="/job/operador/2002/">Operador Planta</a>
<div id="job-2002-desktop-section-customfield1-value">CC-2002</div>`)

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "2002", listings[0].InternalID)
	require.Equal(t, "CC-2002", listings[0].ProcessID)
}

func TestExtractListingsDropsWithoutInternalID(t *testing.T) {
	t.Parallel()

	html := searchPage(`<a class="jobTitle-link" href="/job/operador-sin-id/">Operador Sin ID</a>`)

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Empty(t, listings)
}

func TestExtractListingsProcessIDFallsBackToInternalID(t *testing.T) {
	t.Parallel()

	html := searchPage(`<a class="jobTitle-link" href="/job/3003/" data-focus-tile="job-id-3003">Ingeniero de Turno</a>`)

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "3003", listings[0].ProcessID)
}

func TestExtractListingsLocationComposition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		region string
		zip    string
		want   string
	}{
		{"both", "Atacama", "1530000", "Atacama - 1530000"},
		{"region only", "Atacama", "", "Atacama"},
		{"zip only", "", "1530000", "1530000"},
		{"neither", "", "", ""},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id := fmt.Sprintf("40%02d", i)
			html := searchPage(tile(id, "CC-"+id, "Mecánico de Mantenimiento", "", tt.region, tt.zip))

			listings, err := ExtractListings(html, baseURL)
			require.NoError(t, err)
			require.Len(t, listings, 1)
			require.Equal(t, tt.want, listings[0].Location)
		})
	}
}

func TestExtractListingsDedupByURLKeepsFirst(t *testing.T) {
	t.Parallel()

	first := tile("5005", "CC-A", "Operador Mina", "01-01-2026", "Antofagasta", "")
	second := tile("5005", "CC-B", "Operador Mina Duplicado", "02-02-2026", "Atacama", "")
	html := searchPage(first, second)

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "Operador Mina", listings[0].Title)
}

func TestExtractListingsEmptyPage(t *testing.T) {
	t.Parallel()

	listings, err := ExtractListings("<html><body><p>Sin resultados</p></body></html>", baseURL)
	require.NoError(t, err)
	require.Empty(t, listings)
}

func TestExtractListingsDocumentOrder(t *testing.T) {
	t.Parallel()

	html := searchPage(
		tile("1", "CC-1", "Primero en la página", "", "", ""),
		tile("2", "CC-2", "Segundo en la página", "", "", ""),
		tile("3", "CC-3", "Tercero en la página", "", "", ""),
	)

	listings, err := ExtractListings(html, baseURL)
	require.NoError(t, err)
	require.Len(t, listings, 3)
	require.Equal(t, "CC-1", listings[0].ProcessID)
	require.Equal(t, "CC-2", listings[1].ProcessID)
	require.Equal(t, "CC-3", listings[2].ProcessID)
}
