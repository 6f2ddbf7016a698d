package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: "Jan@KDV-Zon.nl", want: "jan@kdv-zon.nl", wantOK: true},
		{raw: "mailto:info@kdv.nl?subject=Rondleiding", want: "info@kdv.nl", wantOK: true},
		{raw: "mailto:info%40kdv.nl", want: "info@kdv.nl", wantOK: true},
		{raw: "  planning@kdv.nl.", want: "planning@kdv.nl", wantOK: true},
		{raw: "info@example.com", wantOK: false},
		{raw: "noreply@kdv.nl", wantOK: false},
		{raw: "icon@2x.png", wantOK: false},
		{raw: "geen-adres", wantOK: false},
		{raw: "a@b", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeEmail(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw    string
		strict bool
		want   string
		wantOK bool
	}{
		{raw: "030-1234567", strict: true, want: "+31 30 1234567", wantOK: true},
		{raw: "06-12345678", strict: true, want: "+31 6 12345678", wantOK: true},
		{raw: "+31612345678", strict: true, want: "+31 6 12345678", wantOK: true},
		{raw: "0031 6 12345678", strict: true, want: "+31 6 12345678", wantOK: true},
		{raw: "+31 (0)30 123 4567", strict: true, want: "+31 30 1234567", wantOK: true},
		{raw: "12345", strict: false, wantOK: false},
		{raw: "geen nummer", strict: false, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizePhone(tt.raw, tt.strict)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPatternTable_Apply(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		category string
		want     []string
	}{
		{name: "postcode with place", line: "Bezoekadres: Kerkweg 4a, 1234AB Utrecht", category: types.CategoryAddress, want: []string{"1234 AB", "1234 AB Utrecht", "Kerkweg 4a"}},
		{name: "postcode with leading zero rejected", line: "Code 0123 AB", category: types.CategoryAddress, want: []string{}},
		{name: "postcode with SS rejected", line: "Postcode 1234 SS", category: types.CategoryAddress, want: []string{}},
		{name: "date is not a phone", line: "Geopend sinds 12-03-2019 en nog steeds", category: types.CategoryPhone, want: []string{}},
		{name: "landline with spaces", line: "Telefoon: 020 123 45 67", category: types.CategoryPhone, want: []string{"+31 20 1234567"}},
		{name: "obfuscated email", line: "mail: info (at) kdv (punt) nl", category: types.CategoryEmail, want: []string{"info@kdv.nl"}},
	}

	table := DefaultPatterns()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector()
			table.Apply(c, tt.line, "direct", "https://kdv.nl/")
			assert.Equal(t, tt.want, c.sorted(tt.category))
		})
	}
}

func TestPatternTable_Names(t *testing.T) {
	names := DefaultPatterns().Names()
	assert.Contains(t, names, "email-strict")
	assert.Contains(t, names, "phone-nl-matcher")
	assert.Contains(t, names, "postcode-place")
}

func TestExtractManagers(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{
			name:  "role after name",
			lines: []string{"Contact: Jan de Vries, Locatiemanager, jan@kdv-zon.nl"},
			want:  []string{"Jan de Vries (manager)"},
		},
		{
			name:  "role before name",
			lines: []string{"Onze vestigingsdirecteur Anna van der Berg heet u welkom."},
			want:  []string{"Anna van der Berg (directeur)"},
		},
		{
			name:  "initials",
			lines: []string{"Coördinator: J.P. Bakker"},
			want:  []string{"J.P. Bakker (coordinator)"},
		},
		{
			name:  "no name keeps truncated line",
			lines: []string{"Neem contact op met de leidinggevende van de groep"},
			want:  []string{"Neem contact op met de leidinggevende van de groep"},
		},
		{
			name:  "too long line ignored",
			lines: []string{"Manager " + strings.Repeat("x", 130)},
			want:  []string{},
		},
		{
			name:  "no role",
			lines: []string{"Jan de Vries is pedagogisch medewerker"},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector()
			extractManagers(c, tt.lines, "direct", "https://kdv.nl/")
			assert.Equal(t, tt.want, c.sorted(types.CategoryManager))
		})
	}
}

func TestContactLinks(t *testing.T) {
	html := `<html><body>
		<a href="/contact">Contact</a>
		<a href="/contact#route">Route</a>
		<a href="https://www.kdv.nl/over-ons">Over ons</a>
		<a href="https://facebook.com/contact">Facebook</a>
		<a href="mailto:info@kdv.nl">contact mail</a>
		<a href="/nieuws">Nieuws</a>
		<a href="ons-team.html">Ons team</a>
		<a href="/">Home contact</a>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	base, err := url.Parse("https://kdv.nl/")
	require.NoError(t, err)

	got := contactLinks(doc, base)
	assert.Equal(t, []string{
		"https://kdv.nl/contact",
		"https://www.kdv.nl/over-ons",
		"https://kdv.nl/ons-team.html",
	}, got)
}

func TestRemoveNoise(t *testing.T) {
	html := `<html><body class="page has-sidebar">
		<nav>Home Contact</nav>
		<div id="cookie-consent">We gebruiken cookies</div>
		<main><p>Welkom bij kinderdagverblijf De Zon in het hart van Utrecht.</p></main>
		<footer>Copyright</footer>
		<script>var x = 1;</script>
	</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	removeNoise(doc)
	lines := textLines(findMainContent(doc))
	assert.Equal(t, []string{"Welkom bij kinderdagverblijf De Zon in het hart van Utrecht."}, lines)
	assert.Zero(t, doc.Find("#cookie-consent").Length())
	assert.Zero(t, doc.Find("nav, footer, script").Length())
}
