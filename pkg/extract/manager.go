package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

const (
	minManagerLineLength = 5
	maxManagerLineLength = 120
	maxRawLineLength     = 100
	// maxNameDistance を超えて離れた人名は役職と組み合わせません。
	maxNameDistance = 60
)

var (
	roleRe = regexp.MustCompile(`(?i)\b(?:locatie|vestigings|cluster|regio|algemeen)?[\s-]?(manager|directeur|directrice|director|teamleider|teamleidster|team\s?lead|leidinggevende|co[oö]rdinator|beheerder|leiding)(?:s|en)?\b`)

	tussenvoegsel = `(?:van|de|der|den|het|ter|ten|te|in|'t)`
	fullNameRe    = regexp.MustCompile(`\b([A-Z][a-zà-ÿ]+(?:-[A-Z][a-zà-ÿ]+)?(?:\s+` + tussenvoegsel + `)*\s+[A-Z][a-zà-ÿ]+(?:-[A-Z][a-zà-ÿ]+)?)`)
	initialNameRe = regexp.MustCompile(`\b((?:[A-Z]\.\s?){1,3}(?:` + tussenvoegsel + `\s+)*[A-Z][a-zà-ÿ]+)`)
)

// nameStopWords は人名の先頭語として扱わない語です。
var nameStopWords = map[string]bool{
	"contact": true, "kinderopvang": true, "kinderdagverblijf": true, "kdv": true, "bso": true,
	"peuterspeelzaal": true, "locatie": true, "team": true, "over": true, "welkom": true,
	"bel": true, "mail": true, "email": true, "telefoon": true, "adres": true, "onze": true,
	"de": true, "het": true, "een": true, "ons": true, "voor": true, "met": true,
}

type nameSpan struct {
	name       string
	start, end int
}

// findNames は行中の人名候補を返します。
func findNames(line string) []nameSpan {
	var spans []nameSpan
	for _, re := range []*regexp.Regexp{fullNameRe, initialNameRe} {
		for _, loc := range re.FindAllStringSubmatchIndex(line, -1) {
			name := line[loc[2]:loc[3]]
			if containsStopWord(name) || roleRe.MatchString(name) {
				continue
			}
			spans = append(spans, nameSpan{name: name, start: loc[2], end: loc[3]})
		}
	}
	return spans
}

func containsStopWord(name string) bool {
	for _, w := range strings.Fields(name) {
		if nameStopWords[strings.ToLower(strings.Trim(w, ".,"))] {
			// 語中の小文字の tussenvoegsel は人名の一部として許容する
			if w == strings.ToLower(w) {
				continue
			}
			return true
		}
	}
	return false
}

func distance(n nameSpan, start, end int) int {
	switch {
	case n.end <= start:
		return start - n.end
	case n.start >= end:
		return n.start - end
	default:
		return 0
	}
}

// extractManagers は行単位で役職語を探し、近接する人名と組み合わせます。
// 人名が見つからない場合は行そのもの (切り詰め) を記録します。
func extractManagers(c *collector, lines []string, source, pageURL string) {
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		if n < minManagerLineLength || n > maxManagerLineLength {
			continue
		}
		locs := roleRe.FindAllStringSubmatchIndex(line, -1)
		if len(locs) == 0 {
			continue
		}

		names := findNames(line)
		for _, loc := range locs {
			role := strings.ToLower(strings.Join(strings.Fields(line[loc[2]:loc[3]]), " "))
			role = strings.ReplaceAll(role, "ö", "o")

			best, bestDist := "", maxNameDistance+1
			for _, nm := range names {
				if d := distance(nm, loc[0], loc[1]); d < bestDist {
					best, bestDist = nm.name, d
				}
			}

			if best != "" {
				c.add(types.Match{
					Category: types.CategoryManager, Value: best + " (" + role + ")",
					Pattern: "manager-role-name", Confidence: 0.8, Source: source, PageURL: pageURL,
				})
				continue
			}
			c.add(types.Match{
				Category: types.CategoryManager, Value: truncateRunes(line, maxRawLineLength),
				Pattern: "manager-role-line", Confidence: 0.4, Source: source, PageURL: pageURL,
			})
		}
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max]))
}
