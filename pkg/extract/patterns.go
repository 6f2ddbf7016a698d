package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/j0rgje/KDVcontactscraper/pkg/types"
)

// Pattern は名前付きの抽出パターンです。Prepare で入力行を前処理し、
// Normalize でサブマッチを正規化した値に変換します (false の場合は破棄)。
type Pattern struct {
	Name       string
	Category   string
	Confidence float64
	Re         *regexp.Regexp
	Prepare    func(line string) string
	Normalize  func(m []string) (string, bool)
}

// PatternTable はカテゴリごとの抽出パターンの一覧です。
type PatternTable struct {
	patterns []Pattern
}

// NewPatternTable は与えられたパターンからテーブルを生成します。
func NewPatternTable(patterns ...Pattern) *PatternTable {
	return &PatternTable{patterns: patterns}
}

// DefaultPatterns はメール・電話・住所の標準パターンを返します。
func DefaultPatterns() *PatternTable {
	return NewPatternTable(
		Pattern{Name: "email-strict", Category: types.CategoryEmail, Confidence: 0.9, Re: emailStrictRe, Normalize: normalizeEmailMatch},
		Pattern{Name: "email-loose", Category: types.CategoryEmail, Confidence: 0.6, Re: emailLooseRe, Normalize: normalizeEmailMatch},
		Pattern{Name: "email-obfuscated", Category: types.CategoryEmail, Confidence: 0.5, Re: emailObfuscatedRe, Normalize: deobfuscateEmail},
		Pattern{Name: "phone-nl-matcher", Category: types.CategoryPhone, Confidence: 0.9, Re: phoneCandidateRe, Prepare: numericBias, Normalize: matchPhoneCandidate},
		Pattern{Name: "phone-nl-mobile", Category: types.CategoryPhone, Confidence: 0.6, Re: dutchMobileRe, Normalize: matchPhoneBackstop},
		Pattern{Name: "phone-nl-landline", Category: types.CategoryPhone, Confidence: 0.6, Re: dutchLandlineRe, Normalize: matchPhoneBackstop},
		Pattern{Name: "street-house", Category: types.CategoryAddress, Confidence: 0.8, Re: streetHouseRe, Normalize: normalizeStreet},
		Pattern{Name: "postcode", Category: types.CategoryAddress, Confidence: 0.7, Re: postcodeRe, Normalize: normalizePostcode},
		Pattern{Name: "postcode-place", Category: types.CategoryAddress, Confidence: 0.8, Re: postcodePlaceRe, Normalize: normalizePostcodePlace},
	)
}

// Names はパターン名を定義順で返します。
func (t *PatternTable) Names() []string {
	names := make([]string, 0, len(t.patterns))
	for _, p := range t.patterns {
		names = append(names, p.Name)
	}
	return names
}

// Apply は1行にすべてのパターンを適用し、一致を c に追加します。
func (t *PatternTable) Apply(c *collector, line, source, pageURL string) {
	for _, p := range t.patterns {
		input := line
		if p.Prepare != nil {
			input = p.Prepare(line)
		}
		for _, m := range p.Re.FindAllStringSubmatch(input, -1) {
			value, ok := p.Normalize(m)
			if !ok {
				continue
			}
			c.add(types.Match{
				Category:   p.Category,
				Value:      value,
				Pattern:    p.Name,
				Confidence: p.Confidence,
				Source:     source,
				PageURL:    pageURL,
			})
		}
	}
}

// ----------------------------------------------------------------------
// メールアドレス
// ----------------------------------------------------------------------

var (
	emailStrictRe     = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	emailLooseRe      = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	emailObfuscatedRe = regexp.MustCompile(`(?i)\b([a-z0-9._%+-]+)\s*[\[\(\{]\s*(?:at|apenstaartje)\s*[\]\)\}]\s*([a-z0-9-]+(?:\s*[\[\(\{]\s*(?:dot|punt)\s*[\]\)\}]\s*[a-z0-9-]+)+)`)
	obfuscatedDotRe   = regexp.MustCompile(`(?i)\s*[\[\(\{]\s*(?:dot|punt)\s*[\]\)\}]\s*`)
	emailValidRe      = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9-]+(?:\.[a-z0-9-]+)*\.[a-z]{2,}$`)
)

// placeholderMarkers を含むアドレスはダミーとして破棄します。
var placeholderMarkers = []string{"example", "test", "noreply", "no-reply"}

var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// NormalizeEmail はアドレスを小文字化・整形し、プレースホルダーや画像ファイル名の場合は false を返します。
func NormalizeEmail(raw string) (string, bool) {
	e := strings.TrimSpace(raw)
	e = strings.TrimPrefix(strings.TrimPrefix(e, "mailto:"), "MAILTO:")
	if i := strings.IndexByte(e, '?'); i >= 0 {
		e = e[:i]
	}
	if unescaped, err := url.QueryUnescape(e); err == nil {
		e = unescaped
	}
	e = strings.ToLower(strings.Trim(e, " .,;:-_<>()[]\"'"))

	if !emailValidRe.MatchString(e) {
		return "", false
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(e, m) {
			return "", false
		}
	}
	for _, s := range assetSuffixes {
		if strings.HasSuffix(e, s) {
			return "", false
		}
	}
	return e, true
}

func normalizeEmailMatch(m []string) (string, bool) {
	return NormalizeEmail(m[0])
}

func deobfuscateEmail(m []string) (string, bool) {
	domain := obfuscatedDotRe.ReplaceAllString(m[2], ".")
	return NormalizeEmail(m[1] + "@" + domain)
}

// ----------------------------------------------------------------------
// 住所
// ----------------------------------------------------------------------

var (
	streetHouseRe   = regexp.MustCompile(`\b([A-Z][a-zà-ÿ'-]*(?:straat|laan|weg|plein|dreef|park|boulevard))\s+(\d{1,5})(\s?[a-zA-Z]\b|-\d{1,4}\b)?`)
	postcodeRe      = regexp.MustCompile(`\b(\d{4})\s?([A-Z]{2})\b`)
	postcodePlaceRe = regexp.MustCompile(`\b(\d{4})\s?([A-Z]{2})\s+([A-Z][a-zà-ÿ]+(?:-[A-Za-zà-ÿ]+)*)`)
)

// オランダの郵便番号で使われない文字の組み合わせ
var invalidPostcodeLetters = map[string]bool{"SA": true, "SD": true, "SS": true}

func normalizeStreet(m []string) (string, bool) {
	v := m[1] + " " + m[2] + strings.TrimSpace(m[3])
	return v, true
}

func normalizePostcode(m []string) (string, bool) {
	if m[1][0] == '0' || invalidPostcodeLetters[m[2]] {
		return "", false
	}
	return m[1] + " " + m[2], true
}

func normalizePostcodePlace(m []string) (string, bool) {
	pc, ok := normalizePostcode(m)
	if !ok {
		return "", false
	}
	return pc + " " + m[3], true
}
