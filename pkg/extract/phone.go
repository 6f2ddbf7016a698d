package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion は国番号なしの番号を解釈する地域です。
const DefaultRegion = "NL"

var (
	// phoneCandidateRe は数字寄りに前処理したテキストから電話番号らしき部分を拾います。
	phoneCandidateRe = regexp.MustCompile(`\+?(?:\(\d+\)|\d)(?:(?:\s?-\s?|\s)?(?:\(\d+\)|\d)){7,16}`)
	dutchMobileRe    = regexp.MustCompile(`(?:\+31|0031|\b0)[\s-]?(?:\(0\)[\s-]?)?6[\s-]?(?:\d[\s-]?){7}\d`)
	dutchLandlineRe  = regexp.MustCompile(`(?:\+31|0031|\b0)[\s-]?(?:\(0\)[\s-]?)?[1-57-9]\d{1,2}[\s-]?(?:\d[\s-]?){5,6}\d`)

	numericBiasRe = regexp.MustCompile(`[^0-9+\-()\s]`)
	dateLikeRe    = regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{2,4}\b`)
	phoneSepRe    = regexp.MustCompile(`[\s-]+`)
)

// numericBias は数字、'+'、'-'、括弧、空白以外の文字を空白に置き換えます。
func numericBias(line string) string {
	return numericBiasRe.ReplaceAllString(line, " ")
}

// parsePhone は番号を解析します。"(0)" のトランクプレフィックスと "00" の国際プレフィックスを補正します。
func parsePhone(raw string) (*phonenumbers.PhoneNumber, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "(0)", ""))
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	return phonenumbers.Parse(s, DefaultRegion)
}

// FormatPhone は番号を "+<国番号> <市外局番> <加入者番号>" 形式に正規化します。
func FormatPhone(num *phonenumbers.PhoneNumber) string {
	nsn := phonenumbers.GetNationalSignificantNumber(num)
	ndcLen := phonenumbers.GetLengthOfNationalDestinationCode(num)
	if ndcLen > 0 && ndcLen < len(nsn) {
		return fmt.Sprintf("+%d %s %s", num.GetCountryCode(), nsn[:ndcLen], nsn[ndcLen:])
	}
	return fmt.Sprintf("+%d %s", num.GetCountryCode(), nsn)
}

// NormalizePhone は有効な番号であれば正規化した値を返します。
// strict が false の場合は番号として成立し得る (possible) だけで受け入れます。
func NormalizePhone(raw string, strict bool) (string, bool) {
	num, err := parsePhone(raw)
	if err != nil {
		return "", false
	}
	if strict && !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	if !strict && !phonenumbers.IsPossibleNumber(num) {
		return "", false
	}
	return FormatPhone(num), true
}

// matchPhoneCandidate は候補を検証し、無効な場合は末尾のグループを削って再試行します。
func matchPhoneCandidate(m []string) (string, bool) {
	candidate := strings.TrimSpace(m[0])
	if dateLikeRe.MatchString(candidate) {
		return "", false
	}
	for {
		if v, ok := NormalizePhone(candidate, true); ok {
			return v, true
		}
		idx := phoneSepRe.FindAllStringIndex(candidate, -1)
		if len(idx) == 0 {
			return "", false
		}
		candidate = strings.TrimSpace(candidate[:idx[len(idx)-1][0]])
		if countDigits(candidate) < 9 {
			return "", false
		}
	}
}

func matchPhoneBackstop(m []string) (string, bool) {
	return NormalizePhone(m[0], false)
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
