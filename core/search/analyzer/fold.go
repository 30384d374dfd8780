package analyzer

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldDiacriticsFilterName is the registered name for this token filter.
const FoldDiacriticsFilterName = "fold_diacritics"

func init() {
	registry.RegisterTokenFilter(FoldDiacriticsFilterName, NewFoldDiacriticsFilter)
}

// letterFolds covers Latin letters that do not decompose into a base
// letter plus combining marks.
var letterFolds = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"þ", "th", "Þ", "TH",
	"ð", "d", "Ð", "D",
	"ı", "i",
)

// FoldDiacriticsFilter strips diacritics so that "café" and "cafe" index
// to the same term. Tokens with nothing to fold pass through untouched.
//
// Examples:
//   - "café" -> "cafe"
//   - "straße" -> "strasse"
//   - "日本" -> "日本"
type FoldDiacriticsFilter struct{}

// NewFoldDiacriticsFilter creates a new FoldDiacriticsFilter instance.
func NewFoldDiacriticsFilter(
	config map[string]interface{},
	cache *registry.Cache,
) (analysis.TokenFilter, error) {
	return &FoldDiacriticsFilter{}, nil
}

// Filter folds each token's term in place.
func (f *FoldDiacriticsFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		if isASCII(token.Term) {
			continue
		}
		token.Term = []byte(Fold(string(token.Term)))
	}
	return input
}

// Fold removes combining marks and maps special Latin letters to ASCII.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isCombiningDiacritic)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return letterFolds.Replace(folded)
}

// isCombiningDiacritic matches the combining diacritical mark blocks only,
// leaving marks such as the kana voicing marks intact.
func isCombiningDiacritic(r rune) bool {
	if !unicode.Is(unicode.Mn, r) {
		return false
	}
	return (r >= 0x0300 && r <= 0x036F) ||
		(r >= 0x1AB0 && r <= 0x1AFF) ||
		(r >= 0x1DC0 && r <= 0x1DFF) ||
		(r >= 0x20D0 && r <= 0x20FF) ||
		(r >= 0xFE20 && r <= 0xFE2F)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
