// Package analyzer provides the Bleve analyzers used to index wiki pages.
// The same analyzers are applied at index and query time.
package analyzer

import (
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/length"
	"github.com/blevesearch/bleve/v2/registry"

	// Import required tokenizers and filters from Bleve
	_ "github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	_ "github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	_ "github.com/blevesearch/bleve/v2/analysis/token/porter"
	_ "github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	_ "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// Analyzer names for registry.
const (
	WikiTextAnalyzerName    = "wiki_text"
	WikiKeywordAnalyzerName = "wiki_keyword"
)

// MaxLengthFilterName is the registered name of the filter that drops
// overly long tokens.
const MaxLengthFilterName = "wiki_max_length"

// MaxTokenLength is the longest token, in characters, that is indexed.
const MaxTokenLength = 32

// Built-in Bleve component names.
const (
	unicodeTokenizerName = "unicode"
	singleTokenizerName  = "single"
	cjkWidthFilterName   = "cjk_width"
	cjkBigramFilterName  = "cjk_bigram"
	lowercaseFilterName  = "to_lower"
	porterStemmerName    = "stemmer_porter"
)

func init() {
	registry.RegisterTokenFilter(MaxLengthFilterName, NewMaxLengthFilter)
	registry.RegisterAnalyzer(WikiTextAnalyzerName, NewWikiTextAnalyzerConstructor)
	registry.RegisterAnalyzer(WikiKeywordAnalyzerName, NewWikiKeywordAnalyzerConstructor)
}

// NewMaxLengthFilter creates a filter removing tokens longer than
// MaxTokenLength characters.
func NewMaxLengthFilter(
	config map[string]interface{},
	cache *registry.Cache,
) (analysis.TokenFilter, error) {
	return length.NewLengthFilter(0, MaxTokenLength), nil
}

// NewWikiTextAnalyzerConstructor creates a WikiTextAnalyzer from config for
// Bleve registry.
func NewWikiTextAnalyzerConstructor(
	config map[string]interface{},
	cache *registry.Cache,
) (analysis.Analyzer, error) {
	return NewWikiTextAnalyzer(cache)
}

// NewWikiTextAnalyzer creates the analyzer for page titles and bodies.
// Chain: unicode -> cjk_width -> to_lower -> cjk_bigram -> stemmer_porter
// -> fold_diacritics -> wiki_max_length.
//
// The unicode tokenizer splits on word boundaries, including between CJK
// and Latin runs; CJK runs are then indexed as overlapping bigrams.
func NewWikiTextAnalyzer(cache *registry.Cache) (*analysis.DefaultAnalyzer, error) {
	tokenizer, err := cache.TokenizerNamed(unicodeTokenizerName)
	if err != nil {
		return nil, err
	}

	filters, err := filtersNamed(cache,
		cjkWidthFilterName,
		lowercaseFilterName,
		cjkBigramFilterName,
		porterStemmerName,
		FoldDiacriticsFilterName,
		MaxLengthFilterName,
	)
	if err != nil {
		return nil, err
	}

	return &analysis.DefaultAnalyzer{
		Tokenizer:    tokenizer,
		TokenFilters: filters,
	}, nil
}

// NewWikiKeywordAnalyzerConstructor creates a WikiKeywordAnalyzer from
// config for Bleve registry.
func NewWikiKeywordAnalyzerConstructor(
	config map[string]interface{},
	cache *registry.Cache,
) (analysis.Analyzer, error) {
	return NewWikiKeywordAnalyzer(cache)
}

// NewWikiKeywordAnalyzer creates the analyzer for namespace and category
// fields: the whole value is one token, normalized the same way as text.
func NewWikiKeywordAnalyzer(cache *registry.Cache) (*analysis.DefaultAnalyzer, error) {
	tokenizer, err := cache.TokenizerNamed(singleTokenizerName)
	if err != nil {
		return nil, err
	}

	filters, err := filtersNamed(cache,
		lowercaseFilterName,
		porterStemmerName,
		FoldDiacriticsFilterName,
	)
	if err != nil {
		return nil, err
	}

	return &analysis.DefaultAnalyzer{
		Tokenizer:    tokenizer,
		TokenFilters: filters,
	}, nil
}

func filtersNamed(cache *registry.Cache, names ...string) ([]analysis.TokenFilter, error) {
	filters := make([]analysis.TokenFilter, 0, len(names))
	for _, name := range names {
		filter, err := cache.TokenFilterNamed(name)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	return filters, nil
}
