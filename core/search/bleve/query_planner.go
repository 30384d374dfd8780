package bleve

import (
	"fmt"
	"regexp/syntax"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/adalundhe/wikisearch/core/search"
	"github.com/adalundhe/wikisearch/core/search/analyzer"
)

// fuzzyEditDistance is the edit distance allowed for fuzzy terms.
const fuzzyEditDistance = 1

// matchAllQuery is the query string that matches every page.
const matchAllQuery = "*"

// QueryPlan is an executable query with its options.
type QueryPlan struct {
	Raw         string
	Query       query.Query
	Options     search.QueryOptions
	DateOrdered bool
}

// QueryPlanner turns query strings into Bleve queries over the page
// schema. Unfielded terms search both title and text.
type QueryPlanner struct {
	fields Fields
}

// NewQueryPlanner creates a planner for the given field handles.
func NewQueryPlanner(fields Fields) *QueryPlanner {
	return &QueryPlanner{fields: fields}
}

// Planner returns a query planner bound to this index's schema.
func (m *IndexManager) Planner() *QueryPlanner {
	return NewQueryPlanner(m.fields)
}

// Plan parses raw using the query-string syntax (+must -not "phrase"
// field:term term~N) and applies opts. A blank query or "*" matches all
// pages. Syntax errors are reported as search.ErrInvalidQuery.
//
// When either date bound is set the text query is intersected with an
// inclusive title_date range and results are ordered by date; otherwise no
// date clause is added and pages without a title date still match.
func (p *QueryPlanner) Plan(raw string, opts search.QueryOptions) (*QueryPlan, error) {
	if err := opts.ValidateAndNormalize(); err != nil {
		return nil, err
	}

	textQuery, err := p.parse(raw, opts.Fuzzy)
	if err != nil {
		return nil, err
	}

	plan := &QueryPlan{
		Raw:     raw,
		Query:   textQuery,
		Options: opts,
	}

	if opts.HasDateFilter() {
		boolQuery := bleve.NewBooleanQuery()
		boolQuery.AddMust(textQuery, p.dateRange(opts.DateAfter, opts.DateBefore))
		plan.Query = boolQuery
		plan.DateOrdered = true
	}

	if v, ok := plan.Query.(query.ValidatableQuery); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", search.ErrInvalidQuery, err)
		}
	}
	return plan, nil
}

func (p *QueryPlanner) parse(raw string, fuzzy bool) (query.Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == matchAllQuery {
		return bleve.NewMatchAllQuery(), nil
	}

	parsed, err := query.NewQueryStringQuery(trimmed).Parse()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrInvalidQuery, err)
	}
	if err := checkRegexps(parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrInvalidQuery, err)
	}
	return p.expand(parsed, fuzzy), nil
}

// checkRegexps compiles every /regexp/ leaf of q. Bleve only compiles them
// when the query runs.
func checkRegexps(q query.Query) error {
	switch q := q.(type) {
	case *query.BooleanQuery:
		for _, sub := range []query.Query{q.Must, q.Should, q.MustNot} {
			if sub == nil {
				continue
			}
			if err := checkRegexps(sub); err != nil {
				return err
			}
		}
	case *query.ConjunctionQuery:
		for _, sub := range q.Conjuncts {
			if err := checkRegexps(sub); err != nil {
				return err
			}
		}
	case *query.DisjunctionQuery:
		for _, sub := range q.Disjuncts {
			if err := checkRegexps(sub); err != nil {
				return err
			}
		}
	case *query.RegexpQuery:
		if _, err := syntax.Parse(q.Regexp, syntax.Perl); err != nil {
			return fmt.Errorf("regexp /%s/: %w", q.Regexp, err)
		}
	}
	return nil
}

func (p *QueryPlanner) dateRange(after, before *time.Time) query.Query {
	var start, end time.Time
	if after != nil {
		start = *after
	}
	if before != nil {
		end = *before
	}
	inclusive := true
	dateQuery := bleve.NewDateRangeInclusiveQuery(start, end, &inclusive, &inclusive)
	dateQuery.SetField(p.fields.TitleDate)
	return dateQuery
}

// =============================================================================
// Field Expansion
// =============================================================================

// expand rewrites every unfielded leaf of q into a disjunction over the
// searchable fields. Compound queries are rewritten in place.
func (p *QueryPlanner) expand(q query.Query, fuzzy bool) query.Query {
	switch q := q.(type) {
	case *query.BooleanQuery:
		if q.Must != nil {
			q.Must = p.expand(q.Must, fuzzy)
		}
		if q.Should != nil {
			q.Should = p.expand(q.Should, fuzzy)
		}
		if q.MustNot != nil {
			q.MustNot = p.expand(q.MustNot, fuzzy)
		}
		return q
	case *query.ConjunctionQuery:
		for i := range q.Conjuncts {
			q.Conjuncts[i] = p.expand(q.Conjuncts[i], fuzzy)
		}
		return q
	case *query.DisjunctionQuery:
		for i := range q.Disjuncts {
			q.Disjuncts[i] = p.expand(q.Disjuncts[i], fuzzy)
		}
		return q

	case *query.MatchQuery:
		if q.FieldVal != "" {
			return q
		}
		return p.expandMatch(q, fuzzy)
	case *query.MatchPhraseQuery:
		return p.acrossFields(q.FieldVal, q, func(field string) query.Query {
			c := *q
			c.SetField(field)
			return &c
		})
	case *query.FuzzyQuery:
		return p.acrossFields(q.FieldVal, q, func(field string) query.Query {
			c := *q
			c.SetField(field)
			return &c
		})
	case *query.PrefixQuery:
		return p.acrossFields(q.FieldVal, q, func(field string) query.Query {
			c := *q
			c.SetField(field)
			return &c
		})
	case *query.WildcardQuery:
		return p.acrossFields(q.FieldVal, q, func(field string) query.Query {
			c := *q
			c.SetField(field)
			return &c
		})
	case *query.RegexpQuery:
		return p.acrossFields(q.FieldVal, q, func(field string) query.Query {
			c := *q
			c.SetField(field)
			return &c
		})
	case *query.TermQuery:
		return p.acrossFields(q.FieldVal, q, func(field string) query.Query {
			c := *q
			c.SetField(field)
			return &c
		})
	}
	return q
}

// acrossFields returns q unchanged when it already names a field, and a
// disjunction of per-field copies otherwise.
func (p *QueryPlanner) acrossFields(field string, q query.Query, forField func(string) query.Query) query.Query {
	if field != "" {
		return q
	}
	disjunction := bleve.NewDisjunctionQuery()
	for _, f := range p.fields.Searchable() {
		disjunction.AddQuery(forField(f))
	}
	return disjunction
}

// expandMatch expands an unfielded term. With fuzzy set, each field also
// matches within the fuzzy edit distance and by prefix.
func (p *QueryPlanner) expandMatch(q *query.MatchQuery, fuzzy bool) query.Query {
	disjunction := bleve.NewDisjunctionQuery()
	prefix := prefixTerm(q.Match)

	for _, field := range p.fields.Searchable() {
		c := *q
		c.SetField(field)
		if fuzzy && c.Fuzziness == 0 {
			c.SetFuzziness(fuzzyEditDistance)
		}
		disjunction.AddQuery(&c)

		if fuzzy && prefix != "" {
			prefixQuery := bleve.NewPrefixQuery(prefix)
			prefixQuery.SetField(field)
			disjunction.AddQuery(prefixQuery)
		}
	}
	return disjunction
}

// prefixTerm normalizes a single-word term for prefix matching. Prefix
// queries bypass analysis, so the term gets the analyzer's case and
// diacritic folding here.
func prefixTerm(term string) string {
	term = strings.TrimSpace(term)
	if term == "" || strings.ContainsAny(term, " \t\n") {
		return ""
	}
	return analyzer.Fold(strings.ToLower(term))
}
