// Package bleve stores wiki pages in Bleve indexes. It owns the document
// schema, builds and atomically swaps index generations on reindex, plans
// queries and assembles paginated, snippeted results.
package bleve

import (
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/adalundhe/wikisearch/core/search/analyzer"

	// Registers the keyword analyzer used by the url field.
	_ "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
)

// SchemaVersion identifies the document layout. Indexes written with a
// different version are rejected on open.
const SchemaVersion = "wikisearch-page-v1"

// Schema names.
const (
	DefaultTypeName     = "page"
	DefaultAnalyzerName = analyzer.WikiTextAnalyzerName
	KeywordAnalyzerName = "keyword"
)

// Field names.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldText        = "text"
	FieldTitleDate   = "title_date"
	FieldUpdated     = "updated"
	FieldNamespace   = "namespace"
	FieldNamespaceID = "namespace_id"
	FieldURL         = "url"
	FieldCategory    = "category"
)

var (
	// ErrInvalidFieldType indicates an unknown field type was specified.
	ErrInvalidFieldType = errors.New("invalid field type")

	// ErrUnknownField indicates a field is missing from the index mapping.
	ErrUnknownField = errors.New("unknown field")
)

// =============================================================================
// Field Mapping Configuration
// =============================================================================

// FieldMappingType represents the type of a field mapping.
type FieldMappingType string

const (
	// FieldTypeText is for analyzed text fields.
	FieldTypeText FieldMappingType = "text"

	// FieldTypeDateTime is for sortable timestamp fields.
	FieldTypeDateTime FieldMappingType = "datetime"

	// FieldTypeNumeric is for sortable numeric fields.
	FieldTypeNumeric FieldMappingType = "numeric"
)

// FieldMappingConfig defines the mapping of a single document field.
type FieldMappingConfig struct {
	Name        string
	Type        FieldMappingType
	Analyzer    string
	Store       bool
	Index       bool
	TermVectors bool
	DocValues   bool
}

// DefaultFieldMappings returns the page document fields.
func DefaultFieldMappings() []FieldMappingConfig {
	return []FieldMappingConfig{
		{Name: FieldID, Type: FieldTypeNumeric, Store: true, Index: true, DocValues: true},
		{Name: FieldTitle, Type: FieldTypeText, Analyzer: analyzer.WikiTextAnalyzerName, Store: true, Index: true, TermVectors: true},
		{Name: FieldText, Type: FieldTypeText, Analyzer: analyzer.WikiTextAnalyzerName, Store: true, Index: true, TermVectors: true},
		{Name: FieldTitleDate, Type: FieldTypeDateTime, Store: true, Index: true, DocValues: true},
		{Name: FieldUpdated, Type: FieldTypeDateTime, Store: true, Index: true, DocValues: true},
		{Name: FieldNamespace, Type: FieldTypeText, Analyzer: analyzer.WikiKeywordAnalyzerName, Store: true, Index: true},
		{Name: FieldNamespaceID, Type: FieldTypeNumeric, Store: true, Index: false},
		{Name: FieldURL, Type: FieldTypeText, Analyzer: KeywordAnalyzerName, Store: true, Index: true},
		{Name: FieldCategory, Type: FieldTypeText, Analyzer: analyzer.WikiKeywordAnalyzerName, Store: true, Index: true},
	}
}

func (fc FieldMappingConfig) build() (*mapping.FieldMapping, error) {
	var fm *mapping.FieldMapping
	switch fc.Type {
	case FieldTypeText:
		fm = mapping.NewTextFieldMapping()
		fm.Analyzer = fc.Analyzer
	case FieldTypeDateTime:
		fm = mapping.NewDateTimeFieldMapping()
	case FieldTypeNumeric:
		fm = mapping.NewNumericFieldMapping()
	default:
		return nil, fmt.Errorf("%w: %q for field %q", ErrInvalidFieldType, fc.Type, fc.Name)
	}
	fm.Store = fc.Store
	fm.Index = fc.Index
	fm.IncludeTermVectors = fc.TermVectors
	fm.DocValues = fc.DocValues
	fm.IncludeInAll = false
	return fm, nil
}

// =============================================================================
// Mappings
// =============================================================================

// BuildDocumentMapping creates the static page document mapping.
func BuildDocumentMapping() (*mapping.DocumentMapping, error) {
	docMapping := mapping.NewDocumentStaticMapping()
	for _, fc := range DefaultFieldMappings() {
		fm, err := fc.build()
		if err != nil {
			return nil, err
		}
		docMapping.AddFieldMappingsAt(fc.Name, fm)
	}
	return docMapping, nil
}

// BuildIndexMapping creates the index mapping with the page mapping as the
// default mapping.
func BuildIndexMapping() (*mapping.IndexMappingImpl, error) {
	docMapping, err := BuildDocumentMapping()
	if err != nil {
		return nil, err
	}

	indexMapping := mapping.NewIndexMapping()
	indexMapping.DefaultType = DefaultTypeName
	indexMapping.DefaultAnalyzer = DefaultAnalyzerName
	indexMapping.DefaultMapping = docMapping
	indexMapping.AddDocumentMapping(DefaultTypeName, docMapping)
	indexMapping.StoreDynamic = false
	indexMapping.IndexDynamic = false
	indexMapping.DocValuesDynamic = false

	if err := indexMapping.Validate(); err != nil {
		return nil, fmt.Errorf("validate mapping: %w", err)
	}
	return indexMapping, nil
}

// =============================================================================
// Field Handles
// =============================================================================

// Fields holds the schema's field names, checked against the mapping once
// so the planner and executor never refer to fields the index lacks.
type Fields struct {
	ID          string
	Title       string
	Text        string
	TitleDate   string
	Updated     string
	Namespace   string
	NamespaceID string
	URL         string
	Category    string
}

// ResolveFields returns the field handles for the page mapping.
func ResolveFields(m *mapping.IndexMappingImpl) (Fields, error) {
	f := Fields{
		ID:          FieldID,
		Title:       FieldTitle,
		Text:        FieldText,
		TitleDate:   FieldTitleDate,
		Updated:     FieldUpdated,
		Namespace:   FieldNamespace,
		NamespaceID: FieldNamespaceID,
		URL:         FieldURL,
		Category:    FieldCategory,
	}
	if m == nil || m.DefaultMapping == nil {
		return Fields{}, fmt.Errorf("%w: mapping has no default document", ErrUnknownField)
	}
	for _, name := range f.stored() {
		if _, ok := m.DefaultMapping.Properties[name]; !ok {
			return Fields{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}
	return f, nil
}

// Searchable returns the fields unfielded query terms are matched against.
func (f Fields) Searchable() []string {
	return []string{f.Title, f.Text}
}

func (f Fields) stored() []string {
	return []string{f.ID, f.Title, f.Text, f.TitleDate, f.Updated, f.Namespace, f.NamespaceID, f.URL, f.Category}
}
