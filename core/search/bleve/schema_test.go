package bleve

import (
	"testing"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/wikisearch/core/search/analyzer"
)

// =============================================================================
// BuildDocumentMapping Tests
// =============================================================================

func TestBuildDocumentMapping_HasAllFields(t *testing.T) {
	docMapping, err := BuildDocumentMapping()
	require.NoError(t, err)
	require.NotNil(t, docMapping)

	assert.False(t, docMapping.Dynamic)
	for _, fc := range DefaultFieldMappings() {
		assert.Contains(t, docMapping.Properties, fc.Name,
			"document mapping should contain field: %s", fc.Name)
	}
}

func fieldMapping(t *testing.T, docMapping *mapping.DocumentMapping, name string) *mapping.FieldMapping {
	t.Helper()
	prop := docMapping.Properties[name]
	require.NotNil(t, prop, "field %s missing", name)
	require.Len(t, prop.Fields, 1)
	return prop.Fields[0]
}

func TestBuildDocumentMapping_SearchableFields(t *testing.T) {
	docMapping, err := BuildDocumentMapping()
	require.NoError(t, err)

	for _, name := range []string{FieldTitle, FieldText} {
		fm := fieldMapping(t, docMapping, name)
		assert.Equal(t, "text", fm.Type)
		assert.Equal(t, analyzer.WikiTextAnalyzerName, fm.Analyzer)
		assert.True(t, fm.Store)
		assert.True(t, fm.Index)
		assert.True(t, fm.IncludeTermVectors, "%s needs term vectors for highlighting", name)
		assert.False(t, fm.IncludeInAll)
	}
}

func TestBuildDocumentMapping_TitleDateSortable(t *testing.T) {
	docMapping, err := BuildDocumentMapping()
	require.NoError(t, err)

	fm := fieldMapping(t, docMapping, FieldTitleDate)
	assert.Equal(t, "datetime", fm.Type)
	assert.True(t, fm.Index)
	assert.True(t, fm.DocValues)
}

func TestBuildDocumentMapping_KeywordFields(t *testing.T) {
	docMapping, err := BuildDocumentMapping()
	require.NoError(t, err)

	assert.Equal(t, analyzer.WikiKeywordAnalyzerName, fieldMapping(t, docMapping, FieldNamespace).Analyzer)
	assert.Equal(t, analyzer.WikiKeywordAnalyzerName, fieldMapping(t, docMapping, FieldCategory).Analyzer)
	assert.Equal(t, KeywordAnalyzerName, fieldMapping(t, docMapping, FieldURL).Analyzer)
	assert.False(t, fieldMapping(t, docMapping, FieldNamespaceID).Index)
}

func TestFieldMappingConfig_InvalidType(t *testing.T) {
	_, err := FieldMappingConfig{Name: "bad", Type: "geo"}.build()
	assert.ErrorIs(t, err, ErrInvalidFieldType)
}

// =============================================================================
// BuildIndexMapping Tests
// =============================================================================

func TestBuildIndexMapping(t *testing.T) {
	indexMapping, err := BuildIndexMapping()
	require.NoError(t, err)

	assert.Equal(t, DefaultTypeName, indexMapping.DefaultType)
	assert.Equal(t, DefaultAnalyzerName, indexMapping.DefaultAnalyzer)
	assert.False(t, indexMapping.IndexDynamic)
	assert.False(t, indexMapping.StoreDynamic)
	assert.Contains(t, indexMapping.TypeMapping, DefaultTypeName)
}

// =============================================================================
// Field Handle Tests
// =============================================================================

func TestResolveFields(t *testing.T) {
	indexMapping, err := BuildIndexMapping()
	require.NoError(t, err)

	fields, err := ResolveFields(indexMapping)
	require.NoError(t, err)
	assert.Equal(t, FieldTitleDate, fields.TitleDate)
	assert.Equal(t, []string{FieldTitle, FieldText}, fields.Searchable())
}

func TestResolveFields_MissingField(t *testing.T) {
	indexMapping, err := BuildIndexMapping()
	require.NoError(t, err)
	delete(indexMapping.DefaultMapping.Properties, FieldTitleDate)

	_, err = ResolveFields(indexMapping)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestResolveFields_NilMapping(t *testing.T) {
	_, err := ResolveFields(nil)
	assert.ErrorIs(t, err, ErrUnknownField)
}
