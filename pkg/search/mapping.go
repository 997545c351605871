package search

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	unicodetok "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Document fields.
const (
	fieldKind   = "kind"
	fieldName   = "name"
	fieldParent = "parent_id"
)

const (
	nameAnalyzer = "name_ngram"
	nameFilter   = "name_ngram_filter"

	// maxGram bounds the indexed n-grams. Longer query words are cut to
	// it, which only widens the candidate set.
	maxGram = 20
)

// newMapping indexes names as the lowercased n-grams of each word, and the
// kind and parent as exact filters.
func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	// Registration only fails on a malformed config, which these literals
	// are not.
	_ = im.AddCustomTokenFilter(nameFilter, map[string]interface{}{
		"type": ngram.Name,
		"min":  1.0,
		"max":  float64(maxGram),
	})
	_ = im.AddCustomAnalyzer(nameAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicodetok.Name,
		"token_filters": []string{lowercase.Name, nameFilter},
	})

	kind := bleve.NewKeywordFieldMapping()
	kind.Store = false

	name := bleve.NewTextFieldMapping()
	name.Analyzer = nameAnalyzer
	name.Store = false
	name.IncludeTermVectors = false
	name.IncludeInAll = false

	parent := bleve.NewNumericFieldMapping()
	parent.Store = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(fieldKind, kind)
	doc.AddFieldMappingsAt(fieldName, name)
	doc.AddFieldMappingsAt(fieldParent, parent)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = keyword.Name
	return im
}

func docID(k Kind, id int64) string {
	return k.String() + ":" + strconv.FormatInt(id, 10)
}

func (e entry) document(k Kind) map[string]interface{} {
	return map[string]interface{}{
		fieldKind:   k.String(),
		fieldName:   e.name,
		fieldParent: float64(e.parentID),
	}
}

// candidateQuery matches documents of kind k that contain every word of
// needle as an n-gram, optionally restricted to one parent.
func candidateQuery(k Kind, needle string, parentID int64) query.Query {
	kind := bleve.NewTermQuery(k.String())
	kind.SetField(fieldKind)
	q := bleve.NewConjunctionQuery(kind)

	for _, word := range strings.FieldsFunc(needle, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if r := []rune(word); len(r) > maxGram {
			word = string(r[:maxGram])
		}
		term := bleve.NewTermQuery(word)
		term.SetField(fieldName)
		q.AddQuery(term)
	}

	if parentID != 0 {
		v := float64(parentID)
		inclusive := true
		parent := bleve.NewNumericRangeInclusiveQuery(&v, &v, &inclusive, &inclusive)
		parent.SetField(fieldParent)
		q.AddQuery(parent)
	}
	return q
}
