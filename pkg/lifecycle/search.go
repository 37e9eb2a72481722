package lifecycle

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"gorm.io/gorm"
)

// SearchQuery is a conjunction of field comparisons, e.g.
//
//	environment = dev and content_view ~ "web"
type SearchQuery struct {
	Terms []*SearchTerm `parser:"@@ ( 'and' @@ )*"`
}

// SearchTerm compares one field with a value.
type SearchTerm struct {
	Field string `parser:"@Ident"`
	Op    string `parser:"@Operator"`
	Value string `parser:"@(String | Ident)"`
}

var searchLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\band\b`},
	{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
	{Name: "Operator", Pattern: `!=|=|~`},
	{Name: "Ident", Pattern: `[A-Za-z0-9_][A-Za-z0-9_\-\.:]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var searchParser = participle.MustBuild[SearchQuery](
	participle.Lexer(searchLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.CaseInsensitive("Keyword"),
)

// searchColumns maps search fields to the columns they compare.
var searchColumns = map[string]string{
	"environment":           "lifecycle_environments.label",
	"lifecycle_environment": "lifecycle_environments.label",
	"content_view":          "content_views.label",
	"name":                  "content_view_environments.name",
	"label":                 "content_view_environments.label",
	"cp_id":                 "content_view_environments.cp_id",
}

// likeEscaper makes LIKE wildcards in a search value match literally. '!'
// escapes the same way under every supported dialect.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ParseSearch parses a search expression. An empty expression yields an
// empty query that matches everything.
func ParseSearch(expr string) (*SearchQuery, error) {
	if strings.TrimSpace(expr) == "" {
		return &SearchQuery{}, nil
	}
	q, err := searchParser.ParseString("", expr)
	if err != nil {
		return nil, fmt.Errorf("invalid search %q: %w", expr, err)
	}
	for _, t := range q.Terms {
		if _, ok := searchColumns[strings.ToLower(t.Field)]; !ok {
			return nil, fmt.Errorf("invalid search %q: unknown field %q", expr, t.Field)
		}
	}
	return q, nil
}

// apply narrows a binding query joined with lifecycle_environments and
// content_views.
func (q *SearchQuery) apply(db *gorm.DB) *gorm.DB {
	if q == nil {
		return db
	}
	for _, t := range q.Terms {
		column := searchColumns[strings.ToLower(t.Field)]
		switch t.Op {
		case "=":
			db = db.Where(column+" = ?", t.Value)
		case "!=":
			db = db.Where(column+" <> ?", t.Value)
		case "~":
			db = db.Where(column+" LIKE ? ESCAPE '!'", "%"+likeEscaper.Replace(t.Value)+"%")
		}
	}
	return db
}
