package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearch(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		terms []SearchTerm
	}{
		{name: "empty", expr: "  "},
		{
			name:  "single term",
			expr:  "environment = dev",
			terms: []SearchTerm{{Field: "environment", Op: "=", Value: "dev"}},
		},
		{
			name: "conjunction with quoted value",
			expr: `lifecycle_environment != Library AND content_view ~ "web servers"`,
			terms: []SearchTerm{
				{Field: "lifecycle_environment", Op: "!=", Value: "Library"},
				{Field: "content_view", Op: "~", Value: "web servers"},
			},
		},
		{
			name:  "label with separator characters",
			expr:  "cp_id=abc-123.def",
			terms: []SearchTerm{{Field: "cp_id", Op: "=", Value: "abc-123.def"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseSearch(tt.expr)
			require.NoError(t, err)
			require.NotNil(t, q)
			require.Len(t, q.Terms, len(tt.terms))
			for i, term := range tt.terms {
				assert.Equal(t, term, *q.Terms[i])
			}
		})
	}
}

func TestParseSearch_Errors(t *testing.T) {
	for _, expr := range []string{
		"environment",
		"environment = ",
		"environment = dev and",
		"owner = ACME",
		"environment dev",
	} {
		t.Run(expr, func(t *testing.T) {
			q, err := ParseSearch(expr)
			assert.Error(t, err)
			assert.Nil(t, q)
		})
	}
}

func TestSearch_LikeMatchesWildcardsLiterally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, label := range []string{"a_b", "axb", "50%off", "500ff"} {
		cv, err := f.orgs.CreateContentView(ctx, f.org.ID, label, label)
		require.NoError(t, err)
		f.bind(t, cv, f.dev)
	}

	tests := []struct {
		expr string
		want []string
	}{
		{expr: `content_view ~ "a_b"`, want: []string{"dev/a_b"}},
		{expr: `content_view ~ "0%"`, want: []string{"dev/50%off"}},
		{expr: `content_view ~ "b"`, want: []string{"dev/a_b", "dev/axb"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			q, err := ParseSearch(tt.expr)
			require.NoError(t, err)
			got, err := f.bindings.List(ctx, ListOptions{OrganizationID: f.org.ID, Search: q})
			require.NoError(t, err)
			labels := make([]string, 0, len(got))
			for _, c := range got {
				labels = append(labels, c.Label)
			}
			assert.ElementsMatch(t, tt.want, labels)
		})
	}
}
