package tree

import (
	"reflect"
	"testing"
)

func TestSearchTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", nil},
		{"the of and", nil},
		{"Rollout checklist", []string{"Rollout", "checklist"}},
		{"(postgres), postgres! Postgres", []string{"postgres"}},
		{"go db kafka", []string{"kafka"}},
		{"  scheduler   migration  ", []string{"scheduler", "migration"}},
		{"café résumé", []string{"café", "résumé"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := SearchTerms(tt.query)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SearchTerms(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}
