package paging

import (
	"net/http/httptest"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Window
	}{
		{"defaults", "", Window{Limit: PageSize}},
		{"explicit", "?limit=10&offset=20", Window{Limit: 10, Offset: 20}},
		{"limit too large", "?limit=5000", Window{Limit: PageSize}},
		{"zero limit", "?limit=0", Window{Limit: PageSize}},
		{"garbage", "?limit=ten&offset=-", Window{Limit: PageSize}},
		{"negative offset", "?offset=-5", Window{Limit: PageSize}},
		{"max limit", "?limit=500", Window{Limit: MaxPageSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/groups"+tt.query, nil)
			if got := Parse(r); got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestWindow_Next(t *testing.T) {
	w := Window{Limit: 25, Offset: 50}
	if got := w.Next(); got != (Window{Limit: 25, Offset: 75}) {
		t.Errorf("Next = %+v", got)
	}
}
