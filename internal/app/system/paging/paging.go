// internal/app/system/paging/paging.go
package paging

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/waffle/pantry/query"
)

// PageSize is the default number of rows returned by list endpoints.
const PageSize = 50

// MaxPageSize caps the limit a client may ask for.
const MaxPageSize = 500

// Window is one offset-paged slice of a list.
type Window struct {
	Limit  int
	Offset int
}

// Parse reads the "limit" and "offset" query parameters. A missing, invalid
// or out-of-range limit yields PageSize; a negative offset yields 0.
func Parse(r *http.Request) Window {
	w := Window{Limit: PageSize}
	if n, ok := parseInt(query.Get(r, "limit")); ok && n > 0 && n <= MaxPageSize {
		w.Limit = n
	}
	if n, ok := parseInt(query.Get(r, "offset")); ok && n > 0 {
		w.Offset = n
	}
	return w
}

// Next returns the window after w.
func (w Window) Next() Window {
	return Window{Limit: w.Limit, Offset: w.Offset + w.Limit}
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
