package uistatic

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesIndexForUnknownPaths(t *testing.T) {
	h := Handler()
	for _, path := range []string{"/", "/index.html", "/history/abc"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "<title>Data Agent</title>") {
			t.Fatalf("%s: expected index page", path)
		}
		if rr.Header().Get("Cache-Control") != "no-store" {
			t.Fatalf("%s: cache control = %q", path, rr.Header().Get("Cache-Control"))
		}
	}
}
