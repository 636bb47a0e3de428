package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareCountsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodGet, "scan", "404"))
	req := httptest.NewRequest(http.MethodGet, "/scan?data=U9", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(RequestTotal.WithLabelValues(http.MethodGet, "scan", "404"))

	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestPathLabel(t *testing.T) {
	cases := map[string]string{
		"/":            "root",
		"/scan":        "scan",
		"/health":      "health",
		"/metrics":     "metrics",
		"/favicon.ico": "other",
	}
	for in, want := range cases {
		if got := pathLabel(in); got != want {
			t.Fatalf("pathLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
