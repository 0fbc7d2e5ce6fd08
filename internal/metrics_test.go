package internal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncRequestBoundsMethodLabel(t *testing.T) {
	before := testutil.ToFloat64(requestsTotal.WithLabelValues("github", "other"))
	IncRequest("github", "BREW")
	IncRequest("github", "X-RANDOM-1")
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("github", "other")); got != before+2 {
		t.Fatalf("expected unknown methods under other, got %v (was %v)", got, before)
	}

	before = testutil.ToFloat64(requestsTotal.WithLabelValues("github", "POST"))
	IncRequest("github", "POST")
	if got := testutil.ToFloat64(requestsTotal.WithLabelValues("github", "POST")); got != before+1 {
		t.Fatalf("expected POST counted under its own label, got %v", got)
	}
}

func TestMethodLabel(t *testing.T) {
	cases := map[string]string{
		"GET":    "GET",
		"POST":   "POST",
		"HEAD":   "HEAD",
		"DELETE": "other",
		"get":    "other",
		"":       "other",
	}
	for method, want := range cases {
		if got := methodLabel(method); got != want {
			t.Fatalf("methodLabel(%q) = %q, want %q", method, got, want)
		}
	}
}
