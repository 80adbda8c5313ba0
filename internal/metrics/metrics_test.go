package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"cdn", "https://cdn.jsdelivr.net/gh/fawazahmed0/hadith-api@1/editions/eng-bukhari/1.min.json", "cdn.jsdelivr.net"},
		{"mixed case", "https://Sunnah.com/bukhari/1", "sunnah.com"},
		{"no scheme", "sunnah.com/muslim", "sunnah.com"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	first := ingestRecordsTotal
	Init()
	if ingestRecordsTotal != first {
		t.Fatal("Init() replaced collectors on second call")
	}
}

func TestObserveRecordsSkipsEmpty(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("alpha", "created"))
	ObserveRecords("alpha", "created", 0)
	ObserveRecords("alpha", "created", 3)
	after := testutil.ToFloat64(ingestRecordsTotal.WithLabelValues("alpha", "created"))
	if after-before != 3 {
		t.Fatalf("expected +3 records, got %f", after-before)
	}
}

func TestObserveFetchAndDelay(t *testing.T) {
	ObserveFetch("https://sunnah.com/bukhari/1", "ok", 120)
	ObserveRateLimitDelay("sunnah.com", 20*time.Millisecond)
	if val := testutil.ToFloat64(upstreamBytesTotal.WithLabelValues("sunnah.com")); val < 120 {
		t.Fatalf("expected bytes counter >= 120, got %f", val)
	}
	if n := testutil.CollectAndCount(upstreamRateLimitDelays); n == 0 {
		t.Fatal("expected rate limit histogram to be observed")
	}
}

func TestActiveJobsGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(ingestActiveJobs)
	IncActiveJobs()
	IncActiveJobs()
	DecActiveJobs()
	if got := testutil.ToFloat64(ingestActiveJobs) - before; got != 1 {
		t.Fatalf("expected gauge delta 1, got %f", got)
	}
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://sunnah.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
