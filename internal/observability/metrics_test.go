package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSynthesisTimer(t *testing.T) {
	successBefore := testutil.ToFloat64(ttsRequests.WithLabelValues(EngineEdge, "success"))
	errorBefore := testutil.ToFloat64(ttsRequests.WithLabelValues(EngineEdge, "error"))
	bytesBefore := testutil.ToFloat64(audioBytes.WithLabelValues(EngineEdge))

	StartSynthesis(EngineEdge).Done(true, 1024)
	StartSynthesis(EngineEdge).Done(false, 0)

	if got := testutil.ToFloat64(ttsRequests.WithLabelValues(EngineEdge, "success")) - successBefore; got != 1 {
		t.Errorf("Expected 1 successful synthesis, got %v", got)
	}
	if got := testutil.ToFloat64(ttsRequests.WithLabelValues(EngineEdge, "error")) - errorBefore; got != 1 {
		t.Errorf("Expected 1 failed synthesis, got %v", got)
	}
	if got := testutil.ToFloat64(audioBytes.WithLabelValues(EngineEdge)) - bytesBefore; got != 1024 {
		t.Errorf("Expected 1024 audio bytes, got %v", got)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	route := "GET /test"
	before := testutil.ToFloat64(httpRequests.WithLabelValues(route, "4xx"))

	RecordHTTPRequest(route, 400, 10*time.Millisecond)
	RecordHTTPRequest(route, 404, 10*time.Millisecond)

	if got := testutil.ToFloat64(httpRequests.WithLabelValues(route, "4xx")) - before; got != 2 {
		t.Errorf("Expected 2 client errors, got %v", got)
	}
}

func TestTempFileGauge(t *testing.T) {
	before := testutil.ToFloat64(tempFilesActive)

	TempFileCreated()
	TempFileCreated()
	TempFileRemoved()

	if got := testutil.ToFloat64(tempFilesActive) - before; got != 1 {
		t.Errorf("Expected 1 active temp file, got %v", got)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		301: "3xx",
		400: "4xx",
		499: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for code, want := range tests {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
