package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("rsensor", "GET", "/health", 200, 12*time.Millisecond)
	RecordPeerAccepted(1)
	RecordFrameIn("broadcast")
	RecordFrameOut("sensor-update")
	RecordFrameError("malformed")
	RecordPeerDetached("eof", 0)
	RecordDispatchFailure()

	log.Info().Msg("observability/metrics: registration idempotent and recording paths executed")
}

func TestUnknownCommandsShareOneLabel(t *testing.T) {
	before := testutil.ToFloat64(framesIn.WithLabelValues("other"))
	RecordFrameIn("x-custom-1")
	RecordFrameIn("x-custom-2")
	after := testutil.ToFloat64(framesIn.WithLabelValues("other"))
	if after-before != 2 {
		t.Fatalf("expected two increments on the other label, got %v", after-before)
	}
}

func TestPeersActiveGaugeTracksLatestCount(t *testing.T) {
	RecordPeerAccepted(3)
	if got := testutil.ToFloat64(peersActive); got != 3 {
		t.Fatalf("unexpected active peers: %v", got)
	}
	RecordPeerDetached("write_error", 2)
	if got := testutil.ToFloat64(peersActive); got != 2 {
		t.Fatalf("unexpected active peers: %v", got)
	}
}
