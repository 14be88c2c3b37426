package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIngest(t *testing.T) {
	before := testutil.ToFloat64(ingestRuns.WithLabelValues("file", OutcomeFailed))
	RecordIngest("file", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(ingestRuns.WithLabelValues("file", OutcomeFailed)))
}

func TestRecordLakeWrite(t *testing.T) {
	before := testutil.ToFloat64(lakeBytes)
	RecordLakeWrite(OutcomeOK, 2048)
	RecordLakeWrite(OutcomeSkipped, 0)
	assert.Equal(t, before+2048, testutil.ToFloat64(lakeBytes))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveStage("profiling", time.Now(), nil)
	RecordProgressDrop("s1")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "omd_ingest_stage_duration_seconds")
	assert.Contains(t, string(body), "omd_progress_events_dropped_total")
}

func TestStartSpanWithoutExporterIsNoop(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "stage")
	AddSpanEvent(ctx, "event")
	EndSpan(span, errors.New("x"))
	assert.False(t, span.SpanContext().IsValid())
}
