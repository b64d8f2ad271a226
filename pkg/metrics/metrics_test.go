package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransfer(t *testing.T) {
	before := testutil.ToFloat64(TransfersTotal.WithLabelValues("move", "failure"))

	RecordTransfer("move", 3*time.Millisecond, false)

	assert.Equal(t, before+1, testutil.ToFloat64(TransfersTotal.WithLabelValues("move", "failure")))
}

func TestRecordTask(t *testing.T) {
	before := testutil.ToFloat64(TasksExecuted.WithLabelValues("svc", "success"))

	RecordTask("svc", true)
	RecordTask("svc", true)

	assert.Equal(t, before+2, testutil.ToFloat64(TasksExecuted.WithLabelValues("svc", "success")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	RecordQDBOperation("mem", "add", time.Microsecond)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "partmig_qdb_operation_duration_seconds")
}
