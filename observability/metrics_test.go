package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestLabelOrUnknownFallsBackOnBlank(t *testing.T) {
	require.Equal(t, "unknown", labelOrUnknown("   "))
	require.Equal(t, "insert_state_update", labelOrUnknown("insert_state_update"))
}

func TestOperationsObserveRecordsSuccessAndError(t *testing.T) {
	ops := Operations()

	ops.Observe("insert_channel_event", 5*time.Millisecond, "")
	require.Equal(t, float64(1), testutil.ToFloat64(ops.requests.WithLabelValues("insert_channel_event", "success")))

	ops.Observe("insert_channel_event", 5*time.Millisecond, "validation")
	require.Equal(t, float64(1), testutil.ToFloat64(ops.requests.WithLabelValues("insert_channel_event", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(ops.errors.WithLabelValues("insert_channel_event", "validation")))
}

func TestAdmissionRecordQuarantineAndReorgFlips(t *testing.T) {
	adm := Admission()

	adm.RecordQuarantine("signature_invalid")
	require.Equal(t, float64(1), testutil.ToFloat64(adm.quarantines.WithLabelValues("signature_invalid")))

	before := testutil.ToFloat64(adm.reorgFlips)
	adm.RecordReorgFlips(3)
	adm.RecordReorgFlips(0) // no-op, must not panic or add
	require.Equal(t, before+3, testutil.ToFloat64(adm.reorgFlips))
}

func TestNilMetricsReceiversAreNoOps(t *testing.T) {
	var ops *operationMetrics
	var adm *admissionMetrics

	require.NotPanics(t, func() {
		ops.Observe("x", time.Millisecond, "")
		adm.RecordQuarantine("x")
		adm.RecordReorgFlips(1)
	})
}
