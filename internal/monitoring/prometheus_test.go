package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func Test_RecordDirectoryOperation_IncrementsCounter(t *testing.T) {
	// Counters are process-global; assert the delta instead of an absolute.
	before := testutil.ToFloat64(directoryOperationsTotal.WithLabelValues("list_memberships", "success"))
	RecordDirectoryOperation("list_memberships", 5*time.Millisecond, true)
	after := testutil.ToFloat64(directoryOperationsTotal.WithLabelValues("list_memberships", "success"))
	if after != before+1 {
		t.Fatalf("expected directory operations counter to increment; got %f -> %f", before, after)
	}

	errBefore := testutil.ToFloat64(directoryOperationsTotal.WithLabelValues("create_team", "error"))
	RecordDirectoryOperation("create_team", time.Millisecond, false)
	errAfter := testutil.ToFloat64(directoryOperationsTotal.WithLabelValues("create_team", "error"))
	if errAfter != errBefore+1 {
		t.Fatalf("expected directory error counter to increment; got %f -> %f", errBefore, errAfter)
	}
}

func Test_RecordDecision_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(decisionsTotal.WithLabelValues("patients", "read", "denied"))
	RecordDecision("patients", "read", false)
	after := testutil.ToFloat64(decisionsTotal.WithLabelValues("patients", "read", "denied"))
	if after != before+1 {
		t.Fatalf("expected decisions counter to increment; got %f -> %f", before, after)
	}
}
