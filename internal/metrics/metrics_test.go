package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPhaseDurationObservesHistogram(t *testing.T) {
	PhaseDuration.Reset()
	RecordPhaseDuration("customers", PhaseInsert, 250*time.Millisecond)

	count := testutil.CollectAndCount(PhaseDuration)
	assert.Equal(t, 1, count)
}

func TestRecordErrorIncrementsCounter(t *testing.T) {
	ErrorsTotal.Reset()
	RecordError("executor", "DB_MERGE_FAILED")
	RecordError("executor", "DB_MERGE_FAILED")

	value := testutil.ToFloat64(ErrorsTotal.WithLabelValues("executor", "DB_MERGE_FAILED"))
	assert.Equal(t, float64(2), value)
}

func TestNewServerReturnsServer(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	assert.NotNil(t, server)
}
