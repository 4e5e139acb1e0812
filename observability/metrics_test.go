package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"merkledrop/core/types"
	"merkledrop/native/distributor"
)

type testEvent struct{ evt *types.Event }

func (e testEvent) EventType() string   { return e.evt.Type }
func (e testEvent) Event() *types.Event { return e.evt }

func TestAPIObserve(t *testing.T) {
	m := API()
	okBefore := testutil.ToFloat64(m.requests.WithLabelValues("/v1/claims", "GET", "success"))
	errBefore := testutil.ToFloat64(m.errors.WithLabelValues("/v1/claims", "GET", "404"))

	m.Observe("/v1/claims", "GET", 200, 5*time.Millisecond)
	m.Observe("/v1/claims", "GET", 404, time.Millisecond)

	require.Equal(t, okBefore+1, testutil.ToFloat64(m.requests.WithLabelValues("/v1/claims", "GET", "success")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(m.errors.WithLabelValues("/v1/claims", "GET", "404")))
}

func TestAPIThrottleAndRejection(t *testing.T) {
	m := API()
	before := testutil.ToFloat64(m.throttles.WithLabelValues("unspecified"))
	m.RecordThrottle("")
	require.Equal(t, before+1, testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")))

	rejBefore := testutil.ToFloat64(m.rejections.WithLabelValues("new_claim", "invalid_proof"))
	m.RecordRejection("new_claim", "invalid_proof")
	require.Equal(t, rejBefore+1, testutil.ToFloat64(m.rejections.WithLabelValues("new_claim", "invalid_proof")))

	var nilMetrics *apiMetrics
	nilMetrics.Observe("x", "GET", 200, 0)
}

func TestEventMetricsCountAmounts(t *testing.T) {
	m := Events()
	countBefore := testutil.ToFloat64(m.events.WithLabelValues(distributor.EventTypeClaimed))
	amountBefore := testutil.ToFloat64(m.amounts.WithLabelValues(distributor.EventTypeClaimed))

	m.Emit(testEvent{evt: distributor.NewClaimedEvent([32]byte{1}, [20]byte{2}, 150, 150, 500)})
	m.Emit(testEvent{evt: distributor.NewAdminUpdatedEvent([32]byte{1}, [20]byte{2}, [20]byte{3})})
	m.Emit(nil)

	require.Equal(t, countBefore+1, testutil.ToFloat64(m.events.WithLabelValues(distributor.EventTypeClaimed)))
	require.Equal(t, amountBefore+150, testutil.ToFloat64(m.amounts.WithLabelValues(distributor.EventTypeClaimed)))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.events.WithLabelValues(distributor.EventTypeAdminUpdated)), 1.0)
}
