package distributor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVestedSchedule(t *testing.T) {
	cases := []struct {
		name   string
		now    int64
		locked uint64
		want   uint64
	}{
		{"before start", 500, 300, 0},
		{"at start", 1_000, 300, 0},
		{"quarter", 1_250, 300, 75},
		{"midpoint", 1_500, 300, 150},
		{"rounds down", 1_001, 999, 0},
		{"at end", 2_000, 300, 300},
		{"after end", 9_999, 300, 300},
		{"zero locked", 1_500, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Vested(tc.now, 1_000, 2_000, tc.locked)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestVestedLargeAmountsDoNotOverflow(t *testing.T) {
	got, err := Vested(math.MaxInt64-1, math.MinInt64, math.MaxInt64, math.MaxUint64)
	require.NoError(t, err)
	require.Less(t, got, uint64(math.MaxUint64))
	require.Greater(t, got, uint64(math.MaxUint64-2))

	half, err := Vested(0, -1<<40, 1<<40, math.MaxUint64)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64/2), half)
}

func TestVestedInstantSchedule(t *testing.T) {
	got, err := Vested(1_000, 1_000, 1_000, 42)
	require.NoError(t, err)
	require.Zero(t, got)
	got, err = Vested(1_001, 1_000, 1_000, 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got)
}

func TestVestedMonotonic(t *testing.T) {
	var prev uint64
	for now := int64(900); now <= 2_100; now += 7 {
		got, err := Vested(now, 1_000, 2_000, 12_345)
		require.NoError(t, err)
		require.GreaterOrEqual(t, got, prev)
		require.LessOrEqual(t, got, uint64(12_345))
		prev = got
	}
}

func TestAmountWithdrawable(t *testing.T) {
	status := &ClaimStatus{LockedAmount: 300, LockedAmountWithdrawn: 150}
	got, err := status.AmountWithdrawable(1_500, 1_000, 2_000)
	require.NoError(t, err)
	require.Zero(t, got)

	got, err = status.AmountWithdrawable(2_000, 1_000, 2_000)
	require.NoError(t, err)
	require.Equal(t, uint64(150), got)
}

func TestStateOf(t *testing.T) {
	require.Equal(t, ClaimUnclaimed, StateOf(nil))
	require.Equal(t, ClaimPartiallyClaimed, StateOf(&ClaimStatus{LockedAmount: 1}))
	require.Equal(t, ClaimFullyClaimed, StateOf(&ClaimStatus{}))
	require.Equal(t, "fully_claimed", ClaimFullyClaimed.String())
}
