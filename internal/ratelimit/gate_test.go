package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewGateInvalidSpecNamesConfigKey(t *testing.T) {
	_, err := NewGate(map[string]string{
		CategoryWlm:    "5/1m",
		CategoryServer: "bogus",
	})
	require.ErrorIs(t, err, ErrInvalidSpec)
	require.Contains(t, err.Error(), "error_rate_server")
}

func TestGateNoLimitersAlwaysAdmits(t *testing.T) {
	gate, err := NewGate(nil)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 1000; i++ {
		require.False(t, gate.onError(CategoryWlm, now))
		require.False(t, gate.onError(CategoryServer, now))
		require.False(t, gate.onError(CategoryModel, now))
	}
}

func TestGateCategoryLimiterTrips(t *testing.T) {
	gate, err := NewGate(map[string]string{CategoryWlm: "2/1m"})
	require.NoError(t, err)

	now := time.Now()
	require.False(t, gate.onError(CategoryWlm, now))
	require.False(t, gate.onError(CategoryWlm, now))
	require.True(t, gate.onError(CategoryWlm, now))

	// Other categories have no limiter and no fallback is configured.
	require.False(t, gate.onError(CategoryServer, now))
	require.False(t, gate.onError(CategoryModel, now))
}

func TestGateAnyFallbackSharedAcrossCategories(t *testing.T) {
	gate, err := NewGate(map[string]string{CategoryAny: "2/1m"})
	require.NoError(t, err)

	// Driving the fallback to exceed via one category makes every category
	// report exceeded on the next call.
	now := time.Now()
	require.False(t, gate.onError(CategoryModel, now))
	require.False(t, gate.onError(CategoryModel, now))
	require.True(t, gate.onError(CategoryWlm, now))
	require.True(t, gate.onError(CategoryServer, now))
	require.True(t, gate.onError(CategoryModel, now))
}

func TestGateCategoryTripShortCircuitsFallback(t *testing.T) {
	gate, err := NewGate(map[string]string{
		CategoryWlm: "1/1m",
		CategoryAny: "2/1m",
	})
	require.NoError(t, err)

	now := time.Now()
	// First wlm error consumes the category budget and then one unit of the
	// fallback budget.
	require.False(t, gate.onError(CategoryWlm, now))
	// Second wlm error trips the category limiter without touching "any".
	require.True(t, gate.onError(CategoryWlm, now))

	// The fallback still has one unit left for other categories.
	require.False(t, gate.onError(CategoryModel, now))
	require.True(t, gate.onError(CategoryModel, now))
}

func TestGatePublicCheckMethods(t *testing.T) {
	gate, err := NewGate(map[string]string{
		CategoryWlm:    "1/1h",
		CategoryServer: "1/1h",
		CategoryModel:  "1/1h",
	})
	require.NoError(t, err)

	require.False(t, gate.OnWlmError())
	require.True(t, gate.OnWlmError())
	require.False(t, gate.OnServerError())
	require.True(t, gate.OnServerError())
	require.False(t, gate.OnModelError())
	require.True(t, gate.OnModelError())
}

func TestGateConcurrentChecks(t *testing.T) {
	gate, err := NewGate(map[string]string{
		CategoryWlm: "10/1m",
		CategoryAny: "10/1m",
	})
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				gate.OnWlmError()
				gate.OnServerError()
				gate.OnModelError()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
