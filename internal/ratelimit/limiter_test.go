package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "count per minute", spec: "10/1m"},
		{name: "count per second", spec: "1/1s"},
		{name: "whitespace tolerated", spec: " 5 / 30s "},
		{name: "empty", spec: "", wantErr: true},
		{name: "no separator", spec: "10", wantErr: true},
		{name: "count not a number", spec: "abc/1m", wantErr: true},
		{name: "zero count", spec: "0/1m", wantErr: true},
		{name: "negative count", spec: "-5/1m", wantErr: true},
		{name: "missing window", spec: "10/", wantErr: true},
		{name: "zero window", spec: "10/0s", wantErr: true},
		{name: "negative window", spec: "10/-1m", wantErr: true},
		{name: "window not a duration", spec: "10/fast", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Parse(tt.spec)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSpec)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

func TestExceedBeyondRate(t *testing.T) {
	l, err := Parse("2/1s")
	require.NoError(t, err)

	now := time.Now()
	require.False(t, l.ExceedAt(now))
	require.False(t, l.ExceedAt(now))
	require.True(t, l.ExceedAt(now))
}

func TestExceedAtOrBelowRateNeverTrips(t *testing.T) {
	l, err := Parse("2/1s")
	require.NoError(t, err)

	// One event every 500ms matches the configured two-per-second rate.
	now := time.Now()
	for i := 0; i < 20; i++ {
		require.False(t, l.ExceedAt(now.Add(time.Duration(i)*500*time.Millisecond)))
	}
}

func TestExceedRecoversAfterQuietWindow(t *testing.T) {
	l, err := Parse("1/1s")
	require.NoError(t, err)

	now := time.Now()
	require.False(t, l.ExceedAt(now))
	require.True(t, l.ExceedAt(now))
	require.False(t, l.ExceedAt(now.Add(2*time.Second)))
}

func TestNilLimiterNeverExceeds(t *testing.T) {
	var l *Limiter
	for i := 0; i < 100; i++ {
		require.False(t, l.Exceed())
	}
}
