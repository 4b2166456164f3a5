package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockReturnsUTC(t *testing.T) {
	t.Parallel()

	clock := New()
	now := clock.Now()
	require.Equal(t, time.UTC, now.Location())
	require.WithinDuration(t, time.Now().UTC(), now, time.Second)
}
