package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(start time.Time) (*CallTracker, *time.Time) {
	now := start
	tr := NewCallTracker()
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestCallLifecycle(t *testing.T) {
	tr, now := newTestTracker(time.Unix(1000, 0))

	require.True(t, tr.Join("ch1", "alice"))
	require.False(t, tr.Join("ch1", "bob"))
	assert.True(t, tr.InCall("ch1", "alice"))
	assert.Equal(t, 1, tr.Active())

	*now = now.Add(95 * time.Second)

	_, ended := tr.Leave("ch1", "alice")
	assert.False(t, ended)

	d, ended := tr.Leave("ch1", "bob")
	require.True(t, ended)
	assert.Equal(t, 95*time.Second, d)
	assert.Equal(t, 0, tr.Active())
}

func TestCallJoinIdempotent(t *testing.T) {
	tr, now := newTestTracker(time.Unix(1000, 0))

	require.True(t, tr.Join("ch1", "alice"))
	require.False(t, tr.Join("ch1", "alice"))

	*now = now.Add(10 * time.Second)
	d, ended := tr.Leave("ch1", "alice")
	require.True(t, ended)
	assert.Equal(t, 10*time.Second, d)
}

func TestCallLeaveAbsent(t *testing.T) {
	tr, _ := newTestTracker(time.Unix(1000, 0))

	// no call at all
	_, ended := tr.Leave("ch1", "alice")
	assert.False(t, ended)

	// call running, but the leaver never joined; the call keeps going
	tr.Join("ch1", "alice")
	_, ended = tr.Leave("ch1", "bob")
	assert.False(t, ended)
	assert.True(t, tr.InCall("ch1", "alice"))
}

func TestCallRestartsFresh(t *testing.T) {
	tr, now := newTestTracker(time.Unix(1000, 0))

	tr.Join("ch1", "alice")
	*now = now.Add(time.Minute)
	_, ended := tr.Leave("ch1", "alice")
	require.True(t, ended)

	// a later call in the same channel starts its own clock
	require.True(t, tr.Join("ch1", "bob"))
	*now = now.Add(5 * time.Second)
	d, ended := tr.Leave("ch1", "bob")
	require.True(t, ended)
	assert.Equal(t, 5*time.Second, d)
}

func TestCallsIndependentPerChannel(t *testing.T) {
	tr, _ := newTestTracker(time.Unix(1000, 0))

	require.True(t, tr.Join("ch1", "alice"))
	require.True(t, tr.Join("ch2", "alice"))
	assert.Equal(t, 2, tr.Active())

	_, ended := tr.Leave("ch1", "alice")
	assert.True(t, ended)
	assert.True(t, tr.InCall("ch2", "alice"))
}
