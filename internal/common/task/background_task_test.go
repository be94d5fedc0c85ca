package task

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestBackgroundTaskManager_RunsPeriodically(t *testing.T) {
	m := NewBackgroundTaskManager("test_", prometheus.NewRegistry())
	var runs int32
	m.Register(func() { atomic.AddInt32(&runs, 1) }, 10*time.Millisecond, "counter")

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.StopAll(time.Second))

	stopped := atomic.LoadInt32(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&runs))
}

func TestBackgroundTaskManager_StopTimesOut(t *testing.T) {
	m := NewBackgroundTaskManager("test_", prometheus.NewRegistry())
	release := make(chan struct{})
	defer close(release)
	m.Register(func() { <-release }, time.Hour, "blocked")

	assert.True(t, m.StopAll(20*time.Millisecond))
}
