package sleep

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepTimeout(t *testing.T) {
	assert.Equal(t, Timeout, New().Sleep(time.Millisecond))
}

func TestSleepWoken(t *testing.T) {
	s := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Wake()
	}()
	start := time.Now()
	assert.Equal(t, Woken, s.Sleep(time.Hour))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestPendingWake(t *testing.T) {
	s := New()
	s.Wake()
	s.Wake()
	assert.Equal(t, Woken, s.Sleep(time.Hour))
	assert.Equal(t, Timeout, s.Sleep(time.Millisecond))
}
