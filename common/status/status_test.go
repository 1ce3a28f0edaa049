package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCAP(t *testing.T) {
	s := Idle
	assert.True(t, CAP(&s, Idle, Running))
	assert.False(t, CAP(&s, Idle, Running))
	assert.True(t, Load(&s).Running())
	Store(&s, Stopped)
	assert.True(t, Load(&s).Stopped())
	assert.Equal(t, "stopped", s.String())
}
