package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusFailed, true},
		{StatusPaid, StatusRefunded, true},
		{StatusPaid, StatusCancelled, true},

		{StatusPending, StatusRefunded, false},
		{StatusPending, StatusCancelled, false},
		{StatusPaid, StatusPending, false},
		{StatusPaid, StatusFailed, false},
		{StatusFailed, StatusPaid, false},
		{StatusRefunded, StatusPaid, false},
		{StatusCancelled, StatusPending, false},
		{StatusPaid, StatusPaid, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, Terminal(StatusPending))
	assert.False(t, Terminal(StatusPaid))
	assert.True(t, Terminal(StatusFailed))
	assert.True(t, Terminal(StatusRefunded))
	assert.True(t, Terminal(StatusCancelled))
}
