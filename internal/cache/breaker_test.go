package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(3, 10*time.Second)
	b.now = func() time.Time { return now }

	var transitions []BreakerState
	b.OnStateChange = func(_, to BreakerState) { transitions = append(transitions, to) }

	boom := errors.New("boom")
	fail := func() error { return boom }
	ok := func() error { return nil }

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Execute(fail), boom)
	}
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Execute(ok), "success resets the failure count")

	for i := 0; i < 3; i++ {
		_ = b.Execute(fail)
	}
	assert.Equal(t, BreakerOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)

	now = now.Add(11 * time.Second)
	assert.ErrorIs(t, b.Execute(fail), boom, "failed trial call")
	assert.Equal(t, BreakerOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.NoError(t, b.Execute(ok))
	assert.Equal(t, BreakerClosed, b.State())

	assert.Equal(t, []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerOpen, BreakerHalfOpen, BreakerClosed}, transitions)
}
