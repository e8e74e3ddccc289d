package middleware

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimiter(t *testing.T) {
	start := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	l := newWindowLimiter(2, time.Minute)

	assert.True(t, l.allow("10.0.0.1", start))
	assert.True(t, l.allow("10.0.0.1", start.Add(time.Second)))
	assert.False(t, l.allow("10.0.0.1", start.Add(2*time.Second)))
	assert.True(t, l.allow("10.0.0.2", start.Add(2*time.Second)))

	// A new window resets the count
	assert.True(t, l.allow("10.0.0.1", start.Add(61*time.Second)))
}

func TestWindowLimiterEvictsIdleClients(t *testing.T) {
	start := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	l := newWindowLimiter(10, time.Minute)

	for i := range 100 {
		l.allow(fmt.Sprintf("10.0.0.%d", i), start)
	}
	assert.Equal(t, 100, l.size())

	l.allow("10.0.1.1", start.Add(2*time.Minute))
	assert.Equal(t, 1, l.size())
}
