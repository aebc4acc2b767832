package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIPKey(t *testing.T) {
	assert.Equal(t, "ratelimit:signup:ip:10.0.0.1", getIPKey("signup", "10.0.0.1"))
	assert.NotEqual(t, getIPKey("signup", "10.0.0.1"), getIPKey("signin", "10.0.0.1"))
}

func TestNoop(t *testing.T) {
	var l IPLimiter = Noop{}
	ctx := context.Background()

	for range 100 {
		assert.NoError(t, l.RecordIPRequestWithPurpose(ctx, "10.0.0.1", "signup"))
	}
	exceeded, err := l.CheckIPRateLimitWithPurpose(ctx, "10.0.0.1", "signup")
	assert.NoError(t, err)
	assert.False(t, exceeded)
}
