package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketAllowsBurstUpToCapacity(t *testing.T) {
	mock := clock.NewMock()
	b := NewBucket(Config{MaxRequests: 3, Window: time.Minute}, mock)

	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBucketRefillsFromElapsedTime(t *testing.T) {
	mock := clock.NewMock()
	// 60 requests per minute refills one token per second.
	b := NewBucket(Config{MaxRequests: 60, Window: time.Minute}, mock)
	for i := 0; i < 60; i++ {
		require.True(t, b.Allow())
	}
	require.False(t, b.Allow())

	mock.Add(time.Second)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestBucketRefillNeverExceedsCapacity(t *testing.T) {
	mock := clock.NewMock()
	b := NewBucket(Config{MaxRequests: 2, Window: time.Second}, mock)

	mock.Add(time.Hour)
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())
}

func TestLimiterKeepsKeysIndependent(t *testing.T) {
	mock := clock.NewMock()
	l := NewLimiter(Config{MaxRequests: 1, Window: time.Minute}, mock)

	require.NoError(t, l.Check("conn-a"))
	require.ErrorIs(t, l.Check("conn-a"), ErrLimited)
	assert.NoError(t, l.Check("conn-b"))
}

func TestConfigValid(t *testing.T) {
	assert.True(t, Config{MaxRequests: 10, Window: time.Second}.Valid())
	assert.False(t, Config{MaxRequests: 0, Window: time.Second}.Valid())
	assert.False(t, Config{MaxRequests: 10}.Valid())
}
