package ioengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimBackendReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewSimBackend()
	h, err := b.Open(ctx, "stream-1.log", OpenReadWrite)
	require.NoError(t, err)

	n, err := h.Write(ctx, []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	size, err := h.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	buf := make([]byte, 5)
	n, err = h.ReadAt(ctx, 6, buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))
}

func TestSimBackendConcurrentReadersDoNotMoveSharedPointer(t *testing.T) {
	ctx := context.Background()
	b := NewSimBackend()
	h, _ := b.Open(ctx, "x.log", OpenReadWrite)
	_, _ = h.Write(ctx, []byte("abcdefgh"))

	buf1 := make([]byte, 2)
	buf2 := make([]byte, 2)
	_, err := h.ReadAt(ctx, 4, buf1)
	require.NoError(t, err)
	_, err = h.ReadAt(ctx, 0, buf2)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf1))
	assert.Equal(t, "ab", string(buf2))
}

func TestFaultPlanFailWriteAfter(t *testing.T) {
	ctx := context.Background()
	b := NewSimBackend()
	b.SetFaultPlan("x.log", FaultPlan{FailWriteAfter: 2})
	h, _ := b.Open(ctx, "x.log", OpenReadWrite)

	_, err := h.Write(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = h.Write(ctx, []byte("b"))
	assert.ErrorIs(t, err, ErrInjectedFault)
}

func TestFaultPlanPartialWrite(t *testing.T) {
	ctx := context.Background()
	b := NewSimBackend()
	b.SetFaultPlan("x.log", FaultPlan{PartialWriteAfter: 1, PartialWriteBytes: 3})
	h, _ := b.Open(ctx, "x.log", OpenReadWrite)

	n, err := h.Write(ctx, []byte("abcdefgh"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFaultPlanFailFsyncAfter(t *testing.T) {
	ctx := context.Background()
	b := NewSimBackend()
	b.SetFaultPlan("x.log", FaultPlan{FailFsyncAfter: 1})
	h, _ := b.Open(ctx, "x.log", OpenReadWrite)

	assert.ErrorIs(t, h.Fsync(ctx), ErrInjectedFault)
}
