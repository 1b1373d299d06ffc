package exec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnswerDotAI/ai-jup/core"
)

func TestInProcessBackend_Execute(t *testing.T) {
	b := NewInProcessBackend()
	b.Register("echo", func(ctx context.Context, args map[string]any) (string, error) {
		return args["msg"].(string), nil
	})

	out, err := b.Execute(context.Background(), "s1", "echo", map[string]any{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestInProcessBackend_UnknownFunction(t *testing.T) {
	b := NewInProcessBackend()
	_, err := b.Execute(context.Background(), "s1", "missing", nil)
	assert.Equal(t, core.CodeUnknownTool, core.CodeOf(err))
}

func TestInProcessBackend_HandlerError(t *testing.T) {
	b := NewInProcessBackend()
	b.Register("boom", func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("kernel panic")
	})
	_, err := b.Execute(context.Background(), "s1", "boom", nil)
	assert.Equal(t, core.CodeExecutionFailed, core.CodeOf(err))
	assert.Contains(t, err.Error(), "kernel panic")
}

func TestLockRegistry_SerializesSameSession(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	release, err := r.Acquire(ctx, "s1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		rel, err := r.Acquire(ctx, "s1")
		if err == nil {
			close(acquired)
			rel()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never succeeded after release")
	}
}

func TestLockRegistry_DistinctSessionsIndependent(t *testing.T) {
	r := NewLockRegistry()
	ctx := context.Background()

	rel1, err := r.Acquire(ctx, "s1")
	require.NoError(t, err)
	defer rel1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	rel2, err := r.Acquire(ctx2, "s2")
	require.NoError(t, err)
	rel2()
}

func TestLockRegistry_AcquireHonorsContext(t *testing.T) {
	r := NewLockRegistry()
	release, err := r.Acquire(context.Background(), "s1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
