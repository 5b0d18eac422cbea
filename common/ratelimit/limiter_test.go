package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScripter emulates the fixed window script with an in-memory counter
type fakeScripter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{counts: map[string]int64{}}
}

func (f *fakeScripter) eval(keys []string, args ...interface{}) *redis.Cmd {
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.counts[keys[0]]++
	current := f.counts[keys[0]]
	limit := args[0].(int64)
	window := int64(args[1].(int))
	if current > limit {
		return redis.NewCmdResult([]interface{}{int64(0), current, limit, window}, nil)
	}
	return redis.NewCmdResult([]interface{}{int64(1), current, limit, int64(0)}, nil)
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.eval(keys, args...)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

func TestCheckUploadLimit(t *testing.T) {
	limiter := NewRateLimiter(newFakeScripter(), &testLogger{t: t})
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := limiter.CheckUploadLimit(ctx, "alice", 2, 60)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(i), res.CurrentCount)
	}

	res, err := limiter.CheckUploadLimit(ctx, "alice", 2, 60)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(60), res.RetryAfterSeconds)

	res, err = limiter.CheckUploadLimit(ctx, "bob", 2, 60)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "limits are per creator")
}

func TestCheckUploadLimit_RedisError(t *testing.T) {
	scripter := newFakeScripter()
	scripter.err = errors.New("connection refused")
	limiter := NewRateLimiter(scripter, &testLogger{t: t})

	_, err := limiter.CheckUploadLimit(context.Background(), "alice", 2, 60)
	assert.Error(t, err)
}
