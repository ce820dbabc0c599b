package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	limiter := New(db, "classifier", 2, time.Minute, nil)
	require.NotNil(t, limiter)

	// Every hit pairs INCR with EXPIRE NX in one transaction, so a failed
	// expiry can never leave a counter without a TTL.
	for i, firstHit := range []bool{true, false, false} {
		mock.ExpectTxPipeline()
		mock.ExpectIncr("ratelimit:classifier:user:1").SetVal(int64(i + 1))
		mock.ExpectExpireNX("ratelimit:classifier:user:1", time.Minute).SetVal(firstHit)
		mock.ExpectTxPipelineExec()
	}

	for _, want := range []bool{true, true, false} {
		allowed, err := limiter.Allow(ctx, "user:1")
		require.NoError(t, err)
		assert.Equal(t, want, allowed)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimiter_AllowPropagatesRedisErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	limiter := New(db, "classifier", 2, time.Minute, nil)

	mock.ExpectTxPipeline()
	mock.ExpectIncr("ratelimit:classifier:user:1").SetErr(errors.New("down"))
	mock.ExpectExpireNX("ratelimit:classifier:user:1", time.Minute).SetVal(false)
	mock.ExpectTxPipelineExec()
	allowed, err := limiter.Allow(context.Background(), "user:1")
	assert.Error(t, err)
	assert.False(t, allowed)
}

func TestNew_Disabled(t *testing.T) {
	assert.Nil(t, New(nil, "classifier", 10, time.Minute, nil))
	db, _ := redismock.NewClientMock()
	assert.Nil(t, New(db, "classifier", 0, time.Minute, nil))
}
