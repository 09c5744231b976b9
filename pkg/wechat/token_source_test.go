package wechat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls     int32
	expiresIn int64
	err       error
	delay     time.Duration
}

func (f *fakeFetcher) GetAccessToken(ctx context.Context, appID, appSecret string) (*AccessToken, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &AccessToken{AccessToken: "token-" + string(rune('0'+n)), ExpiresIn: f.expiresIn}, nil
}

func TestTokenSourceCachesUntilThreshold(t *testing.T) {
	fetcher := &fakeFetcher{expiresIn: 7200}
	src := NewTokenSource(fetcher, "app", "secret", 5*time.Minute, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	now = now.Add(time.Hour)
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)

	now = now.Add(56 * time.Minute)
	tok, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}

func TestTokenSourceSingleRefreshUnderConcurrency(t *testing.T) {
	fetcher := &fakeFetcher{expiresIn: 7200, delay: 50 * time.Millisecond}
	src := NewTokenSource(fetcher, "app", "secret", 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := src.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-1", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetcher.calls))
}

func TestTokenSourcePropagatesError(t *testing.T) {
	src := NewTokenSource(&fakeFetcher{err: errors.New("boom")}, "app", "secret", 0, nil)
	_, err := src.Token(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestTokenSourceInvalidate(t *testing.T) {
	fetcher := &fakeFetcher{expiresIn: 7200}
	src := NewTokenSource(fetcher, "app", "secret", 0, nil)
	_, err := src.Token(context.Background())
	require.NoError(t, err)
	src.Invalidate()
	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}
