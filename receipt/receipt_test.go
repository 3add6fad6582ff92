package receipt

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/lending-engine/lending"
)

type failingIssuer struct{}

func (failingIssuer) Next(context.Context, lending.Date) (string, error) {
	return "", errors.New("connection refused")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "REC-20250311-000042", Format(lending.MustParseDate("2025-03-11"), 42))
}

func TestMemoryIssuer_RestartsEachDay(t *testing.T) {
	ctx := context.Background()
	issuer := NewMemoryIssuer()
	mon := lending.MustParseDate("2025-03-10")
	tue := lending.MustParseDate("2025-03-11")

	first, _ := issuer.Next(ctx, mon)
	second, _ := issuer.Next(ctx, mon)
	other, _ := issuer.Next(ctx, tue)

	assert.Equal(t, "REC-20250310-000001", first)
	assert.Equal(t, "REC-20250310-000002", second)
	assert.Equal(t, "REC-20250311-000001", other)
}

func TestFallbackIssuer_UsesPrimary(t *testing.T) {
	issuer := NewFallbackIssuer(NewMemoryIssuer(), zerolog.Nop())
	got, err := issuer.Next(context.Background(), lending.MustParseDate("2025-03-11"))
	require.NoError(t, err)
	assert.Equal(t, "REC-20250311-000001", got)
}

func TestFallbackIssuer_ClockSuffixOnFailure(t *testing.T) {
	issuer := NewFallbackIssuer(failingIssuer{}, zerolog.Nop())
	issuer.now = func() time.Time { return time.UnixMilli(1741700123456) }

	got, err := issuer.Next(context.Background(), lending.MustParseDate("2025-03-11"))
	require.NoError(t, err)
	assert.Equal(t, "REC-20250311-123456", got)
}

func TestRedisIssuer(t *testing.T) {
	addr := os.Getenv("LENDING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LENDING_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	issuer := NewRedisIssuer(addr, "", 0)
	t.Cleanup(func() { issuer.Close() })
	require.NoError(t, issuer.Ping(ctx))

	day := lending.MustParseDate("1999-12-31")
	issuer.client.Del(ctx, counterKey(day))

	first, err := issuer.Next(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, "REC-19991231-000001", first)

	ttl, err := issuer.client.TTL(ctx, counterKey(day)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 47*time.Hour)
}
