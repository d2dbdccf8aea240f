package patterns

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

type fakePatternStore struct {
	byCat map[string][]*db.ParsingPattern
	calls int
}

func (f *fakePatternStore) GetAllActivePatterns(ctx context.Context) (map[string][]*db.ParsingPattern, error) {
	f.calls++
	return f.byCat, nil
}

func testPatterns() map[string][]*db.ParsingPattern {
	return map[string][]*db.ParsingPattern{
		CategoryTicker: {
			{ID: 1, Name: "hash_ticker", Category: CategoryTicker, Pattern: `\$([A-Z]{2,6})`, Priority: 10, IsActive: true},
			{ID: 2, Name: "bare_ticker", Category: CategoryTicker, Pattern: `\b([A-Z]{3,5})\b`, Priority: 5, IsActive: true},
		},
		CategoryDirectionLong: {
			{ID: 3, Name: "broken", Category: CategoryDirectionLong, Pattern: `([`, Priority: 1, IsActive: true},
		},
	}
}

func TestStoreLazyLoad(t *testing.T) {
	fake := &fakePatternStore{byCat: testPatterns()}
	store := NewStore(fake)

	assert.Zero(t, fake.calls)

	got, err := store.Get(context.Background(), CategoryTicker)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, fake.calls)

	// Second read serves the snapshot
	_, err = store.Get(context.Background(), CategoryTicker)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestStoreCompileCache(t *testing.T) {
	fake := &fakePatternStore{byCat: testPatterns()}
	store := NewStore(fake)

	tickers, err := store.Get(context.Background(), CategoryTicker)
	require.NoError(t, err)

	re := store.Compiled(tickers[0])
	require.NotNil(t, re)
	assert.Same(t, re, store.Compiled(tickers[0]))

	m := re.FindStringSubmatch("buying $SBER today")
	require.Len(t, m, 2)
	assert.Equal(t, "SBER", m[1])
}

func TestStoreSkipsInvalidRegex(t *testing.T) {
	fake := &fakePatternStore{byCat: testPatterns()}
	store := NewStore(fake)

	dirs, err := store.Get(context.Background(), CategoryDirectionLong)
	require.NoError(t, err)
	require.Len(t, dirs, 1)

	assert.Nil(t, store.Compiled(dirs[0]))
	// Failure is cached, not retried
	assert.Nil(t, store.Compiled(dirs[0]))
}

func TestStoreReloadSwapsSnapshot(t *testing.T) {
	fake := &fakePatternStore{byCat: testPatterns()}
	store := NewStore(fake)

	_, err := store.Get(context.Background(), CategoryTicker)
	require.NoError(t, err)

	fake.byCat = map[string][]*db.ParsingPattern{
		CategoryTicker: {
			{ID: 9, Name: "new", Category: CategoryTicker, Pattern: `X`, Priority: 1, IsActive: true},
		},
	}
	require.NoError(t, store.Reload(context.Background()))

	got, err := store.Get(context.Background(), CategoryTicker)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].ID)

	stats := store.CacheStats()
	assert.True(t, stats.Loaded)
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.Compiled)
}
