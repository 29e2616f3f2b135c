package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/catalog/internal/domain"
	"github.com/mmcdole/catalog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T, kv domain.KeyValueStore, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	if kv == nil {
		mem, err := store.NewKV("", "")
		require.NoError(t, err)
		kv = mem
	}
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(kv, nil, opts...), clock
}

func TestSaveThenGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil)

	shows := []domain.Show{{ID: 1, Title: "Morning"}, {ID: 2, Title: "Evening"}}
	res := c.Save(ctx, c.ListKey(domain.EntityShows), shows)
	require.Equal(t, Stored, res.Status)
	assert.Positive(t, res.Size)

	var got []domain.Show
	require.True(t, c.Get(ctx, c.ListKey(domain.EntityShows), &got))
	assert.Equal(t, shows, got)
}

func TestGetMissingAndCleared(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil)
	key := c.ItemKey(domain.EntityEpisodes, 7)

	var ep domain.Episode
	assert.False(t, c.Get(ctx, key, &ep))

	c.Save(ctx, key, domain.Episode{ID: 7})
	require.NoError(t, c.Clear(key))
	require.NoError(t, c.Clear(key))
	assert.False(t, c.Get(ctx, key, &ep))
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t, nil, WithExpiry(10*time.Minute))
	key := c.ListKey(domain.EntityStreams)
	c.Save(ctx, key, []domain.Stream{{ID: 1}})

	var got []domain.Stream
	clock.Advance(10 * time.Minute)
	assert.True(t, c.Get(ctx, key, &got), "entry at exactly the window is fresh")

	clock.Advance(time.Millisecond)
	assert.False(t, c.Get(ctx, key, &got))
	assert.True(t, c.Get(ctx, key, &got, MaxAge(time.Hour)))

	clock.Advance(48 * time.Hour)
	assert.True(t, c.Get(ctx, key, &got, IgnoreExpiry()))
	assert.Len(t, got, 1)
}

func TestMalformedEntriesAreMisses(t *testing.T) {
	ctx := context.Background()
	kv, err := store.NewKV("", "")
	require.NoError(t, err)
	c, _ := newTestCache(t, kv)

	tests := []struct {
		name  string
		value string
	}{
		{"not json", "{{{"},
		{"no data", `{"timestamp": 1}`},
		{"wrong payload type", `{"timestamp": 1, "data": "text"}`},
		{"null data", `{"timestamp": 1, "data": null}`},
		{"null data with spaces", `{"timestamp": 1, "data": null }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := c.Namespace() + tt.name
			require.NoError(t, kv.Set(key, tt.value))
			var shows []domain.Show
			assert.False(t, c.Get(ctx, key, &shows, IgnoreExpiry()))
		})
	}
}

func TestOversizeSaveIsSkipped(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil, WithMaxEntrySize(200))
	key := c.ListKey(domain.EntityShows)

	require.Equal(t, Stored, c.Save(ctx, key, []domain.Show{{ID: 1, Title: "small"}}).Status)

	res := c.Save(ctx, key, []domain.Show{{ID: 2, Title: strings.Repeat("x", 500)}})
	assert.Equal(t, Skipped, res.Status)
	assert.Greater(t, res.Size, 200)

	// The prior value is untouched
	var got []domain.Show
	require.True(t, c.Get(ctx, key, &got))
	assert.Equal(t, "small", got[0].Title)
}

func TestSizeGuardCountsCharacters(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, nil, WithMaxEntrySize(1000))
	key := c.ListKey(domain.EntityShows)

	// 900 runes but 2700 bytes
	res := c.Save(ctx, key, []domain.Show{{ID: 1, Title: strings.Repeat("日", 900)}})
	assert.Equal(t, Stored, res.Status)
	assert.Less(t, res.Size, 1000)

	// Not expanded to \u0026 escapes
	res = c.Save(ctx, key, []domain.Show{{ID: 2, Title: strings.Repeat("&<>", 300)}})
	assert.Equal(t, Stored, res.Status)

	var got []domain.Show
	require.True(t, c.Get(ctx, key, &got))
	assert.Equal(t, strings.Repeat("&<>", 300), got[0].Title)

	res = c.Save(ctx, key, []domain.Show{{ID: 3, Title: strings.Repeat("日", 1100)}})
	assert.Equal(t, Skipped, res.Status)
}

func TestStorageFullClearsNamespace(t *testing.T) {
	ctx := context.Background()
	kv, err := store.NewKV("", "", store.WithQuota(400))
	require.NoError(t, err)
	c, _ := newTestCache(t, kv)

	require.NoError(t, kv.Set("user_settings", `{"cellular":true}`))
	require.Equal(t, Stored, c.Save(ctx, c.ListKey(domain.EntityShows), []domain.Show{{ID: 1}}).Status)

	res := c.Save(ctx, c.ListKey(domain.EntityEpisodes), []domain.Episode{{ID: 1, Title: strings.Repeat("e", 400)}})
	require.Equal(t, RecoveredAfterClear, res.Status)
	require.ErrorIs(t, res.Err, domain.ErrStorageFull)

	var shows []domain.Show
	assert.False(t, c.Get(ctx, c.ListKey(domain.EntityShows), &shows), "namespace cleared")
	var eps []domain.Episode
	assert.False(t, c.Get(ctx, c.ListKey(domain.EntityEpisodes), &eps), "write not retried")

	v, ok, err := kv.Get("user_settings")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, v, "cellular")
}

func TestSaveUnencodable(t *testing.T) {
	c, _ := newTestCache(t, nil)
	res := c.Save(context.Background(), c.ListKey(domain.EntityShows), map[string]any{"bad": make(chan int)})
	assert.Equal(t, Failed, res.Status)
	assert.Error(t, res.Err)
}

func TestClearPrefix(t *testing.T) {
	ctx := context.Background()
	kv, err := store.NewKV("", "")
	require.NoError(t, err)
	c, _ := newTestCache(t, kv)

	c.Save(ctx, c.ItemKey(domain.EntityEpisodes, 1), domain.Episode{ID: 1})
	c.Save(ctx, c.ItemKey(domain.EntityEpisodes, 2), domain.Episode{ID: 2})
	c.Save(ctx, c.ItemKey(domain.EntityShows, 1), domain.Show{ID: 1})
	require.NoError(t, kv.Set("episode_notes", "keep"))

	require.NoError(t, c.ClearPrefix(c.Namespace()+"episode_"))

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{c.ItemKey(domain.EntityShows, 1), "episode_notes"}, keys)

	require.Error(t, c.ClearPrefix(""))
}

func TestClearAllLeavesForeignKeys(t *testing.T) {
	ctx := context.Background()
	kv, err := store.NewKV("", "")
	require.NoError(t, err)
	c, _ := newTestCache(t, kv)

	c.Save(ctx, c.ListKey(domain.EntityShows), []domain.Show{})
	c.Save(ctx, c.ItemKey(domain.EntityShows, 3), domain.Show{ID: 3})
	require.NoError(t, kv.Set("settings.theme", "dark"))

	require.NoError(t, c.ClearAll())

	keys, err := kv.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"settings.theme"}, keys)
}

type brokenKV struct{ domain.KeyValueStore }

func (brokenKV) Get(string) (string, bool, error) { return "", false, errors.New("disk error") }
func (brokenKV) Set(string, string) error        { return errors.New("disk error") }

func TestStoreErrorsAreAbsorbed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, brokenKV{})

	res := c.Save(ctx, c.ListKey(domain.EntityShows), []domain.Show{})
	assert.Equal(t, Failed, res.Status)

	var shows []domain.Show
	assert.False(t, c.Get(ctx, c.ListKey(domain.EntityShows), &shows))
}

func TestKeys(t *testing.T) {
	c, _ := newTestCache(t, nil, WithNamespace("ns_"))
	assert.Equal(t, "ns_shows", c.ListKey(domain.EntityShows))
	assert.Equal(t, "ns_episode_42", c.ItemKey(domain.EntityEpisodes, 42))
	assert.Equal(t, "ns_person_5", c.ItemKey(domain.EntityPeople, 5))
}

func TestSaveStatusString(t *testing.T) {
	assert.Equal(t, "stored", Stored.String())
	assert.Equal(t, "skipped", Skipped.String())
	assert.Equal(t, "recovered", RecoveredAfterClear.String())
	assert.Equal(t, "failed", Failed.String())
}
