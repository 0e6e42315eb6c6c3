package appcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/phonepass/internal/cache"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/store/memory"
)

type countingRepo struct {
	inner AppGetter
	calls atomic.Int32
	delay time.Duration
}

func (c *countingRepo) GetApp(ctx context.Context, id string) (*repository.App, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.inner.GetApp(ctx, id)
}

func seed(t *testing.T) (*memory.Store, *repository.App) {
	t.Helper()
	st := memory.New()
	app := st.PutApp(repository.App{
		ExternalID: "acme",
		Config:     repository.AppConfig{EnvironmentID: "env-1", WebRedirectURL: "https://acme.test/cb"},
	})
	return st, app
}

func TestResolver_CachesApp(t *testing.T) {
	st, app := seed(t)
	repo := &countingRepo{inner: st}
	r := New(repo, cache.NewMemory("pp:", time.Minute), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := r.GetApp(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://acme.test/cb", got.Config.WebRedirectURL)
	}
	assert.EqualValues(t, 1, repo.calls.Load())

	require.NoError(t, r.Invalidate(ctx, app.ID))
	_, err := r.GetApp(ctx, app.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.calls.Load())
}

func TestResolver_NotFoundNotCached(t *testing.T) {
	st, _ := seed(t)
	repo := &countingRepo{inner: st}
	r := New(repo, cache.NewMemory("", time.Minute), time.Minute)

	_, err := r.GetApp(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = r.GetApp(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.EqualValues(t, 2, repo.calls.Load())
}

func TestResolver_Singleflight(t *testing.T) {
	st, app := seed(t)
	repo := &countingRepo{inner: st, delay: 50 * time.Millisecond}
	r := New(repo, cache.NewMemory("", time.Minute), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.GetApp(context.Background(), app.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, repo.calls.Load(), int32(2))
}

func TestResolver_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.New(cache.Config{Kind: "redis", Addr: mr.Addr(), Prefix: "pp:"})
	require.NoError(t, err)
	defer c.Close()

	st, app := seed(t)
	r := New(st, c, 30*time.Second)
	got, err := r.GetApp(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, "env-1", got.Config.EnvironmentID)
	assert.True(t, mr.Exists("pp:app:"+app.ID))
	assert.Equal(t, 30*time.Second, mr.TTL("pp:app:"+app.ID))

	// Sobrevive a la pérdida del store mientras la entrada siga viva.
	r2 := New(memory.New(), c, 30*time.Second)
	got, err = r2.GetApp(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
}

func TestResolver_CorruptEntry(t *testing.T) {
	st, app := seed(t)
	c := cache.NewMemory("", time.Minute)
	require.NoError(t, c.Set(context.Background(), keyPrefix+app.ID, []byte("{"), 0))

	got, err := New(st, c, time.Minute).GetApp(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)
}
