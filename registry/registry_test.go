package registry_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/nanomcp/registry"
	"github.com/effective-security/nanomcp/schema"
	"github.com/effective-security/nanomcp/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(name string) *tools.Definition {
	return &tools.Definition{
		Schema: &schema.Tool{Name: name, Description: gofakeit.Sentence(5)},
		Invoke: func(ctx context.Context, args tools.Args) (any, error) {
			return name, nil
		},
	}
}

func names(list []*schema.Tool) []string {
	var res []string
	for _, t := range list {
		res = append(res, t.Name)
	}
	return res
}

func TestRegistry_Load(t *testing.T) {
	t.Parallel()

	r := registry.New()
	require.NoError(t, r.Load(nil))
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Load([]*tools.Definition{def("b"), def("a"), def("c")}))
	assert.Equal(t, []string{"b", "a", "c"}, names(r.List()))

	d, err := r.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, "a", d.Name())

	// duplicate within the batch rejects everything
	err = r.Load([]*tools.Definition{def("d"), def("d")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.Equal(t, 3, r.Len())
	_, err = r.Resolve("d")
	assert.True(t, errors.Is(err, registry.ErrToolNotFound))

	// collision with an existing name rejects everything
	err = r.Load([]*tools.Definition{def("e"), def("a")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.Equal(t, 3, r.Len())

	// invalid definition
	err = r.Load([]*tools.Definition{{Schema: &schema.Tool{Name: "f"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tool definition")
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r, err := registry.NewWith(def("a"))
	require.NoError(t, err)

	require.NoError(t, r.Register(def("b")))
	err = r.Register(def("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrDuplicateTool))
	assert.EqualError(t, err, `"a" is already registered: duplicate tool`)

	// the original survives
	d, err := r.Resolve("a")
	require.NoError(t, err)
	res, err := d.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", res)

	require.Error(t, r.Register(nil))

	require.NoError(t, r.Unregister("a"))
	assert.Equal(t, []string{"b"}, names(r.List()))
	err = r.Unregister("a")
	assert.True(t, errors.Is(err, registry.ErrToolNotFound))

	// name can be reused after removal
	require.NoError(t, r.Register(def("a")))
	assert.Equal(t, []string{"b", "a"}, names(r.List()))

	_, err = registry.NewWith(def("x"), def("x"))
	require.Error(t, err)
}

func TestRegistry_WatchAndFingerprint(t *testing.T) {
	t.Parallel()

	r := registry.New()
	var changes atomic.Int32
	r.Watch(func() { changes.Add(1) })

	empty := r.Fingerprint()
	require.NoError(t, r.Load([]*tools.Definition{def("a"), def("b")}))
	assert.Equal(t, int32(1), changes.Load())
	fp := r.Fingerprint()
	assert.NotEqual(t, empty, fp)

	require.NoError(t, r.Register(def("c")))
	require.NoError(t, r.Unregister("c"))
	assert.Equal(t, int32(3), changes.Load())

	// failed writes do not notify
	_ = r.Register(def("a"))
	assert.Equal(t, int32(3), changes.Load())
}

func TestRegistry_Unwatch(t *testing.T) {
	t.Parallel()

	r := registry.New()
	var first, second atomic.Int32
	unwatch := r.Watch(func() { first.Add(1) })
	r.Watch(func() { second.Add(1) })
	assert.Equal(t, 2, r.Watchers())

	require.NoError(t, r.Register(def("a")))
	unwatch()
	unwatch()
	assert.Equal(t, 1, r.Watchers())

	require.NoError(t, r.Register(def("b")))
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(2), second.Load())
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()

	r := registry.New()
	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]*tools.Definition, 0, perWriter)
			for i := range perWriter {
				batch = append(batch, def(gofakeit.Numerify("t###")+"_"+string(rune('a'+w))+"_"+gofakeit.DigitN(6)+string(rune('a'+i%26))))
			}
			_ = r.Load(batch)
		}()
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for range 4 {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list := r.List()
				// batches are all or nothing
				assert.Zero(t, len(list)%perWriter)
				for _, s := range list {
					_, err := r.Resolve(s.Name)
					assert.NoError(t, err)
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
	assert.Zero(t, r.Len()%perWriter)
}
