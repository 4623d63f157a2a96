package cache

//go:generate mockgen -destination mock_sink_test.go -package cache -write_package_comment=false github.com/Faultbox/chunkstream/internal/sink Sink

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Faultbox/chunkstream/internal/chunk"
	"github.com/Faultbox/chunkstream/internal/sink"
	"github.com/Faultbox/chunkstream/internal/sink/memsink"
	"github.com/Faultbox/chunkstream/internal/terrain"
	"github.com/Faultbox/chunkstream/pkg/math"
)

var (
	a = chunk.Coord{X: 0, Y: 0}
	b = chunk.Coord{X: 0, Y: 1}
	c = chunk.Coord{X: 1, Y: 0}
	d = chunk.Coord{X: 1, Y: 1}
)

func testParams() terrain.Params {
	p := terrain.DefaultParams()
	p.Size = 8
	return p
}

func newMemCache(t *testing.T, capacity int, opts ...Option) (*Cache, *memsink.Sink) {
	t.Helper()
	sk := memsink.New()
	cc, err := New(capacity, testParams(), sk, opts...)
	require.NoError(t, err)
	return cc, sk
}

// checkInvariants asserts that the map and the order agree and fit capacity.
func checkInvariants(t *testing.T, cc *Cache) {
	t.Helper()
	require.LessOrEqual(t, cc.Len(), cc.Capacity())
	require.Len(t, cc.order, len(cc.chunks))
	for _, coord := range cc.order {
		ch, ok := cc.chunks[coord]
		require.True(t, ok, "%s in order but not in map", coord)
		require.True(t, ch.Materialized(), "%s resident without handle", coord)
	}
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, testParams(), memsink.New())
	require.True(t, errors.Is(err, ErrInvalidCapacity))

	p := testParams()
	p.Scale = 0
	_, err = New(3, p, memsink.New())
	require.True(t, errors.Is(err, terrain.ErrInvalidParams))

	_, err = New(3, testParams(), nil)
	require.Error(t, err)
}

func TestFIFOEviction(t *testing.T) {
	cc, sk := newMemCache(t, 3)

	for _, coord := range []chunk.Coord{a, b, c} {
		_, err := cc.Load(coord)
		require.NoError(t, err)
	}
	require.Equal(t, []chunk.Coord{a, b, c}, cc.Order())

	_, err := cc.Load(d)
	require.NoError(t, err)

	require.False(t, cc.Contains(a), "oldest chunk should be evicted")
	require.Equal(t, []chunk.Coord{b, c, d}, cc.Order())
	require.Equal(t, 3, sk.Live())
	checkInvariants(t, cc)
}

func TestFIFOIgnoresAccess(t *testing.T) {
	cc, _ := newMemCache(t, 3)
	for _, coord := range []chunk.Coord{a, b, c} {
		_, err := cc.Load(coord)
		require.NoError(t, err)
	}

	// Touching a does not protect it: eviction is by load order only.
	_, err := cc.Load(a)
	require.NoError(t, err)
	_, err = cc.Load(d)
	require.NoError(t, err)

	require.False(t, cc.Contains(a))
	require.Equal(t, []chunk.Coord{b, c, d}, cc.Order())
}

func TestLoadIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockSink(ctrl)
	mock.EXPECT().
		Materialize(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(sink.Handle("h-a"), nil).
		Times(1)

	cc, err := New(3, testParams(), mock)
	require.NoError(t, err)

	h1, err := cc.Load(a)
	require.NoError(t, err)
	h2, err := cc.Load(a)
	require.NoError(t, err)

	require.Equal(t, sink.Handle("h-a"), h1)
	require.Equal(t, h1, h2)
	require.Equal(t, 1, cc.Stats().Hits)
	require.Equal(t, 1, cc.Stats().Loads)
}

func TestLoadPassesOffsetAndMeshScale(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockSink(ctrl)

	cc, err := New(2, testParams(), mock, WithWorldScale(2), WithMeshScale(0.8))
	require.NoError(t, err)

	want, err := chunk.New(chunk.Coord{X: -1, Y: 2}, testParams())
	require.NoError(t, err)

	mock.EXPECT().
		Materialize(gomock.Any(), want.WorldOffset(2), 0.8).
		DoAndReturn(func(hm *terrain.Heightmap, _ math.Vec2, _ float64) (sink.Handle, error) {
			require.Equal(t, want.Heightmap.Altitudes, hm.Altitudes)
			return "h", nil
		})

	_, err = cc.Load(chunk.Coord{X: -1, Y: 2})
	require.NoError(t, err)
}

func TestEvictReleasesHandle(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockSink(ctrl)

	cc, err := New(3, testParams(), mock)
	require.NoError(t, err)

	gomock.InOrder(
		mock.EXPECT().Materialize(gomock.Any(), gomock.Any(), gomock.Any()).Return(sink.Handle("h-b"), nil),
		mock.EXPECT().Dematerialize(sink.Handle("h-b")).Return(nil),
	)

	_, err = cc.Load(b)
	require.NoError(t, err)
	require.NoError(t, cc.Evict(b))
	require.Equal(t, 0, cc.Len())
}

func TestEvictAbsentIsNoop(t *testing.T) {
	ctrl := gomock.NewController(t)
	cc, err := New(3, testParams(), NewMockSink(ctrl))
	require.NoError(t, err)

	require.NoError(t, cc.Evict(a))
	require.Equal(t, 0, cc.Stats().Evictions)
}

func TestEvictSinkFailureStillRemoves(t *testing.T) {
	cc, sk := newMemCache(t, 3)
	_, err := cc.Load(a)
	require.NoError(t, err)
	_, err = cc.Load(b)
	require.NoError(t, err)

	sk.FailNext(sink.OpDematerialize, 1)
	err = cc.Evict(a)

	require.True(t, errors.Is(err, ErrSink))
	require.False(t, cc.Contains(a))
	require.Equal(t, []chunk.Coord{b}, cc.Order())
	require.Equal(t, 1, cc.Stats().SinkFailures)
	checkInvariants(t, cc)
}

func TestReconcile(t *testing.T) {
	cc, sk := newMemCache(t, 4)
	for _, coord := range []chunk.Coord{a, b, c} {
		_, err := cc.Load(coord)
		require.NoError(t, err)
	}
	before, _ := cc.Get(a)
	handleA := before.Handle()

	require.NoError(t, cc.Reconcile([]chunk.Coord{a, d}))

	require.Equal(t, []chunk.Coord{a, d}, cc.Resident())
	after, _ := cc.Get(a)
	require.Same(t, before, after, "(0,0) must not be regenerated")
	require.Equal(t, handleA, after.Handle(), "(0,0) must not be re-materialized")

	st := sk.Stats()
	require.Equal(t, 4, st.Materialized)
	require.Equal(t, 2, st.Dematerialized)
	checkInvariants(t, cc)
}

func TestReconcileIgnoresDuplicates(t *testing.T) {
	cc, sk := newMemCache(t, 3)
	require.NoError(t, cc.Reconcile([]chunk.Coord{a, a, b, a}))
	require.Equal(t, []chunk.Coord{a, b}, cc.Order())
	require.Equal(t, 2, sk.Stats().Materialized)
}

func TestReconcileEvictsBeforeLoading(t *testing.T) {
	cc, sk := newMemCache(t, 2)
	require.NoError(t, cc.Reconcile([]chunk.Coord{a, b}))
	require.NoError(t, cc.Reconcile([]chunk.Coord{c, d}))

	require.Equal(t, []chunk.Coord{c, d}, cc.Order())
	require.Equal(t, 2, sk.Live())
}

func TestReconcileCollectsFailures(t *testing.T) {
	cc, sk := newMemCache(t, 4)
	require.NoError(t, cc.Reconcile([]chunk.Coord{a, b}))

	sk.FailNext(sink.OpDematerialize, 1)
	sk.FailNext(sink.OpMaterialize, 1)
	err := cc.Reconcile([]chunk.Coord{c, d})

	require.Error(t, err)
	require.True(t, errors.Is(err, ErrSink))
	// a and b were evicted (one release failed), c failed to materialize.
	require.Equal(t, []chunk.Coord{d}, cc.Order())
	checkInvariants(t, cc)
}

func TestAtomicMaterializeFailure(t *testing.T) {
	cc, sk := newMemCache(t, 3)
	_, err := cc.Load(a)
	require.NoError(t, err)
	_, err = cc.Load(b)
	require.NoError(t, err)

	orderBefore := cc.Order()
	sk.FailNext(sink.OpMaterialize, 1)

	h, err := cc.Load(c)
	require.Empty(t, h)
	require.True(t, errors.Is(err, ErrSink))
	require.False(t, cc.Contains(c))
	require.Equal(t, 2, cc.Len())
	require.Equal(t, orderBefore, cc.Order())
	checkInvariants(t, cc)
}

func TestMaterializeFailureWhenFull(t *testing.T) {
	cc, sk := newMemCache(t, 2)
	require.NoError(t, cc.Reconcile([]chunk.Coord{a, b}))

	sk.FailNext(sink.OpMaterialize, 1)
	_, err := cc.Load(c)
	require.Error(t, err)

	require.False(t, cc.Contains(c))
	require.Equal(t, []chunk.Coord{a, b}, cc.Order(), "nothing evicted when materialize fails")
	require.Equal(t, 2, sk.Live())
	checkInvariants(t, cc)
}

func TestEmptyHandleIsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	mock := NewMockSink(ctrl)
	mock.EXPECT().Materialize(gomock.Any(), gomock.Any(), gomock.Any()).Return(sink.Handle(""), nil)

	cc, err := New(2, testParams(), mock)
	require.NoError(t, err)

	_, err = cc.Load(a)
	require.True(t, errors.Is(err, ErrSink))
	require.Equal(t, 0, cc.Len())
}

func TestGenerationFailureLeavesCacheUntouched(t *testing.T) {
	cc, sk := newMemCache(t, 1)
	_, err := cc.Load(a)
	require.NoError(t, err)

	cc.params.Size = 0
	_, err = cc.Load(b)

	require.True(t, errors.Is(err, ErrGeneration))
	require.Equal(t, []chunk.Coord{a}, cc.Order(), "nothing evicted when generation fails")
	require.Equal(t, 1, sk.Live())
	require.Equal(t, 1, cc.Stats().GenerationFailures)
}

func TestCapacityInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for _, capacity := range []int{1, 3, 4} {
		cc, sk := newMemCache(t, capacity)
		for step := range 300 {
			coord := chunk.Coord{X: rng.IntN(5) - 2, Y: rng.IntN(5) - 2}
			switch rng.IntN(6) {
			case 0:
				_ = cc.Evict(coord)
			case 1:
				desired := []chunk.Coord{coord, {X: coord.X + 1, Y: coord.Y}}
				_ = cc.Reconcile(desired)
			case 2:
				sk.FailNext(sink.Op([]string{"materialize", "dematerialize"}[rng.IntN(2)]), 1)
				fallthrough
			default:
				_, _ = cc.Load(coord)
			}
			checkInvariants(t, cc)
			require.Equal(t, cc.Len(), sk.Live(), "step %d: sink and cache disagree", step)
		}
	}
}

func TestParallelPregeneration(t *testing.T) {
	serial, _ := newMemCache(t, 9)
	parallel, _ := newMemCache(t, 9, WithWorkers(4))

	var desired []chunk.Coord
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			desired = append(desired, chunk.Coord{X: x, Y: y})
		}
	}

	require.NoError(t, serial.Reconcile(desired))
	require.NoError(t, parallel.Reconcile(desired))

	require.Equal(t, serial.Order(), parallel.Order())
	for _, coord := range desired {
		s, _ := serial.Get(coord)
		p, _ := parallel.Get(coord)
		require.Equal(t, s.Heightmap.Altitudes, p.Heightmap.Altitudes, "chunk %s", coord)
	}
}

func TestShutdown(t *testing.T) {
	cc, sk := newMemCache(t, 3)
	require.NoError(t, cc.Reconcile([]chunk.Coord{a, b, c}))

	sk.FailNext(sink.OpDematerialize, 1)
	cc.Shutdown()

	require.True(t, cc.Closed())
	require.Equal(t, 0, cc.Len())
	require.Equal(t, 0, sk.Live())

	_, err := cc.Load(a)
	require.True(t, errors.Is(err, ErrClosed))
	require.True(t, errors.Is(cc.Reconcile([]chunk.Coord{a}), ErrClosed))

	cc.Shutdown()
}

type recorder struct {
	loaded  []chunk.Coord
	evicted []chunk.Coord
	failed  []chunk.Coord
}

func (r *recorder) ChunkLoaded(ch *chunk.Chunk) { r.loaded = append(r.loaded, ch.Coord) }
func (r *recorder) ChunkEvicted(coord chunk.Coord, _ sink.Handle, _ error) {
	r.evicted = append(r.evicted, coord)
}
func (r *recorder) LoadFailed(coord chunk.Coord, _ error) { r.failed = append(r.failed, coord) }

func TestObserver(t *testing.T) {
	rec := &recorder{}
	cc, sk := newMemCache(t, 2, WithObserver(rec))

	require.NoError(t, cc.Reconcile([]chunk.Coord{a, b, c}))
	sk.FailNext(sink.OpMaterialize, 1)
	_, _ = cc.Load(d)

	require.Equal(t, []chunk.Coord{a, b, c}, rec.loaded)
	require.True(t, slices.Equal([]chunk.Coord{a}, rec.evicted), "got %v", rec.evicted)
	require.Equal(t, []chunk.Coord{d}, rec.failed)
}

func TestSurface(t *testing.T) {
	cc, _ := newMemCache(t, 2, WithWorldScale(2))
	_, err := cc.Load(d)
	require.NoError(t, err)

	ch, _ := cc.Get(d)
	h, ok := cc.Surface(ch.WorldOffset(2))
	require.True(t, ok)
	require.Equal(t, ch.Heightmap.At(0, 0), h)

	_, ok = cc.Surface(math.Vec2{X: 1, Y: 1})
	require.False(t, ok)
}
