// Package sink defines the boundary between the chunk cache and whatever
// turns heightmaps into renderable or collidable geometry.
package sink

import (
	"errors"
	"fmt"

	"github.com/Faultbox/chunkstream/internal/terrain"
	"github.com/Faultbox/chunkstream/pkg/math"
)

// ErrSink matches every Failure returned by a Sink.
var ErrSink = errors.New("sink failure")

// Handle identifies materialized geometry. It is opaque to the cache.
type Handle string

// Op names a sink operation.
type Op string

const (
	OpMaterialize   Op = "materialize"
	OpDematerialize Op = "dematerialize"
)

// Sink materializes heightmaps as world geometry.
//
// Dematerialize is called at most once per handle. Releasing a handle twice is
// a caller bug; implementations are not required to guard against it.
type Sink interface {
	Materialize(hm *terrain.Heightmap, offset math.Vec2, meshScale float64) (Handle, error)
	Dematerialize(h Handle) error
}

// Failure wraps an error reported by a Sink.
type Failure struct {
	Op     Op
	Handle Handle
	Err    error
}

// Fail wraps err as a Failure for op on h. A nil err yields nil.
func Fail(op Op, h Handle, err error) error {
	if err == nil {
		return nil
	}
	return &Failure{Op: op, Handle: h, Err: err}
}

func (f *Failure) Error() string {
	if f.Handle == "" {
		return fmt.Sprintf("sink %s: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("sink %s %s: %v", f.Op, f.Handle, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports ErrSink as a match so callers need not know the concrete type.
func (f *Failure) Is(target error) bool { return target == ErrSink }
