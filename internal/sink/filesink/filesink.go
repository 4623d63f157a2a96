// Package filesink materializes heightfields as zstd-compressed files, one
// per handle. Dematerializing a handle deletes its file.
package filesink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/xid"

	"github.com/Faultbox/chunkstream/internal/sink"
	"github.com/Faultbox/chunkstream/internal/terrain"
	"github.com/Faultbox/chunkstream/pkg/math"
)

const (
	magic   = "CSHF"
	version = 1
	ext     = ".hf.zst"
)

// ErrCorrupt is returned by Read for files that do not decode.
var ErrCorrupt = errors.New("filesink: corrupt heightfield file")

type header struct {
	Magic     [4]byte
	Version   uint16
	_         uint16
	Size      uint32
	MaxHeight float32
	OffsetX   float64
	OffsetY   float64
	MeshScale float64
}

// Record is a decoded heightfield file.
type Record struct {
	Handle    sink.Handle
	Offset    math.Vec2
	MeshScale float64
	Heightmap *terrain.Heightmap
}

// Sink writes heightfields under Dir. It is safe for concurrent use.
type Sink struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ sink.Sink = (*Sink)(nil)

// New creates dir if needed and returns a sink writing into it.
func New(dir string) (*Sink, error) {
	if dir == "" {
		return nil, errors.New("filesink: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Sink{dir: dir, enc: enc, dec: dec}, nil
}

// Dir returns the output directory.
func (s *Sink) Dir() string { return s.dir }

// Path returns the file backing h.
func (s *Sink) Path(h sink.Handle) string {
	return filepath.Join(s.dir, string(h)+ext)
}

// Materialize encodes hm and writes it to a new file.
func (s *Sink) Materialize(hm *terrain.Heightmap, offset math.Vec2, meshScale float64) (sink.Handle, error) {
	if hm == nil {
		return "", errors.New("filesink: nil heightmap")
	}

	var buf bytes.Buffer
	hdr := header{
		Version:   version,
		Size:      uint32(hm.Size),
		MaxHeight: hm.MaxHeight,
		OffsetX:   offset.X,
		OffsetY:   offset.Y,
		MeshScale: meshScale,
	}
	copy(hdr.Magic[:], magic)
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return "", err
	}
	if err := binary.Write(&buf, binary.LittleEndian, hm.Flatten()); err != nil {
		return "", err
	}

	h := sink.Handle(xid.New().String())
	data := s.enc.EncodeAll(buf.Bytes(), nil)
	if err := os.WriteFile(s.Path(h), data, 0o644); err != nil {
		return "", err
	}
	return h, nil
}

// Dematerialize removes the file behind h.
func (s *Sink) Dematerialize(h sink.Handle) error {
	return os.Remove(s.Path(h))
}

// Read decodes the file behind h.
func (s *Sink) Read(h sink.Handle) (*Record, error) {
	data, err := os.ReadFile(s.Path(h))
	if err != nil {
		return nil, err
	}
	raw, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	r := bytes.NewReader(raw)
	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if string(hdr.Magic[:]) != magic || hdr.Version != version {
		return nil, fmt.Errorf("%w: bad magic or version", ErrCorrupt)
	}

	n := int(hdr.Size)
	if r.Len() != n*n*4 {
		return nil, fmt.Errorf("%w: expected %d samples", ErrCorrupt, n*n)
	}
	samples := make([]float32, n*n)
	if err := binary.Read(r, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("%w: samples: %v", ErrCorrupt, err)
	}

	hm := &terrain.Heightmap{Size: n, MaxHeight: hdr.MaxHeight, Altitudes: make([][]float32, n)}
	for i := range hm.Altitudes {
		hm.Altitudes[i] = samples[i*n : (i+1)*n : (i+1)*n]
	}
	return &Record{
		Handle:    h,
		Offset:    math.Vec2{X: hdr.OffsetX, Y: hdr.OffsetY},
		MeshScale: hdr.MeshScale,
		Heightmap: hm,
	}, nil
}

// Close releases the codec resources. Files already written are kept.
func (s *Sink) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
