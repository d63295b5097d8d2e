// Package storage persists saved parameter lists so a later run can resume
// from them.
package storage

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/FlavioCFOliveira/GoCurriculum/internal/errs"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/layer"
	"github.com/FlavioCFOliveira/GoCurriculum/internal/model"
)

// Version is the checkpoint format written by Encode.
const Version = 1

// Checkpoint is a saved parameter list together with what built it.
type Checkpoint struct {
	Version int
	RunID   uuid.UUID
	Arch    string
	Params  model.Params
}

// record is the on-disk form of one tensor.
type record struct {
	Shape []int
	Data  []float64
}

// header precedes the tensor records.
type header struct {
	Version int
	RunID   uuid.UUID
	Arch    string
	Count   int
}

// New wraps params in a checkpoint with a fresh run ID.
func New(arch string, params model.Params) *Checkpoint {
	return &Checkpoint{
		Version: Version,
		RunID:   uuid.New(),
		Arch:    arch,
		Params:  params,
	}
}

// Save writes c to filename. The checkpoint is written to a temporary file
// in the same directory and renamed into place, so a failed write never
// leaves a truncated checkpoint behind.
func Save(filename string, c *Checkpoint) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return errs.Storagef(err, "create %s", filename)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, c); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return errs.Storagef(err, "sync %s", filename)
	}
	if err = tmp.Close(); err != nil {
		return errs.Storagef(err, "close %s", filename)
	}
	if err = os.Rename(tmp.Name(), filename); err != nil {
		return errs.Storagef(err, "rename to %s", filename)
	}
	return nil
}

// Load reads a checkpoint from filename.
func Load(filename string) (*Checkpoint, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errs.Storagef(err, "open %s", filename)
	}
	defer file.Close()

	return Decode(file)
}

// Encode writes c to w using gob encoding.
func Encode(w io.Writer, c *Checkpoint) error {
	if c == nil {
		return errs.Storagef(nil, "nil checkpoint")
	}
	enc := gob.NewEncoder(w)
	h := header{Version: Version, RunID: c.RunID, Arch: c.Arch, Count: len(c.Params)}
	if err := enc.Encode(h); err != nil {
		return errs.Storagef(err, "write header")
	}
	for i, t := range c.Params {
		if t == nil {
			return errs.Storagef(nil, "parameter %d is nil", i)
		}
		data, ok := t.Data().([]float64)
		if !ok {
			return errs.Storagef(nil, "parameter %d has dtype %v, want float64", i, t.Dtype())
		}
		r := record{Shape: []int(t.Shape().Clone()), Data: data}
		if err := enc.Encode(r); err != nil {
			return errs.Storagef(err, "write parameter %d", i)
		}
	}
	return nil
}

// Decode reads a checkpoint written by Encode. The header's count is only
// trusted as far as records actually follow it.
func Decode(r io.Reader) (*Checkpoint, error) {
	dec := gob.NewDecoder(r)

	var h header
	if err := dec.Decode(&h); err != nil {
		return nil, errs.Storagef(err, "read header")
	}
	if h.Version != Version {
		return nil, errs.Storagef(nil, "unsupported checkpoint version %d", h.Version)
	}
	if h.Count < 0 {
		return nil, errs.Storagef(nil, "negative parameter count %d", h.Count)
	}

	var params model.Params
	for i := 0; i < h.Count; i++ {
		var rec record
		if err := dec.Decode(&rec); err != nil {
			return nil, errs.Storagef(err, "read parameter %d of %d", i, h.Count)
		}
		t, err := rec.tensor()
		if err != nil {
			return nil, errs.Storagef(err, "parameter %d", i)
		}
		params = append(params, t)
	}

	return &Checkpoint{Version: h.Version, RunID: h.RunID, Arch: h.Arch, Params: params}, nil
}

func (r record) tensor() (*tensor.Dense, error) {
	n := 1
	for _, d := range r.Shape {
		if d <= 0 {
			return nil, errors.Errorf("bad dimension in shape %v", r.Shape)
		}
		n *= d
	}
	if len(r.Shape) == 0 || n != len(r.Data) {
		return nil, errors.Errorf("shape %v does not hold %d values", r.Shape, len(r.Data))
	}
	return layer.FromSlice(r.Data, r.Shape...), nil
}
