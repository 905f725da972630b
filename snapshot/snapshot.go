// Package snapshot dumps fields to compressed binary files and reads them
// back into fields of the same shape, for restarts and offline analysis.
//
// A file is a header followed by one record per field:
//
//	magic "PICF" | version uint32 | count uint32
//	name length uint16 | name | centering uint8 | dims [3]int64
//	8 x (compressed length int64 | zstd block)
//
// Values are stored as the little-endian bit patterns of float64 split into
// byte planes, least significant plane first. The exponent and sign planes
// of smooth fields are nearly constant and compress to almost nothing.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/DataDog/zstd"
	log "github.com/sirupsen/logrus"

	"github.com/notargets/PICKernel/field"
	"github.com/notargets/PICKernel/grid"
)

const version uint32 = 1

var magic = [4]byte{'P', 'I', 'C', 'F'}

var (
	// ErrFormat is returned for input that is not a snapshot
	ErrFormat = errors.New("not a field snapshot")
	// ErrMismatch is returned when a stored field cannot be loaded into
	// the field of the same name
	ErrMismatch = errors.New("stored field does not match")
	// ErrMissing is returned when a requested field is not in the snapshot
	ErrMissing = errors.New("field missing from snapshot")
)

// Level is the zstd compression level of every plane
var Level = 1

type recordHeader struct {
	Centering uint8
	Dims      [grid.NDim]int64
}

func encodeCentering(c grid.Centering) uint8 {
	var b uint8
	for a := 0; a < grid.NDim; a++ {
		if c[a] {
			b |= 1 << a
		}
	}
	return b
}

func decodeCentering(b uint8) grid.Centering {
	var c grid.Centering
	for a := 0; a < grid.NDim; a++ {
		c[a] = b&(1<<a) != 0
	}
	return c
}

// planes reuses its buffers across fields
type planes struct {
	plane []byte
	buf   []byte
}

func resize(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}

// Write stores fields in order
func Write(w io.Writer, fields []*field.Field) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fields))); err != nil {
		return err
	}

	var pl planes
	for _, f := range fields {
		if err := pl.writeField(w, f); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

func (pl *planes) writeField(w io.Writer, f *field.Field) error {
	if len(f.Name) > math.MaxUint16 {
		return fmt.Errorf("name of %d bytes too long", len(f.Name))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(f.Name))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, f.Name); err != nil {
		return err
	}
	hd := recordHeader{Centering: encodeCentering(f.Centering)}
	for a := 0; a < grid.NDim; a++ {
		hd.Dims[a] = int64(f.Dims[a])
	}
	if err := binary.Write(w, binary.LittleEndian, hd); err != nil {
		return err
	}

	data := f.Data()
	pl.plane = resize(pl.plane, len(data))
	for p := 0; p < 8; p++ {
		shift := 8 * p
		for i, v := range data {
			pl.plane[i] = byte(math.Float64bits(v) >> shift)
		}

		var err error
		pl.buf, err = zstd.CompressLevel(pl.buf, pl.plane, Level)
		if err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int64(len(pl.buf))); err != nil {
			return err
		}
		if _, err := w.Write(pl.buf); err != nil {
			return err
		}
	}
	return nil
}

// Read loads every field of fields from the record of the same name.
// Records that no field asks for are skipped.
func Read(r io.Reader, fields []*field.Field) error {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if m != magic {
		return ErrFormat
	}
	var v, count uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return err
	}
	if v != version {
		return fmt.Errorf("%w: version %d", ErrFormat, v)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	byName := make(map[string]*field.Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	loaded := make(map[string]bool, len(fields))

	var pl planes
	for n := uint32(0); n < count; n++ {
		name, err := pl.readField(r, byName)
		if err != nil {
			return err
		}
		loaded[name] = true
	}

	for _, f := range fields {
		if !loaded[f.Name] {
			return fmt.Errorf("%w: %s", ErrMissing, f.Name)
		}
	}
	return nil
}

func (pl *planes) readField(r io.Reader, byName map[string]*field.Field) (string, error) {
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return "", err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return "", err
	}
	name := string(nameBytes)
	var hd recordHeader
	if err := binary.Read(r, binary.LittleEndian, &hd); err != nil {
		return name, err
	}

	size := 1
	var dims [grid.NDim]int
	for a := 0; a < grid.NDim; a++ {
		dims[a] = int(hd.Dims[a])
		size *= dims[a]
	}
	centering := decodeCentering(hd.Centering)

	f := byName[name]
	if f != nil && (f.Centering != centering || f.Dims != dims) {
		return name, fmt.Errorf("%w: %s stored %s %v, want %s %v",
			ErrMismatch, name, centering, dims, f.Centering, f.Dims)
	}

	var bits []uint64
	if f != nil {
		bits = make([]uint64, size)
	}
	for p := 0; p < 8; p++ {
		var nBuf int64
		if err := binary.Read(r, binary.LittleEndian, &nBuf); err != nil {
			return name, err
		}
		pl.buf = resize(pl.buf, int(nBuf))
		if _, err := io.ReadFull(r, pl.buf); err != nil {
			return name, err
		}
		if f == nil {
			continue
		}

		var err error
		pl.plane, err = zstd.Decompress(pl.plane, pl.buf)
		if err != nil {
			return name, fmt.Errorf("%s plane %d: %w", name, p, err)
		}
		if len(pl.plane) != size {
			return name, fmt.Errorf("%w: %s plane %d holds %d values, want %d", ErrFormat, name, p, len(pl.plane), size)
		}
		shift := 8 * p
		for i, b := range pl.plane {
			bits[i] |= uint64(b) << shift
		}
	}

	if f != nil {
		data := f.Data()
		for i, b := range bits {
			data[i] = math.Float64frombits(b)
		}
	}
	return name, nil
}

// WriteFile writes a snapshot to path
func WriteFile(path string, fields []*field.Field) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	wr := bufio.NewWriter(fp)
	if err := Write(wr, fields); err != nil {
		fp.Close()
		return err
	}
	if err := wr.Flush(); err != nil {
		fp.Close()
		return err
	}
	log.WithFields(log.Fields{"path": path, "fields": len(fields)}).Debug("wrote snapshot")
	return fp.Close()
}

// ReadFile loads fields from the snapshot at path
func ReadFile(path string, fields []*field.Field) error {
	fp, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	return Read(bufio.NewReader(fp), fields)
}
