package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Blob layout, little-endian:
//
//	magic "LVIX" | version u32 | metric u32 | dim u32 | count u32 | count*dim float32
//
// Ids and texts live in the companion metadata document.
const (
	blobMagic   = "LVIX"
	blobVersion = 1
	headerSize  = 20
)

var metricCodes = map[Metric]uint32{Cosine: 0, L2: 1}

// EncodeVector encodes vec as a little-endian sequence of IEEE 754 float32
// values without a length prefix.
func EncodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeVector decodes a blob produced by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vectorindex: invalid vector blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// WriteBlob writes the vectors of f in blob layout.
func (f *Flat) WriteBlob(w io.Writer) error {
	bw := bufio.NewWriter(w)
	header := make([]byte, headerSize)
	copy(header, blobMagic)
	binary.LittleEndian.PutUint32(header[4:], blobVersion)
	binary.LittleEndian.PutUint32(header[8:], metricCodes[f.metric])
	binary.LittleEndian.PutUint32(header[12:], uint32(f.dim))
	binary.LittleEndian.PutUint32(header[16:], uint32(len(f.vecs)))
	if _, err := bw.Write(header); err != nil {
		return err
	}
	for _, v := range f.vecs {
		if _, err := bw.Write(EncodeVector(v)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

type blob struct {
	metric Metric
	dim    int
	vecs   [][]float32
}

func readBlob(r io.Reader) (*blob, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: read blob: %w", err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: header: %d bytes", ErrCorruptIndex, len(data))
	}
	header := data[:headerSize]
	if string(header[:4]) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptIndex, header[:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}
	out := &blob{}
	switch binary.LittleEndian.Uint32(header[8:]) {
	case metricCodes[Cosine]:
		out.metric = Cosine
	case metricCodes[L2]:
		out.metric = L2
	default:
		return nil, fmt.Errorf("%w: unknown metric code", ErrCorruptIndex)
	}
	dim := uint64(binary.LittleEndian.Uint32(header[12:]))
	count := uint64(binary.LittleEndian.Uint32(header[16:]))
	if count > 0 && dim == 0 {
		return nil, fmt.Errorf("%w: %d vectors of dimension 0", ErrCorruptIndex, count)
	}
	// count and dim are 32-bit, so count*dim fits in uint64.
	payload := uint64(len(data) - headerSize)
	if payload%4 != 0 || count*dim != payload/4 {
		return nil, fmt.Errorf("%w: header declares %d vectors of dimension %d, payload has %d bytes",
			ErrCorruptIndex, count, dim, payload)
	}
	out.dim = int(dim)
	out.vecs = make([][]float32, 0, count)
	body := data[headerSize:]
	rowBytes := out.dim * 4
	for i := 0; i < int(count); i++ {
		vec, err := DecodeVector(body[i*rowBytes : (i+1)*rowBytes])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
		out.vecs = append(out.vecs, vec)
	}
	return out, nil
}
