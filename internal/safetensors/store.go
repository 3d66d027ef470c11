// Package safetensors reads and writes the safetensors tensor container:
// an 8-byte little-endian header length, a JSON header mapping tensor names
// to dtype/shape/offsets, and raw little-endian tensor data.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

const (
	dtypeF32  = "F32"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"
)

// Tensor holds a single decoded float32 tensor.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Store provides name-based tensor lookup over one or more safetensors
// payloads. All tensor data is decoded lazily on access.
type Store struct {
	shards  [][]byte
	entries map[string]storeEntry
	names   []string
}

type storeEntry struct {
	Shard int
	DType string
	Shape []int64
	Start int
	End   int
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// OpenShards reads every file in paths and merges their tensors into one
// store. Duplicate tensor names across shards are rejected.
func OpenShards(paths []string) (*Store, error) {
	if len(paths) == 0 {
		return nil, errors.New("safetensors: no shard paths given")
	}

	s := &Store{entries: make(map[string]storeEntry)}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
		}

		if err := s.addShard(data); err != nil {
			return nil, fmt.Errorf("safetensors: %s: %w", path, err)
		}
	}

	sort.Strings(s.names)

	return s, nil
}

// Open reads a single safetensors file.
func Open(path string) (*Store, error) {
	return OpenShards([]string{path})
}

// OpenBytes builds a store over an in-memory safetensors payload.
func OpenBytes(data []byte) (*Store, error) {
	s := &Store{entries: make(map[string]storeEntry)}
	if err := s.addShard(data); err != nil {
		return nil, fmt.Errorf("safetensors: %w", err)
	}

	sort.Strings(s.names)

	return s, nil
}

func (s *Store) addShard(data []byte) error {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return err
	}

	shard := len(s.shards)
	s.shards = append(s.shards, data)

	keys := make([]string, 0, len(header))
	for name := range header {
		if name == "__metadata__" {
			continue
		}

		keys = append(keys, name)
	}

	sort.Strings(keys)

	for _, name := range keys {
		var e headerEntry
		if err := json.Unmarshal(header[name], &e); err != nil {
			return fmt.Errorf("decode header entry %q: %w", name, err)
		}

		if err := validateEntry(name, e); err != nil {
			return err
		}

		if _, exists := s.entries[name]; exists {
			return fmt.Errorf("duplicate tensor %q across shards", name)
		}

		start := headerEnd + e.Offsets[0]

		end := headerEnd + e.Offsets[1]
		if end < start || end > len(data) {
			return fmt.Errorf("tensor %q data [%d:%d] exceeds shard size %d", name, start, end, len(data))
		}

		elems, err := shapeElementCount(e.Shape)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		width, err := dtypeBytes(e.DType)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}

		if end-start < int(elems)*width {
			return fmt.Errorf("tensor %q needs %d bytes but data has %d", name, int(elems)*width, end-start)
		}

		s.entries[name] = storeEntry{
			Shard: shard,
			DType: strings.ToUpper(e.DType),
			Shape: append([]int64(nil), e.Shape...),
			Start: start,
			End:   end,
		}
		s.names = append(s.names, name)
	}

	return nil
}

// Names returns all tensor names in sorted order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Tensor decodes the named tensor to float32.
func (s *Store) Tensor(name string) (*Tensor, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	raw := s.shards[entry.Shard][entry.Start:entry.End]

	data, err := decodeTensorData(raw, entry.DType, entry.Shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	return &Tensor{
		Name:  name,
		Shape: append([]int64(nil), entry.Shape...),
		Data:  data,
	}, nil
}

// Close releases the underlying shard buffers.
func (s *Store) Close() {
	s.shards = nil
	s.entries = nil
	s.names = nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])

	headerEnd := 8 + int(headerLen)
	if headerLen > uint64(len(data)) || headerEnd > len(data) {
		return 0, nil, fmt.Errorf("header length %d exceeds file size %d", headerLen, len(data))
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, fmt.Errorf("parse header: %w", err)
	}

	return headerEnd, header, nil
}

func validateEntry(name string, e headerEntry) error {
	switch strings.ToUpper(e.DType) {
	case dtypeF32, dtypeF16, dtypeBF16:
	default:
		return fmt.Errorf("tensor %q has unsupported dtype %q", name, e.DType)
	}

	if e.Offsets[0] < 0 || e.Offsets[1] < e.Offsets[0] {
		return fmt.Errorf("tensor %q has invalid data offsets %v", name, e.Offsets)
	}

	for _, d := range e.Shape {
		if d < 0 {
			return fmt.Errorf("tensor %q has negative dimension in shape %v", name, e.Shape)
		}
	}

	return nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}

		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func dtypeBytes(dtype string) (int, error) {
	switch strings.ToUpper(dtype) {
	case dtypeF32:
		return 4, nil
	case dtypeF16, dtypeBF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func decodeTensorData(raw []byte, dtype string, shape []int64) ([]float32, error) {
	elems, err := shapeElementCount(shape)
	if err != nil {
		return nil, err
	}

	n := int(elems)
	out := make([]float32, n)

	switch strings.ToUpper(dtype) {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case dtypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	return out, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// Subnormal: normalize.
			e := int32(-14)

			for (frac & 0x0400) == 0 {
				frac <<= 1
				e--
			}

			frac &= 0x03ff
			bits = (sign << 31) | (uint32(e+127) << 23) | (frac << 13)
		}
	case 0x1f:
		// Inf / NaN.
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		bits = (sign << 31) | ((exp + 112) << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
