package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aivclab/neodroidvision/internal/tensor"
)

const metadataKey = "__metadata__"

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// WriteSafeTensors writes tensors to a SafeTensors file at path.
func WriteSafeTensors(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	w := bufio.NewWriter(file)
	if err := WriteSafeTensorsTo(w, tensors, metadata); err != nil {
		return err
	}
	return w.Flush()
}

// WriteSafeTensorsTo writes tensors in SafeTensors format to w.
//
// Tensors are laid out in alphabetical order by name. metadata is copied
// into "__metadata__" together with the data section's SHA-256.
func WriteSafeTensorsTo(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data bytes.Buffer
	for _, name := range names {
		raw := tensors[name]
		dtype, ok := dtypeToSafeTensors(raw.DType())
		if !ok {
			return fmt.Errorf("tensor %q: %w %s", name, ErrUnsupportedDType, raw.DType())
		}

		shape := make([]int64, len(raw.Shape()))
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}

		begin := int64(data.Len())
		data.Write(raw.Data())
		header[name] = SafeTensorHeader{
			DType:       dtype,
			Shape:       shape,
			DataOffsets: [2]int64{begin, int64(data.Len())},
		}
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := ComputeChecksum(data.Bytes())
	meta[ChecksumKey] = hex.EncodeToString(sum[:])
	header[metadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(data.Bytes()); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}

	return nil
}

// ReadSafeTensors reads a SafeTensors file written by WriteSafeTensors (or
// any conforming writer) and returns its tensors and metadata.
func ReadSafeTensors(path string, backend tensor.Backend) (map[string]*tensor.RawTensor, map[string]string, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadSafeTensorsFrom(bufio.NewReader(file), backend)
}

// ReadSafeTensorsFrom reads SafeTensors data from r.
//
// Tensor names, offsets and sizes are validated before any tensor is
// built. When the metadata carries a checksum, the data section must match it.
func ReadSafeTensorsFrom(r io.Reader, backend tensor.Backend) (map[string]*tensor.RawTensor, map[string]string, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	metadata := make(map[string]string)
	if rawMeta, ok := entries[metadataKey]; ok {
		if err := json.Unmarshal(rawMeta, &metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to parse metadata: %w", err)
		}
		delete(entries, metadataKey)
	}

	headers := make(map[string]SafeTensorHeader, len(entries))
	metas := make([]TensorMeta, 0, len(entries))
	for name, rawEntry := range entries {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(rawEntry, &h); err != nil {
			return nil, nil, fmt.Errorf("failed to parse tensor %q: %w", name, err)
		}
		headers[name] = h
		metas = append(metas, TensorMeta{
			Name:   name,
			Offset: h.DataOffsets[0],
			Size:   h.DataOffsets[1] - h.DataOffsets[0],
		})
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	if err := ValidateTensorOffsets(metas, int64(len(data))); err != nil {
		return nil, nil, err
	}

	if stored, ok := metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(data, stored); err != nil {
			return nil, nil, err
		}
	}

	tensors := make(map[string]*tensor.RawTensor, len(headers))
	for name, h := range headers {
		raw, err := buildTensor(name, h, data, backend.Device())
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = raw
	}

	return tensors, metadata, nil
}

func buildTensor(name string, h SafeTensorHeader, data []byte, device tensor.Device) (*tensor.RawTensor, error) {
	dtype, ok := safeTensorsToDType(h.DType)
	if !ok {
		return nil, fmt.Errorf("tensor %q: %w %q", name, ErrUnsupportedDType, h.DType)
	}

	shape := make(tensor.Shape, len(h.Shape))
	for i, dim := range h.Shape {
		shape[i] = int(dim)
	}

	raw, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	begin, end := h.DataOffsets[0], h.DataOffsets[1]
	if int64(raw.ByteSize()) != end-begin {
		return nil, &ValidationError{
			Type:    "shape_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("shape %v of %s needs %d bytes, have %d", shape, dtype, raw.ByteSize(), end-begin),
		}
	}
	copy(raw.Data(), data[begin:end])

	return raw, nil
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) (string, bool) {
	switch dt {
	case tensor.Float32:
		return "F32", true
	case tensor.Float64:
		return "F64", true
	case tensor.Int32:
		return "I32", true
	case tensor.Int64:
		return "I64", true
	default:
		return "", false
	}
}

func safeTensorsToDType(s string) (tensor.DataType, bool) {
	switch s {
	case "F32":
		return tensor.Float32, true
	case "F64":
		return tensor.Float64, true
	case "I32":
		return tensor.Int32, true
	case "I64":
		return tensor.Int64, true
	default:
		return 0, false
	}
}
