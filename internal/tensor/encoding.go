package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendLE appends values as little-endian float32.
func AppendLE(buf []byte, values []float32) []byte {
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return buf
}

// DecodeLE decodes little-endian float32 values. The byte length must be a
// multiple of four.
func DecodeLE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("float32 buffer length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}
