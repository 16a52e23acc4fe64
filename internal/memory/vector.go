package memory

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serializes a float32 vector as a little-endian BLOB for
// storage in the vector_memories table.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeVector deserializes a BLOB back into a float32 vector, verifying
// the expected dimensionality.
func DecodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("vector blob has %d bytes, expected %d for dimension %d", len(blob), dim*4, dim)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}

// l2Distance returns the squared Euclidean distance between two vectors of
// equal length. Squared distance preserves ordering, so the square root is
// skipped.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
