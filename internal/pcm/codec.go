// ABOUTME: PCM wire codec for the generation service audio path
// ABOUTME: Converts between normalized float samples and base64-wrapped int16 LE bytes
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrDecode is wrapped by all transport decode failures.
var ErrDecode = errors.New("pcm: decode failed")

// EncodeSamples quantizes normalized float samples to 16-bit signed
// little-endian bytes. Samples are clamped to [-1, 1] before scaling.
func EncodeSamples(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int32(math.Round(float64(s) * 32768))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// DecodeSamples converts 16-bit signed little-endian bytes to normalized
// float samples. An odd trailing byte is truncated rather than rejected;
// the service never splits a sample across segments, so a ragged tail is
// a lossy edge case, not an error.
func DecodeSamples(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// EncodeBase64 wraps bytes for text transport.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 unwraps text-transported bytes. Empty input decodes to an
// empty payload.
func DecodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return data, nil
}
