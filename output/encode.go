package output

import (
	"encoding/binary"
	"math"

	"github.com/joeycumines/go-audiograph"
)

func bytesPerSample(format audiograph.SampleFormat) int {
	if format == audiograph.SampleFormatInt16 {
		return 2
	}
	return 4
}

// encode writes src to dst, little endian, returning the number of bytes
// written. Int16 samples are clipped to [-1, 1].
func encode(dst []byte, src []float32, format audiograph.SampleFormat) int {
	switch format {
	case audiograph.SampleFormatInt16:
		n := min(len(src), len(dst)/2)
		for i, v := range src[:n] {
			v = min(max(v, -1), 1)
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v*math.MaxInt16)))
		}
		return n * 2
	default:
		n := min(len(src), len(dst)/4)
		for i, v := range src[:n] {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
		}
		return n * 4
	}
}
