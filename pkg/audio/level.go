package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// RMS returns the root-mean-square energy of s16le PCM in sample units
// (0–32767). Buffers shorter than one sample return 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ChunkDuration returns how long a PCM chunk of format f plays for.
func ChunkDuration(chunk []byte, f Format) time.Duration {
	return Clip{Data: chunk, Format: f}.Duration()
}
