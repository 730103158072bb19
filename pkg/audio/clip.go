// Package audio holds the PCM primitives shared by capture, synthesis and
// playback: the [Clip] value, format conversion, WAV framing, an ffmpeg
// microphone [Source] and command-backed [Player] implementations.
//
// All PCM in this package is 16-bit signed little-endian.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// bytesPerSample is fixed for s16le PCM.
const bytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is the format spoken replies are delivered in unless a
// provider declares otherwise: 24 kHz mono.
var SpeechFormat = Format{SampleRate: 24000, Channels: 1}

// CaptureFormat is the format microphone audio is captured in for STT.
var CaptureFormat = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "24000Hz mono".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// BytesPerSecond returns the PCM byte rate of f. Zero for invalid formats.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * bytesPerSample
}

// Clip is a complete block of PCM audio ready for playback.
type Clip struct {
	Data   []byte
	Format Format
}

// Empty reports whether the clip carries no whole sample frame.
func (c Clip) Empty() bool {
	frame := c.Format.Channels * bytesPerSample
	if frame <= 0 {
		frame = bytesPerSample
	}
	return len(c.Data) < frame
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	bps := c.Format.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(c.Data)) * time.Second / time.Duration(bps)
}

// Samples returns the clip as float32 samples normalised to [-1.0, 1.0),
// interleaved per channel. A trailing odd byte is ignored.
func (c Clip) Samples() []float32 {
	n := len(c.Data) / bytesPerSample
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(c.Data[i*2 : i*2+2]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// DecodeBase64 decodes base64-encoded s16le PCM into a clip of format f.
func DecodeBase64(encoded string, f Format) (Clip, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode base64: %w", err)
	}
	if len(data)%bytesPerSample != 0 {
		data = data[:len(data)-1]
	}
	return Clip{Data: data, Format: f}, nil
}
