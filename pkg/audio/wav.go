package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by [ParseWAV] when the payload has no RIFF/WAVE
// header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE payload")

// EncodeWAV wraps the clip's PCM in a canonical 44-byte RIFF/WAV header.
func EncodeWAV(c Clip) []byte {
	channels := max(c.Format.Channels, 1)
	byteRate := c.Format.SampleRate * channels * bytesPerSample
	blockAlign := channels * bytesPerSample
	size := len(c.Data)

	buf := make([]byte, 44+size)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+size))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(c.Format.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 8*bytesPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(size))
	copy(buf[44:], c.Data)
	return buf
}

// ParseWAV walks the RIFF chunks of a 16-bit PCM WAV payload and returns the
// audio as a clip. Unknown chunks (LIST, fact, ...) are skipped. A data chunk
// whose declared size overruns the payload is truncated to what is present,
// which is what streaming servers send.
func ParseWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		f       Format
		bits    int
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return Clip{}, fmt.Errorf("audio: truncated fmt chunk")
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return Clip{}, fmt.Errorf("audio: unsupported WAV encoding %d", tag)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			bits = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Clip{}, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			if bits != 8*bytesPerSample {
				return Clip{}, fmt.Errorf("audio: unsupported bit depth %d", bits)
			}
			end := min(body+size, len(data))
			pcm := data[body:end]
			if len(pcm)%bytesPerSample != 0 {
				pcm = pcm[:len(pcm)-1]
			}
			return Clip{Data: pcm, Format: f}, nil
		}

		// Chunks are word aligned.
		off = body + size + size%2
	}
	return Clip{}, fmt.Errorf("audio: WAV payload has no data chunk")
}
