package audio

import (
	"encoding/binary"
	"log/slog"
)

// Convert returns c converted to target. Resampling happens before channel
// conversion so stereo input is never resampled twice. A clip already in the
// target format is returned unchanged.
func (c Clip) Convert(target Format) Clip {
	if c.Format == target || target.SampleRate <= 0 || target.Channels <= 0 {
		return c
	}
	if len(c.Data)%bytesPerSample != 0 {
		slog.Warn("audio: odd byte count in PCM clip, dropping last byte", "bytes", len(c.Data))
		c.Data = c.Data[:len(c.Data)-1]
	}

	pcm := c.Data
	channels := c.Format.Channels

	if channels == 2 && target.Channels == 1 {
		pcm = StereoToMono(pcm)
		channels = 1
	}
	if c.Format.SampleRate != target.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, c.Format.SampleRate, target.SampleRate)
		} else {
			pcm = MonoToStereo(ResampleMono16(StereoToMono(pcm), c.Format.SampleRate, target.SampleRate))
			channels = 2
		}
	}
	if channels == 1 && target.Channels == 2 {
		pcm = MonoToStereo(pcm)
		channels = 2
	}

	return Clip{Data: pcm, Format: Format{SampleRate: target.SampleRate, Channels: channels}}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// StereoToMono averages each L+R frame. The average of two int16 values
// always fits in int16.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples mono PCM from srcRate to dstRate with linear
// interpolation. Equal or invalid rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0*(1-frac)+s1*frac)))
	}
	return out
}
