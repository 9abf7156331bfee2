package audio

// This file contains the PCM conversion helpers used at provider boundaries.
// TTS backends deliver 16-bit little-endian signed PCM; the playback path
// works in float32, so every buffer passes through Int16BytesToFloat32 and
// Scale before it reaches the device.

// int16Scale is the divisor mapping the int16 range onto [-1, 1).
const int16Scale = 32768.0

// Int16BytesToFloat32 decodes 16-bit little-endian signed PCM into float32
// samples in [-1, 1). A trailing odd byte is ignored.
func Int16BytesToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(s) / int16Scale
	}
	return out
}

// Float32ToInt16Bytes encodes float32 samples as 16-bit little-endian signed
// PCM, clamping each sample to [-1, 1] first.
func Float32ToInt16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * (int16Scale - 1))
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out
}

// Scale multiplies samples by volume in place and clamps the result to
// [-1, 1]. Volume above 1 therefore cannot push a sample past full scale.
func Scale(samples []float32, volume float64) {
	v := float32(volume)
	for i, s := range samples {
		s *= v
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		samples[i] = s
	}
}

// Pad returns samples extended with trailing zeros to exactly size. When
// samples already has size or more elements it is returned unchanged.
func Pad(samples []float32, size int) []float32 {
	if len(samples) >= size {
		return samples
	}
	padded := make([]float32, size)
	copy(padded, samples)
	return padded
}
