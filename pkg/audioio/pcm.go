package audioio

import "encoding/binary"

// DecodePCM16 splits little-endian PCM16 bytes into samples. A trailing odd
// byte is ignored.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}

// EncodePCM16 is the inverse of DecodePCM16.
func EncodePCM16(samples []int16) []byte {
	data := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	return data
}

// Downmix averages interleaved frames of the given channel count to mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += int32(s)
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// Resample converts mono PCM between sample rates by linear interpolation.
// Captures are brought to a rate libopus accepts before encoding.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	n := len(samples) * toRate / fromRate
	out := make([]int16, n)
	last := len(samples) - 1

	// Source position in 1/toRate steps: pos/toRate is the index, pos%toRate
	// the fraction.
	for i := range out {
		pos := i * fromRate
		idx, frac := pos/toRate, pos%toRate
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		a, b := int(samples[idx]), int(samples[idx+1])
		out[i] = int16(a + (b-a)*frac/toRate)
	}
	return out
}
