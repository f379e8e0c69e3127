// Package audio converts between telephony mu-law audio and the linear PCM
// the speech services consume. Every function is pure and stateless.
package audio

import "encoding/binary"

const (
	// muLawBias is the G.711 bias added before segment lookup.
	muLawBias = 0x84
	// muLawClip is the largest magnitude that still fits after biasing.
	muLawClip = 32635

	// TelephonyRate is the sample rate of the narrowband phone leg.
	TelephonyRate = 8000
	// SpeechRate is the rate most recognition and synthesis services expect.
	SpeechRate = 16000
)

// DecodeMuLaw expands one G.711 mu-law byte into a linear 16-bit sample.
func DecodeMuLaw(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	value := (int(mantissa) << 3) + muLawBias
	value <<= exponent
	value -= muLawBias

	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// EncodeMuLaw compresses a linear 16-bit sample into one G.711 mu-law byte.
func EncodeMuLaw(sample int16) byte {
	s := int(sample)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	var exponent byte = 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(s>>(exponent+3)) & 0x0F

	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLawBuffer decodes a whole mu-law payload.
func DecodeMuLawBuffer(in []byte) []int16 {
	out := make([]int16, len(in))
	for i, b := range in {
		out[i] = DecodeMuLaw(b)
	}
	return out
}

// EncodeMuLawBuffer encodes linear samples to mu-law.
func EncodeMuLawBuffer(in []int16) []byte {
	out := make([]byte, len(in))
	for i, s := range in {
		out[i] = EncodeMuLaw(s)
	}
	return out
}

// SamplesToBytes serializes samples as little-endian s16le.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples parses little-endian s16le. A trailing odd byte is dropped.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
