package audio

// Resample converts samples from one rate to another with linear
// interpolation. The output holds len(in)*to/from samples.
func Resample(in []int16, from, to int) []int16 {
	if len(in) == 0 || from <= 0 || to <= 0 {
		return []int16{}
	}
	if from == to {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}

	n := len(in) * to / from
	out := make([]int16, n)
	last := len(in) - 1
	step := float64(from) / float64(to)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := pos - float64(idx)
		a := float64(in[idx])
		b := float64(in[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// TelephonyToSpeech turns an 8kHz mu-law payload into s16le PCM at rate.
func TelephonyToSpeech(mulaw []byte, rate int) []byte {
	return SamplesToBytes(Resample(DecodeMuLawBuffer(mulaw), TelephonyRate, rate))
}

// SpeechToTelephony turns s16le PCM at rate into an 8kHz mu-law payload.
func SpeechToTelephony(pcm []byte, rate int) []byte {
	return EncodeMuLawBuffer(Resample(BytesToSamples(pcm), rate, TelephonyRate))
}
