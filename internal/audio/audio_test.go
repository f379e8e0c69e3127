package audio_test

import (
	"testing"

	"github.com/aretw0/callflow/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMuLaw_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		in   byte
		want int16
	}{
		{"Silence", 0xFF, 0},
		{"Negative zero", 0x7F, 0},
		{"Positive full scale", 0x80, 32124},
		{"Negative full scale", 0x00, -32124},
		{"Smallest step", 0xFE, 8},
		{"Segment one", 0xEF, 132},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, audio.DecodeMuLaw(tt.in))
		})
	}
}

func TestEncodeMuLaw(t *testing.T) {
	assert.Equal(t, byte(0xFF), audio.EncodeMuLaw(0), "silence encodes to 0xFF")
	assert.Equal(t, byte(0x80), audio.EncodeMuLaw(32767), "clips to positive full scale")
	assert.Equal(t, byte(0x00), audio.EncodeMuLaw(-32768), "clips to negative full scale")
}

func TestMuLaw_RoundTripEveryCodeword(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		if b == 0x7F {
			// negative zero collapses onto positive zero
			continue
		}
		assert.Equal(t, b, audio.EncodeMuLaw(audio.DecodeMuLaw(b)), "codeword %#x", b)
	}
}

func TestResample_DoublesLength(t *testing.T) {
	in := make([]byte, 160) // 20ms of 8kHz mu-law
	for i := range in {
		in[i] = 0xFF
	}

	pcm := audio.TelephonyToSpeech(in, audio.SpeechRate)
	samples := audio.BytesToSamples(pcm)
	require.Len(t, samples, 320)
	for _, s := range samples {
		assert.Equal(t, int16(0), s)
	}

	back := audio.SpeechToTelephony(pcm, audio.SpeechRate)
	assert.Equal(t, in, back)
}

func TestResample_Interpolates(t *testing.T) {
	out := audio.Resample([]int16{0, 100, 200}, 8000, 16000)
	assert.Equal(t, []int16{0, 50, 100, 150, 200, 200}, out)

	down := audio.Resample([]int16{0, 50, 100, 150}, 16000, 8000)
	assert.Equal(t, []int16{0, 100}, down)

	assert.Empty(t, audio.Resample(nil, 8000, 16000))
	assert.Equal(t, []int16{1, 2}, audio.Resample([]int16{1, 2}, 8000, 8000))
}

func TestBytesToSamples_DropsOddByte(t *testing.T) {
	pcm := audio.SamplesToBytes([]int16{-1, 300})
	samples := audio.BytesToSamples(append(pcm, 0x01))
	assert.Equal(t, []int16{-1, 300}, samples)
}
