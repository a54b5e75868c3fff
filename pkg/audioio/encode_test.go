package audioio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sinePCM(sampleRate int, d time.Duration) []byte {
	n := int(int64(sampleRate) * int64(d) / int64(time.Second))
	samples := make([]int16, n)
	for i := range samples {
		// 500Hz square-ish tone, enough for the encoder to produce real frames
		if (i*1000/sampleRate)%2 == 0 {
			samples[i] = 8000
		} else {
			samples[i] = -8000
		}
	}
	return EncodePCM16(samples)
}

func TestEncodeWAV(t *testing.T) {
	pcm := sinePCM(16000, 100*time.Millisecond)
	wav := EncodeWAV(pcm, 16000, 1)

	require.Len(t, wav, 44+len(pcm))
	require.Equal(t, "RIFF", string(wav[0:4]))
	require.Equal(t, "WAVE", string(wav[8:12]))
	require.Equal(t, "fmt ", string(wav[12:16]))
	require.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	require.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]))
	require.Equal(t, "data", string(wav[36:40]))
	require.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	require.True(t, bytes.Equal(pcm, wav[44:]))
}

func TestEncodeOggOpus(t *testing.T) {
	for _, rate := range []int{16000, 48000, 44100} {
		pcm := sinePCM(rate, 200*time.Millisecond)
		data, err := EncodeOggOpus(pcm, rate, 1)
		require.NoError(t, err, "rate %d", rate)
		require.True(t, bytes.HasPrefix(data, []byte("OggS")), "rate %d", rate)
		require.True(t, bytes.Contains(data, []byte("OpusHead")), "rate %d", rate)
	}
}

func TestEncodeOggOpus_RejectsChannels(t *testing.T) {
	_, err := EncodeOggOpus(make([]byte, 640), 16000, 3)
	require.Error(t, err)
}

func TestEncodePCM(t *testing.T) {
	pcm := sinePCM(16000, time.Second)

	rec, err := EncodePCM(pcm, 16000, 1, EncodingWAV)
	require.NoError(t, err)
	require.Equal(t, "audio/wav", rec.MIMEType)
	require.Equal(t, time.Second, rec.Duration)
	require.Equal(t, "recording.wav", rec.Filename())

	rec, err = EncodePCM(pcm, 16000, 1, EncodingOggOpus)
	require.NoError(t, err)
	require.Equal(t, "audio/ogg;codecs=opus", rec.MIMEType)
	require.Equal(t, "recording.ogg", rec.Filename())

	_, err = EncodePCM(pcm, 16000, 1, Encoding("flac"))
	require.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestOpusSampleRate(t *testing.T) {
	require.Equal(t, 16000, OpusSampleRate(16000))
	require.Equal(t, 48000, OpusSampleRate(44100))
	require.Equal(t, 48000, OpusSampleRate(22050))
}
