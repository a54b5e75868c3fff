package audioio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusFrameDuration = 20 * time.Millisecond
	opusRTPClockRate  = 48000
	opusPayloadType   = 111
	opusMaxPacket     = 4000
)

// EncodePCM encodes raw PCM16 little-endian audio into a Recording using the
// requested container. Ogg/Opus falls back to WAV when the encoder fails.
func EncodePCM(pcm []byte, sampleRate, channels int, enc Encoding) (*Recording, error) {
	duration := PCMDuration(len(pcm), sampleRate, channels)

	switch enc {
	case EncodingOggOpus:
		data, err := EncodeOggOpus(pcm, sampleRate, channels)
		if err == nil {
			return &Recording{Data: data, MIMEType: "audio/ogg;codecs=opus", Duration: duration}, nil
		}
		fallthrough
	case EncodingWAV:
		return &Recording{Data: EncodeWAV(pcm, sampleRate, channels), MIMEType: "audio/wav", Duration: duration}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, enc)
	}
}

// PCMDuration returns the playing time of n bytes of PCM16.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// EncodeWAV wraps PCM16 little-endian audio in a RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	blockAlign := channels * 2
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// OpusSampleRate returns rate if libopus accepts it, else 48000.
func OpusSampleRate(rate int) int {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return rate
	default:
		return 48000
	}
}

// EncodeOggOpus encodes PCM16 little-endian audio as Opus in an Ogg container.
// Each 20ms Opus frame becomes one RTP packet handed to the Ogg writer.
func EncodeOggOpus(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("opus: unsupported channel count %d", channels)
	}

	samples := DecodePCM16(pcm)
	rate := OpusSampleRate(sampleRate)
	if rate != sampleRate {
		if channels == 2 {
			samples = Downmix(samples, channels)
			channels = 1
		}
		samples = Resample(samples, sampleRate, rate)
	}

	enc, err := opus.NewEncoder(rate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}

	var out bytes.Buffer
	ogg, err := oggwriter.NewWith(&out, uint32(rate), uint16(channels))
	if err != nil {
		return nil, fmt.Errorf("ogg writer: %w", err)
	}

	frameSamples := rate * int(opusFrameDuration/time.Millisecond) / 1000
	frameLen := frameSamples * channels
	tsStep := uint32(opusRTPClockRate * int(opusFrameDuration/time.Millisecond) / 1000)

	frame := make([]int16, frameLen)
	packet := make([]byte, opusMaxPacket)
	header := rtp.Header{
		Version:     2,
		PayloadType: opusPayloadType,
		SSRC:        rand.Uint32(),
	}

	for off := 0; off < len(samples); off += frameLen {
		n := copy(frame, samples[off:])
		clear(frame[n:])

		size, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}

		payload := make([]byte, size)
		copy(payload, packet[:size])
		if err := ogg.WriteRTP(&rtp.Packet{Header: header, Payload: payload}); err != nil {
			return nil, fmt.Errorf("ogg write: %w", err)
		}
		header.SequenceNumber++
		header.Timestamp += tsStep
	}

	if err := ogg.Close(); err != nil {
		return nil, fmt.Errorf("ogg close: %w", err)
	}
	return out.Bytes(), nil
}
