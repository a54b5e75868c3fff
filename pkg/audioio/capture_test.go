package audioio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChooseMIMEType(t *testing.T) {
	tests := []struct {
		name      string
		supported []string
		want      string
	}{
		{"ogg opus first", []string{"audio/wav", "audio/ogg;codecs=opus"}, "audio/ogg;codecs=opus"},
		{"webm opus", []string{"audio/webm;codecs=opus", "audio/webm"}, "audio/webm;codecs=opus"},
		{"safari", []string{"audio/mp4", "audio/aac"}, "audio/mp4"},
		{"none", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChooseMIMEType(func(m string) bool {
				for _, s := range tt.supported {
					if s == m {
						return true
					}
				}
				return false
			})
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExtensionFor(t *testing.T) {
	require.Equal(t, "ogg", ExtensionFor("audio/ogg;codecs=opus"))
	require.Equal(t, "webm", ExtensionFor("audio/webm; codecs=opus"))
	require.Equal(t, "m4a", ExtensionFor("audio/mp4"))
	require.Equal(t, "aac", ExtensionFor("audio/aac"))
	require.Equal(t, "wav", ExtensionFor(""))
}

func TestClassifyClientError(t *testing.T) {
	require.ErrorIs(t, ClassifyClientError("NotAllowedError"), ErrPermissionDenied)
	require.ErrorIs(t, ClassifyClientError("NotFoundError"), ErrDeviceNotFound)
	require.ErrorIs(t, ClassifyClientError("NotReadableError"), ErrDeviceError)
}

func TestDeviceError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &DeviceError{Kind: ErrDeviceNotFound, Backend: "ffmpeg", Detail: "no such device", Err: cause}

	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrPermissionDenied)
	require.Contains(t, err.Error(), "no such device")
}

func TestStreamCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("push and stop", func(t *testing.T) {
		c := NewStreamCapture(nil)
		require.ErrorIs(t, c.Push([]byte{1}), ErrNotCapturing)

		c.Announce("audio/webm;codecs=opus", "")
		s, err := c.Start(ctx)
		require.NoError(t, err)
		require.True(t, c.Active())

		require.NoError(t, c.Push([]byte{1, 2}))
		require.NoError(t, c.Push([]byte{3}))

		rec, err := s.Stop()
		require.NoError(t, err)
		require.Equal(t, []byte{1, 2, 3}, rec.Data)
		require.Equal(t, "audio/webm;codecs=opus", rec.MIMEType)
		require.False(t, c.Active())
		require.ErrorIs(t, c.Push([]byte{4}), ErrNotCapturing)
	})

	t.Run("client error", func(t *testing.T) {
		c := NewStreamCapture(nil)
		c.Announce("", "NotAllowedError")
		_, err := c.Start(ctx)
		require.ErrorIs(t, err, ErrPermissionDenied)

		// the failure is consumed by one Start
		_, err = c.Start(ctx)
		require.NoError(t, err)
	})

	t.Run("empty stop", func(t *testing.T) {
		c := NewStreamCapture(nil)
		s, err := c.Start(ctx)
		require.NoError(t, err)
		_, err = s.Stop()
		require.ErrorIs(t, err, ErrDeviceError)
	})

	t.Run("abort discards", func(t *testing.T) {
		c := NewStreamCapture(nil)
		s, err := c.Start(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Push([]byte{1}))

		s.Abort()
		s.Abort()
		require.False(t, c.Active())
		_, err = s.Stop()
		require.ErrorIs(t, err, ErrCaptureClosed)
	})

	t.Run("restart aborts previous", func(t *testing.T) {
		c := NewStreamCapture(nil)
		first, err := c.Start(ctx)
		require.NoError(t, err)
		_, err = c.Start(ctx)
		require.NoError(t, err)

		_, err = first.Stop()
		require.ErrorIs(t, err, ErrCaptureClosed)
		require.True(t, c.Active())
	})
}

func TestMockCapturer(t *testing.T) {
	m := NewMockCapturer(&Recording{Data: []byte{1}, MIMEType: "audio/wav"})

	s, err := m.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, m.Open())

	s.Abort()
	require.Equal(t, 0, m.Open())

	m.StartErr = ErrDeviceNotFound
	_, err = m.Start(context.Background())
	require.ErrorIs(t, err, ErrDeviceNotFound)
	require.Equal(t, 2, m.Starts())
}

func TestNewCapturer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendStream
	c, err := NewCapturer(cfg, nil)
	require.NoError(t, err)
	require.IsType(t, &StreamCapture{}, c)

	cfg.Encoding = "mp3"
	_, err = NewCapturer(cfg, nil)
	require.ErrorIs(t, err, ErrUnsupportedEncoding)
}
