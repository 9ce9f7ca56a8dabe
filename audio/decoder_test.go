package audio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_DeliversFramesThenEOF(t *testing.T) {
	s := startStream(context.Background(), func(_ context.Context, emit func([]byte) bool) error {
		for _, f := range []string{"a", "b", "c"} {
			emit([]byte(f))
		}
		return nil
	})
	defer s.Close()

	var got []string
	for {
		f, err := s.ReadFrame()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(f))
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStream_ProducerErrorAfterFrames(t *testing.T) {
	s := startStream(context.Background(), func(_ context.Context, emit func([]byte) bool) error {
		emit([]byte("a"))
		return errBroken
	})
	defer s.Close()

	f, err := s.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "a", string(f))

	_, err = s.ReadFrame()
	assert.ErrorIs(t, err, errBroken)
}

func TestStream_CloseUnblocksProducer(t *testing.T) {
	exited := make(chan struct{})
	s := startStream(context.Background(), func(ctx context.Context, emit func([]byte) bool) error {
		defer close(exited)
		for emit([]byte("x")) {
		}
		return ctx.Err()
	})

	_, err := s.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("producer kept running after close")
	}

	_, err = s.ReadFrame()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_ContextCancelUnblocksRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := startStream(ctx, func(ctx context.Context, _ func([]byte) bool) error {
		<-ctx.Done()
		return ctx.Err()
	})
	defer s.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := s.ReadFrame()
		errs <- err
	}()
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("read stayed blocked")
	}
}

func TestDecoder_RejectsTrackWithoutStream(t *testing.T) {
	d := NewDecoder(&sys.Config{Bitrate: 96000})
	_, err := d.Open(context.Background(), &proc.ResolvedTrack{})
	assert.Error(t, err)
}

var errBroken = errors.New("broken pipe")
