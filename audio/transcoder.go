package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
)

const (
	sampleRate = 48000
	// frameSamples is 20ms of audio at 48kHz, the frame size voice expects.
	frameSamples = 960
)

// transcoder decodes any ffmpeg-readable input and re-encodes it as 20ms
// Opus packets.
type transcoder struct {
	bitrate int

	inputCtx    *astiav.FormatContext
	decoderCtx  *astiav.CodecContext
	encoderCtx  *astiav.CodecContext
	resampleCtx *astiav.SoftwareResampleContext
	fifo        *astiav.AudioFifo

	packet        *astiav.Packet
	frame         *astiav.Frame
	resampleFrame *astiav.Frame

	audioStream int
	pts         int64
	emit        func([]byte) bool
}

func newTranscoder(bitrate int) *transcoder {
	return &transcoder{
		bitrate:       bitrate,
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
		audioStream:   -1,
	}
}

func (t *transcoder) openInput(in string) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc format context")
	}

	var opts *astiav.Dictionary
	if strings.HasPrefix(in, "http") {
		opts = astiav.NewDictionary()
		defer opts.Free()
		opts.Set("reconnect", "1", 0)
		opts.Set("reconnect_streamed", "1", 0)
		opts.Set("reconnect_delay_max", "5", 0)
		opts.Set("timeout", "30000000", 0)
		opts.Set("probesize", "10000000", 0)
		opts.Set("analyzeduration", "10000000", 0)
	}
	if err := t.inputCtx.OpenInput(in, nil, opts); err != nil {
		t.inputCtx.Free()
		t.inputCtx = nil
		return fmt.Errorf("open input: %w", err)
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("find stream info: %w", err)
	}

	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.audioStream = s.Index()
			break
		}
	}
	if t.audioStream == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *transcoder) setupDecoder() error {
	p := t.inputCtx.Streams()[t.audioStream].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return fmt.Errorf("no decoder for %s", p.CodecID())
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	if err := p.ToCodecContext(t.decoderCtx); err != nil {
		return err
	}
	return t.decoderCtx.Open(d, nil)
}

func (t *transcoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(int64(t.bitrate))
	t.encoderCtx.SetSampleRate(sampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, sampleRate))

	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("compression_level", "10", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}

	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to alloc resampler")
	}
	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), frameSamples*2)
	if t.fifo == nil {
		return errors.New("failed to alloc fifo")
	}
	return nil
}

// run transcodes until EOF, ctx cancellation, or emit refusing a frame.
func (t *transcoder) run(ctx context.Context, emit func([]byte) bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcoder panic: %v", r)
		}
	}()
	t.emit = emit

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.packet.Unref()
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("read packet: %w", err)
		}
		if t.packet.StreamIndex() != t.audioStream {
			continue
		}
		if err := t.decoderCtx.SendPacket(t.packet); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := t.receiveFrames(); err != nil {
			return err
		}
	}

	_ = t.decoderCtx.SendPacket(nil)
	if err := t.receiveFrames(); err != nil {
		return err
	}
	if err := t.processFifo(true); err != nil {
		return err
	}
	return t.encodeAndEmit(nil)
}

func (t *transcoder) receiveFrames() error {
	for {
		if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
			return nil
		}
		err := t.pushToFifo()
		t.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (t *transcoder) pushToFifo() error {
	t.resampleFrame.Unref()
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())

	nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, t.encoderCtx.SampleRate())))
	if nb <= 0 {
		return nil
	}
	t.resampleFrame.SetNbSamples(nb)
	if err := t.resampleFrame.AllocBuffer(0); err != nil {
		return err
	}
	if err := t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	if _, err := t.fifo.Write(t.resampleFrame); err != nil {
		return err
	}
	return t.processFifo(false)
}

// processFifo encodes whole 20ms frames. With drain set the short tail is
// encoded too.
func (t *transcoder) processFifo(drain bool) error {
	for {
		sz := frameSamples
		if t.fifo.Size() < sz {
			if !drain || t.fifo.Size() == 0 {
				return nil
			}
			sz = t.fifo.Size()
		}

		t.resampleFrame.Unref()
		t.resampleFrame.SetNbSamples(sz)
		t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
		t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
		t.resampleFrame.SetSampleRate(t.encoderCtx.SampleRate())
		if err := t.resampleFrame.AllocBuffer(0); err != nil {
			return err
		}
		if _, err := t.fifo.Read(t.resampleFrame); err != nil {
			return err
		}

		t.resampleFrame.SetPts(t.pts)
		t.pts += int64(sz)
		if err := t.encodeAndEmit(t.resampleFrame); err != nil {
			return err
		}
	}
}

// encodeAndEmit sends f (nil flushes) and emits every packet produced.
func (t *transcoder) encodeAndEmit(f *astiav.Frame) error {
	if err := t.encoderCtx.SendFrame(f); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	for {
		t.packet.Unref()
		if t.encoderCtx.ReceivePacket(t.packet) != nil {
			return nil
		}
		d := t.packet.Data()
		fd := make([]byte, len(d))
		copy(fd, d)
		if !t.emit(fd) {
			return context.Canceled
		}
	}
}

func (t *transcoder) close() {
	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
