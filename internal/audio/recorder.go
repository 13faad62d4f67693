// Package audio captures PCM from the default Pulse input source, either
// into a temporary WAV file (batch flow) or onto a bounded frame channel
// (streaming flow).
package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/mvankamp/dictum/internal/config"
)

// stopGrace lets in-flight device buffers drain before a batch recording
// stops, so the final syllables are not truncated.
const stopGrace = 300 * time.Millisecond

// streamFrameCapacity bounds the live frame channel; the producer drops
// frames on overflow rather than blocking the audio thread.
const streamFrameCapacity = 64

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Recorder opens capture streams at the configured format.
type Recorder struct {
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// NewRecorder constructs a recorder from audio config.
func NewRecorder(cfg config.AudioConfig, logger *slog.Logger) *Recorder {
	return &Recorder{sampleRate: cfg.SampleRate, channels: cfg.Channels, logger: logger}
}

// connect opens a Pulse client on the default source.
func (r *Recorder) connect() (*pulse.Client, *pulse.Source, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("dictum"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect pulse server: %w", err)
	}
	source, err := client.DefaultSource()
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("resolve default source: %w", err)
	}
	return client, source, nil
}

func (r *Recorder) channelOption() pulse.RecordOption {
	if r.channels == 2 {
		return pulse.RecordStereo
	}
	return pulse.RecordMono
}

// Start begins a batch recording into a uniquely named temporary WAV file.
func (r *Recorder) Start() (*RecordingHandle, error) {
	client, source, err := r.connect()
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "dictum_*.wav")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create temp wav: %w", err)
	}

	wav, err := newWavWriter(f, r.sampleRate, r.channels)
	if err != nil {
		client.Close()
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}

	h := &RecordingHandle{
		client: client,
		wav:    wav,
		path:   f.Name(),
		logger: r.logger,
	}

	writer := pulse.NewWriter(writerFunc(h.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		r.channelOption(),
		pulse.RecordSampleRate(r.sampleRate),
		pulse.RecordMediaName("dictum dictation"),
	)
	if err != nil {
		client.Close()
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	h.stream = stream
	stream.Start()
	r.logger.Info("recording started", "path", h.path, "source", source.ID())

	return h, nil
}

// StartStreaming begins live capture onto a bounded frame channel.
func (r *Recorder) StartStreaming() (*StreamingHandle, error) {
	client, source, err := r.connect()
	if err != nil {
		return nil, err
	}

	h := &StreamingHandle{
		client: client,
		frames: make(chan []int16, streamFrameCapacity),
		logger: r.logger,
	}

	writer := pulse.NewWriter(writerFunc(h.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		r.channelOption(),
		pulse.RecordSampleRate(r.sampleRate),
		pulse.RecordMediaName("dictum dictation"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	h.stream = stream
	stream.Start()
	r.logger.Info("streaming capture started", "source", source.ID())

	return h, nil
}

// RecordingHandle is an in-progress batch recording. Stop finalizes the
// WAV file and hands ownership of the path to the caller.
type RecordingHandle struct {
	client *pulse.Client
	stream *pulse.RecordStream
	wav    *wavWriter
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// onPCM receives raw frames on Pulse's reader goroutine.
func (h *RecordingHandle) onPCM(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return 0, io.EOF
	}
	return h.wav.Write(p)
}

// Stop waits the drain grace, halts capture, finalizes the WAV file, and
// returns its path.
func (h *RecordingHandle) Stop(ctx context.Context) (string, error) {
	select {
	case <-time.After(stopGrace):
	case <-ctx.Done():
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return h.path, nil
	}
	h.stopped = true
	h.mu.Unlock()

	h.stream.Stop()
	h.stream.Close()
	h.client.Close()

	if err := h.wav.Finalize(); err != nil {
		_ = os.Remove(h.path)
		return "", err
	}

	h.logger.Info("recording stopped", "path", h.path)
	return h.path, nil
}

// StreamingHandle is an in-progress live capture. Frames delivers PCM in
// the capture format; Stop halts the device and closes the channel.
type StreamingHandle struct {
	client *pulse.Client
	stream *pulse.RecordStream
	frames chan []int16
	logger *slog.Logger

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
	drops    atomic.Int64
}

// Frames is the live PCM channel. It is closed by Stop after the producer
// drains, so consumers may finish reading buffered frames.
func (h *StreamingHandle) Frames() <-chan []int16 {
	return h.frames
}

// onPCM converts raw bytes to samples and try-sends them; full channel
// drops the frame.
func (h *StreamingHandle) onPCM(p []byte) (int, error) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return 0, io.EOF
	}
	h.inflight.Add(1)
	h.mu.Unlock()
	defer h.inflight.Done()

	frame := bytesToSamples(p)
	if len(frame) == 0 {
		return len(p), nil
	}

	select {
	case h.frames <- frame:
	default:
		h.drops.Add(1)
	}
	return len(p), nil
}

// Stop halts capture and closes the frame channel.
func (h *StreamingHandle) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	h.stream.Stop()
	h.stream.Close()
	h.client.Close()
	h.inflight.Wait()
	close(h.frames)

	if dropped := h.drops.Load(); dropped > 0 {
		h.logger.Warn("dropped audio frames during streaming", "frames", dropped)
	}
	h.logger.Info("streaming capture stopped")
}

// bytesToSamples reinterprets little-endian s16 bytes as samples.
func bytesToSamples(p []byte) []int16 {
	n := len(p) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(p[i*2 : i*2+2]))
	}
	return samples
}
