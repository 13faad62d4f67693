package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/portal"
)

// DeltaTyper injects partial text as it arrives; streaming deltas go
// through the same per-character typing primitive as batch transcripts.
type DeltaTyper interface {
	TypeText(ctx context.Context, text string) error
}

// StreamInput wires one streaming session to its collaborators.
type StreamInput struct {
	SampleRate int
	// Frames delivers live PCM; a closed channel drains the session.
	Frames <-chan []int16
	// Stop drains the session without waiting for the frame channel.
	Stop <-chan struct{}
	Typer DeltaTyper
	// Publish records the accumulated transcript once the server finalizes.
	Publish func(transcript string)
}

// Client -> server frames.

type sessionUpdateFrame struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	AudioFormat audioFormat `json:"audio_format"`
}

type audioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type audioAppendFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type audioEndFrame struct {
	Type string `json:"type"`
}

// Server -> client frames.

type serverFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type readResult struct {
	frame serverFrame
	err   error
}

// RunStreamingSession connects to the realtime endpoint, forwards live PCM,
// and types text deltas as the server emits them. It returns once the
// server finalizes the transcription, the connection closes cleanly, or an
// error occurs. Transport failures and server error frames surface as
// portal-class errors.
func (t *Transcriber) RunStreamingSession(ctx context.Context, in StreamInput) error {
	cfg := t.cfg.MistralRealtime
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultMistralRealtimeEndpoint
	}
	url := fmt.Sprintf("%s?model=%s", endpoint, cfg.Model)

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + cfg.APIKey},
		},
	})
	if err != nil {
		return &portal.Error{Op: "streaming dial", Err: err}
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	t.logger.Info("streaming session connected", "endpoint", endpoint, "model", cfg.Model)

	reads := make(chan readResult, 8)
	go func() {
		for {
			var frame serverFrame
			err := wsjson.Read(ctx, conn, &frame)
			select {
			case reads <- readResult{frame: frame, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	if err := awaitSessionCreated(ctx, reads); err != nil {
		return err
	}
	t.logger.Info("streaming session created")

	update := sessionUpdateFrame{
		Type: "session.update",
		Session: sessionConfig{
			AudioFormat: audioFormat{Encoding: "pcm_s16le", SampleRate: in.SampleRate},
		},
	}
	if err := wsjson.Write(ctx, conn, update); err != nil {
		return &portal.Error{Op: "streaming session update", Err: err}
	}

	var transcript []byte
	frames := in.Frames
	stop := in.Stop
	draining := false

	drainNow := func() error {
		if draining {
			return nil
		}
		draining = true
		frames = nil
		stop = nil
		if err := wsjson.Write(ctx, conn, audioEndFrame{Type: "input_audio.end"}); err != nil {
			return &portal.Error{Op: "streaming audio end", Err: err}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-stop:
			if err := drainNow(); err != nil {
				return err
			}

		case frame, open := <-frames:
			if !open {
				if err := drainNow(); err != nil {
					return err
				}
				continue
			}
			msg := audioAppendFrame{Type: "input_audio.append", Audio: encodePCM(frame)}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return &portal.Error{Op: "streaming audio append", Err: err}
			}

		case r := <-reads:
			if r.err != nil {
				if websocket.CloseStatus(r.err) == websocket.StatusNormalClosure {
					t.logger.Info("streaming connection closed by server")
					publishTranscript(in, transcript)
					return nil
				}
				return &portal.Error{Op: "streaming read", Err: r.err}
			}

			switch r.frame.Type {
			case "transcription.text.delta":
				if r.frame.Text == "" {
					continue
				}
				if err := in.Typer.TypeText(ctx, r.frame.Text); err != nil {
					if portal.IsPortalError(err) {
						return err
					}
					t.logger.Error("failed to inject text delta", "error", err.Error())
				}
				transcript = append(transcript, r.frame.Text...)
			case "transcription.done":
				t.logger.Info("streaming transcription complete", "chars", len(transcript))
				publishTranscript(in, transcript)
				return nil
			case "error":
				msg := r.frame.Text
				if msg == "" {
					msg = "unspecified server error"
				}
				return &portal.Error{Op: "streaming api", Err: errors.New(msg)}
			default:
				t.logger.Debug("ignoring streaming frame", "type", r.frame.Type)
			}
		}
	}
}

// awaitSessionCreated reads frames until the server acknowledges the session.
func awaitSessionCreated(ctx context.Context, reads <-chan readResult) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-reads:
			if r.err != nil {
				return &portal.Error{Op: "streaming handshake", Err: r.err}
			}
			if r.frame.Type == "session.created" {
				return nil
			}
		}
	}
}

func publishTranscript(in StreamInput, transcript []byte) {
	if len(transcript) > 0 && in.Publish != nil {
		in.Publish(string(transcript))
	}
}

// encodePCM encodes samples as little-endian bytes then base64.
func encodePCM(samples []int16) string {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}
