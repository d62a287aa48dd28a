// Package gemini wraps the Gemini API: the Live voice transport and the
// one-shot assistant calls used by the dashboard.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/room4-2/omnistream/audio"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrProxyClosed is returned by sends after Close or before Setup.
var ErrProxyClosed = errors.New("proxy is closed or not connected")

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// LiveSetup configures one Live connection.
type LiveSetup struct {
	Model             string
	SystemInstruction string
	Tools             []*genai.Tool
	VoiceName         string
	// Transcribe enables input and output transcription events.
	Transcribe bool
}

func (s LiveSetup) connectConfig() *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Tools:              s.Tools,
	}
	if s.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: s.SystemInstruction}},
		}
	}
	if s.VoiceName != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: s.VoiceName},
			},
		}
	}
	if s.Transcribe {
		cfg.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		cfg.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return cfg
}

// Proxy is one Live connection. Sends are serialized; Receive must be
// called from a single goroutine.
type Proxy struct {
	client  *genai.Client
	session *genai.Session
	log     zerolog.Logger

	sendMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func NewProxy(client *genai.Client, log zerolog.Logger) *Proxy {
	return &Proxy{client: client, log: log}
}

// Setup opens the Live session.
func (gp *Proxy) Setup(ctx context.Context, setup LiveSetup) error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return ErrProxyClosed
	}

	session, err := gp.client.Live.Connect(ctx, setup.Model, setup.connectConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}

	gp.session = session
	gp.log.Info().Str("model", setup.Model).Msg("✅ Connected to Gemini Live")
	return nil
}

func (gp *Proxy) current() (*genai.Session, error) {
	gp.mu.RLock()
	defer gp.mu.RUnlock()
	if gp.closed || gp.session == nil {
		return nil, ErrProxyClosed
	}
	return gp.session, nil
}

// Receive blocks for the next server message.
func (gp *Proxy) Receive() (*genai.LiveServerMessage, error) {
	session, err := gp.current()
	if err != nil {
		return nil, err
	}
	msg, err := session.Receive()
	if err != nil {
		gp.mu.RLock()
		closed := gp.closed
		gp.mu.RUnlock()
		if closed {
			return nil, ErrProxyClosed
		}
		return nil, err
	}
	return msg, nil
}

// SendAudio forwards one 16 kHz PCM frame.
func (gp *Proxy) SendAudio(pcm []byte) error {
	session, err := gp.current()
	if err != nil {
		return err
	}

	gp.sendMu.Lock()
	err = session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: audio.MIMEType(audio.InputSampleRate),
			Data:     pcm,
		},
	})
	gp.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}

	gp.log.Trace().Int("bytes", len(pcm)).Msg("📤 Sent audio to Gemini")
	return nil
}

// SendText sends a complete user turn.
func (gp *Proxy) SendText(text string) error {
	session, err := gp.current()
	if err != nil {
		return err
	}

	turnComplete := true
	gp.sendMu.Lock()
	err = session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			},
		},
		TurnComplete: &turnComplete,
	})
	gp.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}

	gp.log.Debug().Str("text", text).Msg("📤 Sent text to Gemini")
	return nil
}

// SendToolResponse answers function calls.
func (gp *Proxy) SendToolResponse(responses ...*genai.FunctionResponse) error {
	session, err := gp.current()
	if err != nil {
		return err
	}

	gp.sendMu.Lock()
	err = session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
	gp.sendMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}

	gp.log.Debug().Int("count", len(responses)).Msg("📤 Sent tool response to Gemini")
	return nil
}

// Close terminates the connection. It is safe to call more than once.
func (gp *Proxy) Close() error {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if gp.closed {
		return nil
	}
	gp.closed = true

	if gp.session != nil {
		return gp.session.Close()
	}
	return nil
}

// IsNormalClose reports whether a receive error is an orderly shutdown of
// the connection rather than a failure.
func IsNormalClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProxyClosed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
