// Package session owns the live voice link: microphone capture, the Live
// transport, playback scheduling and tool-call dispatch.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/functions"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/logging"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrSessionEnded is returned by Start on a closed or failed session.
var ErrSessionEnded = errors.New("voice session has ended")

// ErrNotOpen is returned when text is sent outside the open state.
var ErrNotOpen = errors.New("voice session is not open")

// Transport is one Live connection.
type Transport interface {
	Receive() (*genai.LiveServerMessage, error)
	SendAudio(pcm []byte) error
	SendText(text string) error
	SendToolResponse(responses ...*genai.FunctionResponse) error
	Close() error
}

// Dialer opens a Transport.
type Dialer func(ctx context.Context, setup gemini.LiveSetup) (Transport, error)

// GeminiDialer dials the Gemini Live API with client.
func GeminiDialer(client *genai.Client, log zerolog.Logger) Dialer {
	return func(ctx context.Context, setup gemini.LiveSetup) (Transport, error) {
		proxy := gemini.NewProxy(client, log)
		if err := proxy.Setup(ctx, setup); err != nil {
			proxy.Close()
			return nil, err
		}
		return proxy, nil
	}
}

// Transcript is a piece of live transcription.
type Transcript struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

type Options struct {
	ID string
	// Setup is the Live configuration. Tools are always replaced by the
	// control tools; an empty SystemInstruction gets the default one.
	Setup     gemini.LiveSetup
	Modules   []string
	Callbacks functions.Callbacks
	Dial      Dialer
	Devices   audio.Context

	CaptureDeviceRate int
	FrameSamples      int
	OutputSampleRate  int

	Logger zerolog.Logger

	// OnStateChange and OnTranscript run outside the session lock.
	OnStateChange func(State)
	OnTranscript  func(Transcript)
}

func (o *Options) setDefaults() {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.CaptureDeviceRate <= 0 {
		o.CaptureDeviceRate = audio.InputSampleRate
	}
	if o.FrameSamples <= 0 {
		o.FrameSamples = 4096
	}
	if o.OutputSampleRate <= 0 {
		o.OutputSampleRate = audio.OutputSampleRate
	}
	if o.Setup.SystemInstruction == "" {
		o.Setup.SystemInstruction = BuildSystemInstruction(o.Modules)
	}
}

// VoiceSession is one live conversation. It moves idle -> connecting ->
// open -> closed|error and is never restarted.
type VoiceSession struct {
	id         string
	opts       Options
	log        zerolog.Logger
	dispatcher *functions.Dispatcher
	createdAt  time.Time

	state        atomic.Int32
	lastActivity atomic.Int64

	mu         sync.Mutex
	capture    *Capture
	player     *Player
	transport  Transport
	cancelDial context.CancelFunc
	sendDone   chan struct{}
	recvDone   chan struct{}
	done       chan struct{}
	notify     []State
}

// New builds an idle session.
func New(opts Options) (*VoiceSession, error) {
	if opts.Dial == nil {
		return nil, errors.New("session: no dialer")
	}
	if opts.Devices == nil {
		return nil, errors.New("session: no audio devices")
	}
	opts.setDefaults()

	log := logging.Session(opts.Logger, opts.ID)
	dispatcher, err := functions.NewDispatcher(opts.Modules, opts.Callbacks, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool dispatcher: %w", err)
	}
	opts.Setup.Tools = dispatcher.Tools()

	s := &VoiceSession{
		id:         opts.ID,
		opts:       opts,
		log:        log,
		dispatcher: dispatcher,
		createdAt:  time.Now(),
		done:       make(chan struct{}),
	}
	s.touch()
	return s, nil
}

func (s *VoiceSession) ID() string { return s.id }

func (s *VoiceSession) State() State { return State(s.state.Load()) }

// Done is closed once the session reaches closed or error.
func (s *VoiceSession) Done() <-chan struct{} { return s.done }

func (s *VoiceSession) CreatedAt() time.Time { return s.createdAt }

// LastActivity is the time of the last frame sent or message received.
func (s *VoiceSession) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *VoiceSession) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *VoiceSession) setStateLocked(st State) {
	s.state.Store(int32(st))
	s.notify = append(s.notify, st)
}

// finishLocked moves to a terminal state.
func (s *VoiceSession) finishLocked(st State) {
	s.setStateLocked(st)
	close(s.done)
}

// unlockAndNotify releases the lock and reports queued state changes.
func (s *VoiceSession) unlockAndNotify() {
	pending := s.notify
	s.notify = nil
	s.mu.Unlock()
	if s.opts.OnStateChange == nil {
		return
	}
	for _, st := range pending {
		s.opts.OnStateChange(st)
	}
}

// Start connects and begins streaming. It is a no-op while connecting or
// open. Microphone failures are reported as ErrMicrophoneUnavailable and
// leave nothing running.
func (s *VoiceSession) Start(ctx context.Context) error {
	s.mu.Lock()
	switch st := s.State(); {
	case st.Active():
		s.mu.Unlock()
		return nil
	case st.Terminal():
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.setStateLocked(StateConnecting)
	s.log.Info().Msg("🔌 Voice session connecting")

	capture, err := OpenCapture(s.opts.Devices, s.opts.CaptureDeviceRate, s.opts.FrameSamples, s.log)
	if err != nil {
		return s.abortStartLocked(err)
	}
	s.capture = capture

	out, err := s.opts.Devices.OpenOutput(s.opts.OutputSampleRate)
	if err != nil {
		return s.abortStartLocked(fmt.Errorf("failed to open audio output: %w", err))
	}
	s.player = NewPlayer(out, s.opts.OutputSampleRate)

	dialCtx, cancel := context.WithCancel(ctx)
	s.cancelDial = cancel
	s.unlockAndNotify()

	transport, err := s.opts.Dial(dialCtx, s.opts.Setup)

	s.mu.Lock()
	cancel()
	s.cancelDial = nil
	if s.State() != StateConnecting {
		// stopped while dialing
		s.mu.Unlock()
		if transport != nil {
			transport.Close()
		}
		return ErrSessionEnded
	}
	if err != nil {
		return s.abortStartLocked(fmt.Errorf("failed to connect: %w", err))
	}
	s.transport = transport

	if err := capture.Start(); err != nil {
		return s.abortStartLocked(err)
	}

	s.sendDone = make(chan struct{})
	s.recvDone = make(chan struct{})
	go s.sendLoop(capture.Frames(), transport, s.sendDone)
	go s.receiveLoop(transport, s.recvDone)

	s.touch()
	s.setStateLocked(StateOpen)
	s.log.Info().Msg("✅ Voice session open")
	s.unlockAndNotify()
	return nil
}

func (s *VoiceSession) abortStartLocked(err error) error {
	s.log.Error().Err(err).Msg("❌ Voice session failed to start")
	s.teardownLocked()
	s.finishLocked(StateError)
	s.unlockAndNotify()
	return err
}

// SendText sends a typed user turn on the open connection. The spoken
// reply plays like any other.
func (s *VoiceSession) SendText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateOpen {
		return ErrNotOpen
	}
	s.touch()
	return s.transport.SendText(text)
}

// Stop tears down capture, transport and playback. Stopping an idle or
// finished session does nothing.
func (s *VoiceSession) Stop() {
	s.mu.Lock()
	st := s.State()
	if st == StateIdle || st.Terminal() {
		s.mu.Unlock()
		return
	}
	if s.cancelDial != nil {
		s.cancelDial()
	}
	s.teardownLocked()
	s.finishLocked(StateClosed)
	sendDone, recvDone := s.sendDone, s.recvDone
	s.log.Info().Msg("🔌 Voice session stopped")
	s.unlockAndNotify()

	if sendDone != nil {
		<-sendDone
	}
	if recvDone != nil {
		<-recvDone
	}
}

// teardownLocked releases the microphone first so no frame outlives the
// transport, then the connection, then playback.
func (s *VoiceSession) teardownLocked() {
	if s.capture != nil {
		s.capture.Stop()
		s.capture = nil
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close")
		}
		s.transport = nil
	}
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
}

func (s *VoiceSession) sendLoop(frames <-chan []byte, t Transport, done chan struct{}) {
	defer close(done)
	for frame := range frames {
		if err := t.SendAudio(frame); err != nil {
			s.log.Debug().Err(err).Msg("audio frame not sent")
			continue
		}
		s.touch()
	}
}

func (s *VoiceSession) receiveLoop(t Transport, done chan struct{}) {
	defer close(done)
	for {
		msg, err := t.Receive()
		if err != nil {
			s.fail(err)
			return
		}
		s.handleMessage(msg)
	}
}

// fail ends an open session after a receive error.
func (s *VoiceSession) fail(err error) {
	s.mu.Lock()
	if s.State() != StateOpen {
		s.mu.Unlock()
		return
	}
	final := StateError
	if gemini.IsNormalClose(err) {
		final = StateClosed
		s.log.Info().Err(err).Msg("🔌 Live connection closed")
	} else {
		s.log.Error().Err(err).Msg("❌ Live connection failed")
	}
	s.teardownLocked()
	s.finishLocked(final)
	s.unlockAndNotify()
}

// handleMessage is the single dispatch point for inbound messages.
func (s *VoiceSession) handleMessage(msg *genai.LiveServerMessage) {
	if msg == nil {
		return
	}
	var transcripts []Transcript

	s.mu.Lock()
	if s.State() != StateOpen {
		s.mu.Unlock()
		return
	}
	s.touch()

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil {
					continue
				}
				if err := s.player.Enqueue(part.InlineData.Data); err != nil {
					s.log.Warn().Err(err).Msg("⚠️ Skipping malformed audio chunk")
				}
			}
		}
		if sc.Interrupted {
			s.player.Interrupt()
			s.log.Debug().Msg("⏹️ Playback interrupted")
		}
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			transcripts = append(transcripts, Transcript{Role: "user", Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			transcripts = append(transcripts, Transcript{Role: "assistant", Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			s.log.Debug().Msg("📥 Turn complete")
		}
	}

	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			s.log.Info().Str("function", fc.Name).Str("call_id", fc.ID).Msg("🔧 Function call")
			resp := s.dispatcher.Dispatch(fc)
			if err := s.transport.SendToolResponse(resp); err != nil {
				s.log.Warn().Err(err).Str("call_id", fc.ID).Msg("⚠️ Failed to send tool response")
			}
		}
	}
	s.mu.Unlock()

	if s.opts.OnTranscript != nil {
		for _, t := range transcripts {
			s.opts.OnTranscript(t)
		}
	}
}
