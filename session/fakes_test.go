package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/audio/audiotest"
	"github.com/room4-2/omnistream/functions"
	"github.com/room4-2/omnistream/gemini"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

type recvItem struct {
	msg *genai.LiveServerMessage
	err error
}

type fakeTransport struct {
	in      chan recvItem
	closeCh chan struct{}

	mu        sync.Mutex
	audio     [][]byte
	texts     []string
	responses []*genai.FunctionResponse
	closed    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan recvItem, 16), closeCh: make(chan struct{})}
}

func (f *fakeTransport) Receive() (*genai.LiveServerMessage, error) {
	select {
	case it := <-f.in:
		return it.msg, it.err
	case <-f.closeCh:
		return nil, gemini.ErrProxyClosed
	}
}

func (f *fakeTransport) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, pcm)
	return nil
}

func (f *fakeTransport) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeTransport) SendToolResponse(responses ...*genai.FunctionResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeTransport) push(msg *genai.LiveServerMessage) { f.in <- recvItem{msg: msg} }
func (f *fakeTransport) pushErr(err error)                 { f.in <- recvItem{err: err} }

func (f *fakeTransport) Responses() []*genai.FunctionResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*genai.FunctionResponse(nil), f.responses...)
}

func (f *fakeTransport) Audio() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.audio...)
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type calls struct {
	mu      sync.Mutex
	modules []string
	scans   []bool
	ghosts  []bool
	states  []State
}

func (c *calls) callbacks() functions.Callbacks {
	return functions.Callbacks{
		OnSwitchModule: func(m string) { c.mu.Lock(); c.modules = append(c.modules, m); c.mu.Unlock() },
		OnToggleScan:   func(a bool) { c.mu.Lock(); c.scans = append(c.scans, a); c.mu.Unlock() },
		OnToggleGhost:  func(a bool) { c.mu.Lock(); c.ghosts = append(c.ghosts, a); c.mu.Unlock() },
	}
}

func (c *calls) onState(st State) {
	c.mu.Lock()
	c.states = append(c.states, st)
	c.mu.Unlock()
}

func (c *calls) snapshot() calls {
	c.mu.Lock()
	defer c.mu.Unlock()
	return calls{
		modules: append([]string(nil), c.modules...),
		scans:   append([]bool(nil), c.scans...),
		ghosts:  append([]bool(nil), c.ghosts...),
		states:  append([]State(nil), c.states...),
	}
}

type harness struct {
	session   *VoiceSession
	devices   *audiotest.Context
	transport *fakeTransport
	calls     *calls
	dials     int
	mu        sync.Mutex
}

func (h *harness) dialCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dials
}

func testOptions(h *harness) Options {
	return Options{
		Modules:   []string{"Sub-GHz", "NFC"},
		Callbacks: h.calls.callbacks(),
		Devices:   h.devices,
		Dial: func(context.Context, gemini.LiveSetup) (Transport, error) {
			h.mu.Lock()
			h.dials++
			h.mu.Unlock()
			return h.transport, nil
		},
		FrameSamples:  4,
		Logger:        zerolog.Nop(),
		OnStateChange: h.calls.onState,
	}
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		devices:   audiotest.NewContext(),
		transport: newFakeTransport(),
		calls:     &calls{},
	}
	opts := testOptions(h)
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.session = s
	t.Cleanup(s.Stop)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if st := h.session.State(); st != StateOpen {
		t.Fatalf("state after start = %v", st)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func audioMessage(chunks ...[]byte) *genai.LiveServerMessage {
	parts := make([]*genai.Part, len(chunks))
	for i, c := range chunks {
		parts[i] = &genai.Part{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: c}}
	}
	return &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{ModelTurn: &genai.Content{Parts: parts}}}
}

func interruptMessage() *genai.LiveServerMessage {
	return &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{Interrupted: true}}
}

func toolCallMessage(calls ...*genai.FunctionCall) *genai.LiveServerMessage {
	return &genai.LiveServerMessage{ToolCall: &genai.LiveServerToolCall{FunctionCalls: calls}}
}

// pcmSeconds returns silent 24 kHz PCM of the given length.
func pcmSeconds(sec float64) []byte {
	return make([]byte, int(sec*audio.OutputSampleRate)*2)
}
