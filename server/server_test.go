package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/config"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/messages"
	"github.com/room4-2/omnistream/session"
	"github.com/rs/zerolog"
)

type fakeVoice struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	texts    []string
	state    session.State
}

func (f *fakeVoice) StartVoice(context.Context) (*session.VoiceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil, f.startErr
}

func (f *fakeVoice) StopVoice() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeVoice) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != session.StateOpen {
		return session.ErrNotOpen
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeVoice) VoiceState() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakeAssistant struct {
	mu         sync.Mutex
	lastModule string
}

func (f *fakeAssistant) module() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastModule
}

func (f *fakeAssistant) Chat(_ context.Context, prompt string) (string, error) {
	return "echo: " + prompt, nil
}

func (f *fakeAssistant) Think(_ context.Context, prompt, module string) (string, error) {
	f.mu.Lock()
	f.lastModule = module
	f.mu.Unlock()
	return "thought about " + prompt, nil
}

func (f *fakeAssistant) Search(context.Context, string) (string, []gemini.Source, error) {
	return "found", []gemini.Source{{Title: "Docs", URI: "https://example.com"}}, nil
}

func (f *fakeAssistant) Maps(_ context.Context, _ string, loc *gemini.LatLng) (string, []gemini.Source, error) {
	if loc == nil {
		return "", nil, errors.New("no location")
	}
	return "nearby", nil, nil
}

func (f *fakeAssistant) Transcribe(context.Context, []byte) (string, error) {
	return "hello", nil
}

func (f *fakeAssistant) Speak(context.Context, string, string) (audio.Buffer, error) {
	return audio.Buffer{SampleRate: 24000, Samples: []float32{0, 0.5}}, nil
}

func (f *fakeAssistant) GenerateImage(_ context.Context, _, aspect, _ string) (*gemini.Image, error) {
	if aspect == "bogus" {
		return nil, gemini.ErrInvalidMediaOption
	}
	return &gemini.Image{MIMEType: "image/png", Data: []byte{1, 2, 3}}, nil
}

func (f *fakeAssistant) GenerateVideo(context.Context, string, []byte, string) (*gemini.Video, error) {
	return &gemini.Video{MIMEType: "video/mp4", Data: []byte{4}}, nil
}

type wireMessage struct {
	Type    string         `json:"type"`
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

type harness struct {
	t      *testing.T
	srv    *Server
	dev    *device.Device
	voice  *fakeVoice
	assist *fakeAssistant
	http   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.KeepAlivePeriod = 0
	h := &harness{
		t:      t,
		dev:    device.New(zerolog.Nop()),
		voice:  &fakeVoice{},
		assist: &fakeAssistant{},
	}
	h.srv = NewServer(cfg, NewHub(), h.dev, h.voice, h.assist, zerolog.Nop())
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		h.http.Close()
		h.srv.cancel()
		h.srv.unsubscribe()
	})
	return h
}

func (h *harness) dial() *websocket.Conn {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		h.t.Fatal(err)
	}
	h.t.Cleanup(func() { conn.Close() })

	// greeting: state then voice
	h.expect(conn, messages.TypeState)
	h.expect(conn, messages.TypeVoice)
	return conn
}

func (h *harness) send(conn *websocket.Conn, msgType, id string, payload any) {
	h.t.Helper()
	msg := map[string]any{"type": msgType, "id": id}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.t.Fatal(err)
	}
}

// expect reads until a message of msgType arrives, skipping broadcasts.
func (h *harness) expect(conn *websocket.Conn, msgType string) wireMessage {
	h.t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		var msg wireMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.t.Fatal(err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestGreetingCarriesSnapshot(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	state := h.expect(conn, messages.TypeState)
	if state.Payload["module"] != "Sub-GHz" {
		t.Fatalf("module = %v", state.Payload["module"])
	}
	voice := h.expect(conn, messages.TypeVoice)
	if voice.Payload["state"] != "idle" {
		t.Fatalf("voice = %v", voice.Payload["state"])
	}
}

func TestSelectModuleBroadcastsToAllClients(t *testing.T) {
	h := newHarness(t)
	a := h.dial()
	b := h.dial()

	h.send(a, messages.TypeSelectModule, "1", messages.SelectModulePayload{Module: "NFC"})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := h.expect(conn, messages.TypeState)
		if msg.Payload["module"] != "NFC" {
			t.Fatalf("module = %v", msg.Payload["module"])
		}
	}
	if h.dev.Snapshot().Module != device.NFC {
		t.Fatal("device not updated")
	}
}

func TestSelectUnknownModule(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	h.send(conn, messages.TypeSelectModule, "7", messages.SelectModulePayload{Module: "Teleporter"})
	msg := h.expect(conn, messages.TypeError)
	if msg.ID != "7" || msg.Payload["code"] != messages.ErrCodeUnknownModule {
		t.Fatalf("error = %+v", msg)
	}
}

func TestToggleScanLogs(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	h.send(conn, messages.TypeToggleScan, "", nil)
	msg := h.expect(conn, messages.TypeLog)
	if msg.Payload["action"] != "START" {
		t.Fatalf("log = %v", msg.Payload)
	}
	if !h.dev.Snapshot().Scanning {
		t.Fatal("not scanning")
	}
}

func TestChatModes(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	h.send(conn, messages.TypeChat, "c1", messages.ChatPayload{Text: "hi"})
	msg := h.expect(conn, messages.TypeReply)
	if msg.ID != "c1" || msg.Payload["text"] != "echo: hi" || msg.Payload["mode"] != "standard" {
		t.Fatalf("reply = %+v", msg)
	}

	h.send(conn, messages.TypeChat, "c2", messages.ChatPayload{Mode: "search", Text: "x"})
	msg = h.expect(conn, messages.TypeReply)
	sources, _ := msg.Payload["sources"].([]any)
	if len(sources) != 1 {
		t.Fatalf("sources = %v", msg.Payload["sources"])
	}

	h.send(conn, messages.TypeChat, "c3", messages.ChatPayload{Mode: "thinking", Text: "plan"})
	h.expect(conn, messages.TypeReply)
	if got := h.assist.module(); got != "Sub-GHz" {
		t.Fatalf("think context = %q", got)
	}

	h.send(conn, messages.TypeChat, "c4", messages.ChatPayload{Mode: "telepathy", Text: "x"})
	msg = h.expect(conn, messages.TypeError)
	if msg.ID != "c4" || msg.Payload["code"] != messages.ErrCodeInvalidMessage {
		t.Fatalf("error = %+v", msg)
	}
}

func TestMapsNeedsLocation(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	lat, lng := 51.5, -0.1
	h.send(conn, messages.TypeChat, "m1", messages.ChatPayload{Mode: "maps", Text: "cafe", Lat: &lat, Lng: &lng})
	if msg := h.expect(conn, messages.TypeReply); msg.Payload["text"] != "nearby" {
		t.Fatalf("reply = %+v", msg)
	}

	h.send(conn, messages.TypeChat, "m2", messages.ChatPayload{Mode: "maps", Text: "cafe"})
	if msg := h.expect(conn, messages.TypeError); msg.Payload["code"] != messages.ErrCodeGeminiError {
		t.Fatalf("error = %+v", msg)
	}
}

func TestSpeakReturnsPCM(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()
	h.send(conn, messages.TypeSpeak, "s1", messages.SpeakPayload{Text: "hello"})
	msg := h.expect(conn, messages.TypeAudio)
	if msg.Payload["mimeType"] != "audio/pcm;rate=24000" {
		t.Fatalf("mime = %v", msg.Payload["mimeType"])
	}
	// two samples, four bytes, eight base64 chars
	if data, _ := msg.Payload["data"].(string); len(data) != 8 {
		t.Fatalf("data = %q", data)
	}
}

func TestMediaRequests(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	h.send(conn, messages.TypeGenerateImage, "i1", messages.ImagePayload{Prompt: "cat", AspectRatio: "1:1", ImageSize: "1K"})
	if msg := h.expect(conn, messages.TypeMedia); msg.Payload["kind"] != "image" {
		t.Fatalf("media = %+v", msg)
	}

	h.send(conn, messages.TypeGenerateImage, "i2", messages.ImagePayload{Prompt: "cat", AspectRatio: "bogus"})
	if msg := h.expect(conn, messages.TypeError); msg.Payload["code"] != messages.ErrCodeInvalidMessage {
		t.Fatalf("error = %+v", msg)
	}

	h.send(conn, messages.TypeGenerateVideo, "v1", messages.VideoPayload{Prompt: "cat", Image: "not base64!"})
	if msg := h.expect(conn, messages.TypeError); msg.ID != "v1" {
		t.Fatalf("error = %+v", msg)
	}

	h.send(conn, messages.TypeGenerateVideo, "v2", messages.VideoPayload{Prompt: "cat"})
	if msg := h.expect(conn, messages.TypeMedia); msg.Payload["kind"] != "video" {
		t.Fatalf("media = %+v", msg)
	}
}

func TestVoiceStartFailureReported(t *testing.T) {
	h := newHarness(t)
	h.voice.startErr = session.ErrMicrophoneUnavailable
	conn := h.dial()

	h.send(conn, messages.TypeVoiceStart, "v", nil)
	msg := h.expect(conn, messages.TypeError)
	if msg.Payload["code"] != messages.ErrCodeVoiceFailed {
		t.Fatalf("error = %+v", msg)
	}

	h.send(conn, messages.TypeVoiceStop, "", nil)
	h.send(conn, messages.TypePing, "p", nil)
	h.expect(conn, messages.TypePong)
	h.voice.mu.Lock()
	defer h.voice.mu.Unlock()
	if h.voice.starts != 1 || h.voice.stops != 1 {
		t.Fatalf("starts %d stops %d", h.voice.starts, h.voice.stops)
	}
}

func TestVoiceTextTurn(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	h.send(conn, messages.TypeVoiceText, "t1", messages.VoiceTextPayload{Text: "scan"})
	if msg := h.expect(conn, messages.TypeError); msg.ID != "t1" || msg.Payload["code"] != messages.ErrCodeVoiceNotOpen {
		t.Fatalf("error = %+v", msg)
	}

	h.voice.mu.Lock()
	h.voice.state = session.StateOpen
	h.voice.mu.Unlock()
	h.send(conn, messages.TypeVoiceText, "t2", messages.VoiceTextPayload{Text: "switch to NFC"})
	h.send(conn, messages.TypePing, "p", nil)
	h.expect(conn, messages.TypePong)

	h.voice.mu.Lock()
	defer h.voice.mu.Unlock()
	if len(h.voice.texts) != 1 || h.voice.texts[0] != "switch to NFC" {
		t.Fatalf("texts = %v", h.voice.texts)
	}
}

func TestCloseIdleDropsSilentClients(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	if n := h.srv.hub.CloseIdle(time.Now().Add(-time.Hour)); n != 0 {
		t.Fatalf("closed %d active clients", n)
	}
	if n := h.srv.hub.CloseIdle(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("closed %d clients, want 1", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("read err = %v, want normal close", err)
			}
			break
		}
	}
	waitUntil(t, func() bool { return h.srv.hub.Count() == 0 })
}

func TestPongCountsAsActivity(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	var c *Client
	h.srv.hub.mu.RLock()
	for cl := range h.srv.hub.clients {
		c = cl
	}
	h.srv.hub.mu.RUnlock()
	before := c.LastActivity()

	time.Sleep(5 * time.Millisecond)
	// the default ping handler answers with a pong while we read
	go conn.ReadMessage()
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, func() bool { return c.LastActivity().After(before) })
}

func TestMalformedMessages(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	conn.WriteMessage(websocket.TextMessage, []byte("{nope"))
	if msg := h.expect(conn, messages.TypeError); msg.Payload["code"] != messages.ErrCodeInvalidMessage {
		t.Fatalf("error = %+v", msg)
	}

	h.send(conn, "warp_drive", "w", nil)
	if msg := h.expect(conn, messages.TypeError); msg.ID != "w" {
		t.Fatalf("error = %+v", msg)
	}

	h.send(conn, messages.TypeChat, "c", nil)
	if msg := h.expect(conn, messages.TypeError); msg.ID != "c" {
		t.Fatalf("error = %+v", msg)
	}
}

func TestHubForwardsVoiceAndTranscripts(t *testing.T) {
	h := newHarness(t)
	conn := h.dial()

	h.srv.hub.VoiceState(session.StateOpen)
	if msg := h.expect(conn, messages.TypeVoice); msg.Payload["state"] != "open" {
		t.Fatalf("voice = %+v", msg)
	}
	h.srv.hub.Transcript(session.Transcript{Role: "assistant", Text: "Switching to NFC."})
	if msg := h.expect(conn, messages.TypeTranscript); msg.Payload["text"] != "Switching to NFC." {
		t.Fatalf("transcript = %+v", msg)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	h.dial()

	deadline := time.Now().Add(time.Second)
	for h.srv.hub.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := http.Get(h.http.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var health healthResponse
	if err := sonic.Unmarshal(body, &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Voice != "idle" || health.Clients != 1 {
		t.Fatalf("health = %s", body)
	}
}

func TestOriginCheck(t *testing.T) {
	cfg := config.Default()
	cfg.AllowedOrigins = []string{"https://dash.example"}
	srv := NewServer(cfg, NewHub(), device.New(zerolog.Nop()), &fakeVoice{}, &fakeAssistant{}, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("foreign origin accepted")
	}
	header.Set("Origin", "https://dash.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatal(err)
	}
	conn.Close()
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
