package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/room4-2/omnistream/audio"
	"github.com/room4-2/omnistream/config"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/messages"
	"github.com/room4-2/omnistream/session"
	"github.com/rs/zerolog"
)

// VoiceController starts and stops the device voice link.
type VoiceController interface {
	StartVoice(ctx context.Context) (*session.VoiceSession, error)
	StopVoice()
	SendText(text string) error
	VoiceState() session.State
}

// Assistant answers the dashboard's request/response features.
type Assistant interface {
	Chat(ctx context.Context, prompt string) (string, error)
	Think(ctx context.Context, prompt, moduleContext string) (string, error)
	Search(ctx context.Context, prompt string) (string, []gemini.Source, error)
	Maps(ctx context.Context, prompt string, loc *gemini.LatLng) (string, []gemini.Source, error)
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Speak(ctx context.Context, text, voice string) (audio.Buffer, error)
	GenerateImage(ctx context.Context, prompt, aspectRatio, size string) (*gemini.Image, error)
	GenerateVideo(ctx context.Context, prompt string, image []byte, aspectRatio string) (*gemini.Video, error)
}

// Server is the dashboard endpoint: device controls, voice link and
// assistant features over one WebSocket per browser tab.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	hub        *Hub
	device     *device.Device
	voice      VoiceController
	assistant  Assistant
	config     *config.Config
	log        zerolog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

func NewServer(cfg *config.Config, hub *Hub, dev *device.Device, voice VoiceController, assistant Assistant, log zerolog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:       hub,
		device:    dev,
		voice:     voice,
		assistant: assistant,
		config:    cfg,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024,
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
	s.unsubscribe = dev.Subscribe(hub.DeviceEvent)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins listening for connections
func (s *Server) Start() error {
	s.log.Info().Int("port", s.config.Port).Msg("🚀 Dashboard server starting")
	s.log.Info().Msgf("📡 WebSocket endpoint: ws://localhost:%d/ws", s.config.Port)
	go s.device.Run(s.ctx)
	if s.config.KeepAlivePeriod > 0 {
		go s.sweepIdleClients(s.ctx, s.config.KeepAlivePeriod)
	}
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// idleMissedPings is how many keepalive periods a client may stay silent.
const idleMissedPings = 3

// sweepIdleClients drops dashboards whose connection stopped answering
// pings, which is how a half-open socket shows up.
func (s *Server) sweepIdleClients(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.hub.CloseIdle(now.Add(-idleMissedPings * period)); n > 0 {
				s.log.Info().Int("count", n).Msg("🧹 Closed idle dashboards")
			}
		}
	}
}

// Shutdown stops the device ticker, the voice link and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("🛑 Shutting down server...")
	s.cancel()
	s.unsubscribe()
	s.voice.StopVoice()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := newClient(id, conn, s.config.KeepAlivePeriod, s.log.With().Str("client", id[:8]).Logger())
	s.hub.Register(c)
	s.log.Info().Str("client", id[:8]).Msg("✅ Dashboard connected")

	go c.writePump()
	c.queueMessage(messages.NewStateMessage(s.device.Snapshot()))
	c.queueMessage(messages.NewVoiceMessage(s.voice.VoiceState().String(), ""))

	c.readLoop(func(msg *messages.ClientMessage) { s.handleMessage(c, msg) })

	s.hub.Unregister(c)
	s.log.Info().Str("client", id[:8]).Msg("🔌 Dashboard disconnected")
}

type healthResponse struct {
	Status  string `json:"status"`
	Voice   string `json:"voice"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, _ := sonic.Marshal(healthResponse{
		Status:  "ok",
		Voice:   s.voice.VoiceState().String(),
		Clients: s.hub.Count(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
