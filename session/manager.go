package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/room4-2/omnistream/config"
	"github.com/rs/zerolog"
)

const (
	redisSessionPrefix = "voice_session:"
	redisActiveSet     = "active_voice_sessions"
)

// Manager keeps at most one voice session per device. A finished session
// is replaced by a fresh one on the next start.
type Manager struct {
	template Options
	timeout  time.Duration
	redis    *redis.Client
	log      zerolog.Logger

	mu      sync.Mutex
	current *VoiceSession
}

// NewManager creates a manager. template supplies everything but the
// session id. Redis bookkeeping is used when cfg.RedisURL answers a ping.
func NewManager(cfg *config.Config, template Options, log zerolog.Logger) *Manager {
	var redisClient *redis.Client

	if cfg.RedisURL != "" {
		// Try to connect to Redis, but don't fail if unavailable
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisURL).Msg("⚠️ Redis unavailable, session registry disabled")
			redisClient.Close()
			redisClient = nil
		}
	}

	return newManager(template, cfg.SessionTimeout, redisClient, log)
}

func newManager(template Options, timeout time.Duration, rc *redis.Client, log zerolog.Logger) *Manager {
	return &Manager{
		template: template,
		timeout:  timeout,
		redis:    rc,
		log:      log,
	}
}

// StartVoice starts the device's voice session. If one is already
// connecting or open it is returned unchanged.
func (m *Manager) StartVoice(ctx context.Context) (*VoiceSession, error) {
	m.mu.Lock()
	s := m.current
	if s == nil || s.State().Terminal() {
		opts := m.template
		opts.ID = ""
		hook := m.template.OnStateChange
		var created *VoiceSession
		opts.OnStateChange = func(st State) {
			m.record(created, st)
			if hook != nil {
				hook(st)
			}
		}
		var err error
		created, err = New(opts)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		s = created
		m.current = s
	}
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// StopVoice stops the current session, if any.
func (m *Manager) StopVoice() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// SendText sends a typed turn to the current session.
func (m *Manager) SendText(text string) error {
	s := m.Current()
	if s == nil {
		return ErrNotOpen
	}
	return s.SendText(text)
}

// Current returns the latest session, which may have finished.
func (m *Manager) Current() *VoiceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// VoiceState returns the state of the latest session, idle if none.
func (m *Manager) VoiceState() State {
	if s := m.Current(); s != nil {
		return s.State()
	}
	return StateIdle
}

// record mirrors session state into Redis.
func (m *Manager) record(s *VoiceSession, st State) {
	if m.redis == nil || s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := redisSessionPrefix + s.ID()
	if st.Terminal() {
		m.redis.Del(ctx, key)
		m.redis.SRem(ctx, redisActiveSet, s.ID())
		return
	}
	m.redis.HSet(ctx, key, map[string]interface{}{
		"created_at":    s.CreatedAt().Format(time.RFC3339),
		"last_activity": s.LastActivity().Format(time.RFC3339),
		"status":        st.String(),
	})
	m.redis.SAdd(ctx, redisActiveSet, s.ID())
	if m.timeout > 0 {
		m.redis.Expire(ctx, key, m.timeout)
	}
}

// CleanupInactive stops the current session if it has been silent longer
// than the session timeout.
func (m *Manager) CleanupInactive(now time.Time) bool {
	if m.timeout <= 0 {
		return false
	}
	s := m.Current()
	if s == nil || s.State() != StateOpen {
		return false
	}
	if now.Sub(s.LastActivity()) <= m.timeout {
		return false
	}
	m.log.Info().Str("session", s.ID()).Msg("⏱️ Stopping inactive voice session")
	s.Stop()
	return true
}

// StartCleanupRoutine runs CleanupInactive every minute until ctx is done.
func (m *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.CleanupInactive(now)
		}
	}
}

// Shutdown stops the session and closes Redis.
func (m *Manager) Shutdown() {
	m.StopVoice()
	if m.redis != nil {
		m.redis.Close()
	}
}
