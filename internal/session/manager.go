package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/cart"
	"github.com/veya/storefront/internal/checkout"
	"github.com/veya/storefront/internal/coupons"
	"github.com/veya/storefront/internal/gateway"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/notify"
	"github.com/veya/storefront/internal/otp"
	"github.com/veya/storefront/internal/pricing"
	"github.com/veya/storefront/internal/storage"
)

// OTPConfig tunes the OTP flows every session gets.
type OTPConfig struct {
	Cooldown        time.Duration
	MaxAttempts     int
	CodeLength      int
	ResetCodeLength int
	PopupDelay      time.Duration
}

// Config tunes the manager and the state it builds per session.
type Config struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	Checkout        checkout.Config
	OTP             OTPConfig
	Notifications   notify.Config
	Now             func() time.Time
}

// Deps are shared by every session.
type Deps struct {
	Clients    *apiclient.Factory
	Calculator *pricing.Calculator
	Widget     gateway.Widget
	Ledger     storage.Store
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Manager creates, finds and expires sessions.
type Manager struct {
	cfg  Config
	deps Deps

	locks   *cart.KeyedMutex
	flights *singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewManager starts the idle cleanup loop. Call Close to stop it.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if deps.Calculator == nil {
		deps.Calculator = pricing.New(pricing.DefaultRules())
	}
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		locks:    cart.NewKeyedMutex(),
		flights:  &singleflight.Group{},
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns a live session and marks it as seen.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s.touch(m.cfg.Now())
	return s, true
}

// GetOrCreate returns the session for id, creating a new one (with a new id)
// when id is unknown. created reports whether the caller must set the cookie.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := m.Get(id); ok {
		return s, false
	}
	return m.Create(), true
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	id := uuid.NewString()
	log := m.deps.Logger.With().Str("session_id", logger.TruncateID(id)).Logger()
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), log))

	s := &Session{
		ID:       id,
		API:      m.deps.Clients.NewClient(),
		ctx:      ctx,
		cancel:   cancel,
		lastSeen: m.cfg.Now(),
	}
	notifyCfg := m.cfg.Notifications
	notifyCfg.Metrics = m.deps.Metrics
	s.Notifier = notify.New(notifyCfg)
	s.Cart = cart.NewStore(s.API, s.cartKey, cart.Deps{Locks: m.locks, Flights: m.flights, Metrics: m.deps.Metrics})
	s.Coupons = coupons.NewHolder(s.API, m.deps.Metrics)
	s.Checkout = checkout.New(ctx, id, m.cfg.Checkout, checkout.Deps{
		Backend:    s.API,
		Cart:       s.Cart,
		Coupons:    s.Coupons,
		Calculator: m.deps.Calculator,
		Widget:     m.deps.Widget,
		Notifier:   s.Notifier,
		Ledger:     m.deps.Ledger,
		Metrics:    m.deps.Metrics,
		Now:        m.cfg.Now,
	})
	s.Popup = otp.NewPopup(m.cfg.OTP.PopupDelay, m.cfg.Now)
	s.otp = make(map[otp.Variant]*otp.Flow, 4)
	for _, v := range []otp.Variant{otp.VariantEmail, otp.VariantMobile, otp.VariantRegister, otp.VariantPasswordReset} {
		backend, _ := otp.BackendFor(s.API, v) // every listed variant is known
		length := m.cfg.OTP.CodeLength
		if v == otp.VariantPasswordReset || v == otp.VariantRegister {
			length = m.cfg.OTP.ResetCodeLength
		}
		s.otp[v] = otp.New(v, backend, otp.Config{
			CodeLength:  length,
			Cooldown:    m.cfg.OTP.Cooldown,
			MaxAttempts: m.cfg.OTP.MaxAttempts,
			Now:         m.cfg.Now,
			Metrics:     m.deps.Metrics,
		})
	}

	m.mu.Lock()
	m.sessions[id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(n)
	log.Debug().Msg("session.created")
	return s
}

// Dispose ends a session and cancels everything it started.
func (m *Manager) Dispose(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	m.deps.Metrics.SetActiveSessions(n)
	log := logger.FromContext(s.ctx)
	log.Debug().Msg("session.disposed")
}

// Len counts live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep disposes sessions idle for longer than the TTL and returns how many.
// A session waiting on a payment callback is kept until the flow settles.
func (m *Manager) Sweep() int {
	cutoff := m.cfg.Now().Add(-m.cfg.IdleTTL)

	m.mu.RLock()
	var idle []string
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) && s.Checkout.Snapshot().State != checkout.StatePaymentPending {
			idle = append(idle, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range idle {
		m.Dispose(id)
	}
	return len(idle)
}

func (m *Manager) cleanupLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.deps.Logger.Debug().Int("disposed", n).Msg("session.sweep")
			}
		case <-m.stop:
			return
		}
	}
}

// Close stops the cleanup loop and disposes every session.
func (m *Manager) Close() error {
	m.once.Do(func() {
		close(m.stop)
		<-m.done

		m.mu.RLock()
		ids := make([]string, 0, len(m.sessions))
		for id := range m.sessions {
			ids = append(ids, id)
		}
		m.mu.RUnlock()
		for _, id := range ids {
			m.Dispose(id)
		}
	})
	return nil
}
