// Package notify is the per-visitor toast queue. Every user-visible outcome,
// success or failure, is reported through it.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/veya/storefront/internal/metrics"
)

// Type is the toast style.
type Type string

const (
	Success Type = "success"
	Error   Type = "error"
	Info    Type = "info"
	Warning Type = "warning"
)

// Notification is one toast.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config controls dismissal and queue size.
type Config struct {
	Duration  time.Duration
	QueueSize int
	Now       func() time.Time
	Metrics   *metrics.Metrics
}

// Notifier holds active toasts. Expired toasts are dropped lazily on read.
type Notifier struct {
	cfg Config

	mu    sync.Mutex
	queue []Notification
}

// New returns an empty notifier. Zero values fall back to a 3s duration and a
// queue of 20.
func New(cfg Config) *Notifier {
	if cfg.Duration <= 0 {
		cfg.Duration = 3 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Notifier{cfg: cfg}
}

// Push enqueues a toast. When the queue is full the oldest toast is dropped.
func (n *Notifier) Push(t Type, message string) Notification {
	now := n.cfg.Now()
	note := Notification{
		ID:        uuid.NewString(),
		Type:      t,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(n.cfg.Duration),
	}

	n.mu.Lock()
	n.prune(now)
	if len(n.queue) >= n.cfg.QueueSize {
		n.queue = n.queue[len(n.queue)-n.cfg.QueueSize+1:]
	}
	n.queue = append(n.queue, note)
	n.mu.Unlock()

	n.cfg.Metrics.ObserveNotification(string(t))
	return note
}

func (n *Notifier) Success(msg string) { n.Push(Success, msg) }
func (n *Notifier) Error(msg string)   { n.Push(Error, msg) }
func (n *Notifier) Info(msg string)    { n.Push(Info, msg) }
func (n *Notifier) Warning(msg string) { n.Push(Warning, msg) }

// Active returns the toasts that have not yet been dismissed, oldest first.
func (n *Notifier) Active() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prune(n.cfg.Now())
	out := make([]Notification, len(n.queue))
	copy(out, n.queue)
	return out
}

// Drain returns the active toasts and empties the queue.
func (n *Notifier) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prune(n.cfg.Now())
	out := n.queue
	n.queue = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Dismiss removes a toast before it expires. It reports whether id was found.
func (n *Notifier) Dismiss(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, note := range n.queue {
		if note.ID == id {
			n.queue = append(n.queue[:i], n.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (n *Notifier) prune(now time.Time) {
	kept := n.queue[:0]
	for _, note := range n.queue {
		if now.Before(note.ExpiresAt) {
			kept = append(kept, note)
		}
	}
	n.queue = kept
}
