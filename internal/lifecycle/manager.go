// Package lifecycle closes long-lived resources on shutdown.
package lifecycle

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Manager closes registered resources in reverse registration order,
// attempting every close even when one fails.
type Manager struct {
	log zerolog.Logger

	mu        sync.Mutex
	resources []resource
	closed    bool
}

type resource struct {
	name   string
	closer io.Closer
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// Register adds a resource. Resources registered after Close are closed
// immediately.
func (m *Manager) Register(name string, closer io.Closer) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.closeOne(resource{name: name, closer: closer})
		return
	}
	m.resources = append(m.resources, resource{name: name, closer: closer})
	m.mu.Unlock()
}

// RegisterFunc registers a plain cleanup function.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close joins every close error. Later calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	resources := m.resources
	m.resources = nil
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for i := len(resources) - 1; i >= 0; i-- {
		if err := m.closeOne(resources[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) closeOne(res resource) error {
	err := res.closer.Close()
	if err != nil {
		m.log.Error().Err(err).Str("resource", res.name).Msg("lifecycle.close_failed")
		return err
	}
	m.log.Debug().Str("resource", res.name).Msg("lifecycle.closed")
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
