package lifecycle

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestCloseOrderAndErrors(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var order []string
	errSessions := errors.New("sessions failed")
	errBreakers := errors.New("breakers failed")

	m.RegisterFunc("storage", func() error { order = append(order, "storage"); return nil })
	m.RegisterFunc("sessions", func() error { order = append(order, "sessions"); return errSessions })
	m.RegisterFunc("breakers", func() error { order = append(order, "breakers"); return errBreakers })

	err := m.Close()
	if !errors.Is(err, errSessions) || !errors.Is(err, errBreakers) {
		t.Errorf("Close() = %v, want both close errors", err)
	}
	want := []string{"breakers", "sessions", "storage"}
	if len(order) != len(want) {
		t.Fatalf("closed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close[%d] = %s, want %s", i, order[i], want[i])
		}
	}

	if err := m.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if len(order) != 3 {
		t.Errorf("resources closed twice: %v", order)
	}
}

func TestRegisterAfterClose(t *testing.T) {
	m := NewManager(zerolog.Nop())
	_ = m.Close()

	closed := false
	m.RegisterFunc("late", func() error { closed = true; return nil })
	if !closed {
		t.Error("resource registered after Close was not closed")
	}
}
