package exec

import (
	"sync"
	"syscall"
)

// StopToken carries one cooperative stop request into Execute. It is
// created before execution begins; the first Trigger wins and later ones
// are ignored.
type StopToken struct {
	once sync.Once
	done chan struct{}
	sig  syscall.Signal
}

// NewStopToken returns an untriggered token.
func NewStopToken() *StopToken {
	return &StopToken{done: make(chan struct{})}
}

// Trigger requests a stop, forwarding sig to the child process group.
func (t *StopToken) Trigger(sig syscall.Signal) {
	t.once.Do(func() {
		t.sig = sig
		close(t.done)
	})
}

// Done is closed once Trigger has been called.
func (t *StopToken) Done() <-chan struct{} {
	return t.done
}

// Signal returns the signal passed to Trigger. Only valid after Done is
// closed.
func (t *StopToken) Signal() syscall.Signal {
	<-t.done
	return t.sig
}

// Triggered reports whether a stop was requested.
func (t *StopToken) Triggered() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
