//go:build !linux

package ws

import (
	"bufio"
	"io"
	"net"
	"sync"
)

// Epoll provides a goroutine-per-connection fallback for non-Linux platforms.
// Each connection is read through a buffered reader: the monitor goroutine
// peeks one byte to detect readiness without consuming it, then waits until
// the server has read a frame before peeking again.
type Epoll struct {
	mu        sync.RWMutex
	conns     map[net.Conn]*watched
	readyCh   chan net.Conn // connections with pending data
	done      chan struct{}
	closeOnce sync.Once
}

type watched struct {
	br    *bufio.Reader
	rearm chan struct{}
	stop  chan struct{}
}

// NewEpoll creates a new fallback epoll instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]*watched),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers a connection and starts its monitor goroutine.
func (e *Epoll) Add(conn net.Conn) error {
	w := &watched{
		br:    bufio.NewReader(conn),
		rearm: make(chan struct{}, 1),
		stop:  make(chan struct{}),
	}
	e.mu.Lock()
	e.conns[conn] = w
	e.mu.Unlock()

	go e.monitor(conn, w)
	return nil
}

// monitor signals readiness whenever data is buffered or the connection
// fails. A failed connection is signalled once so the server's read path can
// detect the closure.
func (e *Epoll) monitor(conn net.Conn, w *watched) {
	for {
		_, err := w.br.Peek(1)

		select {
		case e.readyCh <- conn:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
		if err != nil {
			return
		}

		select {
		case <-w.rearm:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
	}
}

// Remove unregisters a connection and stops its monitor.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	w, ok := e.conns[conn]
	delete(e.conns, conn)
	e.mu.Unlock()
	if ok {
		close(w.stop)
	}
	return nil
}

// Reader returns the buffered reader frames of conn must be read from.
func (e *Epoll) Reader(conn net.Conn) io.Reader {
	e.mu.RLock()
	w, ok := e.conns[conn]
	e.mu.RUnlock()
	if !ok {
		return conn
	}
	return w.br
}

// Rearm lets the monitor of conn look for the next frame.
func (e *Epoll) Rearm(conn net.Conn) {
	e.mu.RLock()
	w, ok := e.conns[conn]
	e.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case w.rearm <- struct{}{}:
	default:
	}
}

// Wait blocks until at least one connection is ready for reading. It
// collects all currently ready connections from the channel and returns them.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close shuts down the fallback epoll instance.
func (e *Epoll) Close() error {
	e.closeOnce.Do(func() { close(e.done) })
	e.mu.Lock()
	e.conns = make(map[net.Conn]*watched)
	e.mu.Unlock()
	return nil
}

func isEINTR(error) bool { return false }
