package daemon

import (
	"context"
	"net"
	"sync"
)

const inMemoryAddr = "entityqueue-in-memory"

// InMemoryListener is a net.Listener whose connections are created by DialContext instead of a
// network socket. Tests use it to run the daemon without binding a port.
type InMemoryListener struct {
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func NewInMemoryListener() *InMemoryListener {
	return &InMemoryListener{
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

// DialContext connects a new client to the listener. It matches the signature of
// http.Transport.DialContext; the network and address are ignored.
func (l *InMemoryListener) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	server, client := net.Pipe()
	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
	case <-ctx.Done():
		_ = server.Close()
		_ = client.Close()
		return nil, ctx.Err()
	}
	_ = server.Close()
	_ = client.Close()
	return nil, net.ErrClosed
}

func (l *InMemoryListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *InMemoryListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *InMemoryListener) Addr() net.Addr {
	return inMemoryAddress{}
}

type inMemoryAddress struct{}

func (inMemoryAddress) Network() string { return "memory" }
func (inMemoryAddress) String() string  { return inMemoryAddr }
