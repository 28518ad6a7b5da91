package udpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"sync"
	"syscall"
	"time"

	"github.com/tinytelemetry/logserver/internal/inetaddr"
	"github.com/tinytelemetry/logserver/internal/model"
)

const (
	// DefaultBufferSize is the largest datagram accepted; longer payloads are truncated.
	DefaultBufferSize = model.DefaultBufferSize

	// DefaultReceiveTimeout bounds each blocking receive so shutdown is observed.
	DefaultReceiveTimeout = model.DefaultReceiveTimeout

	// pollInterval bounds each receive in non-blocking mode.
	pollInterval = 10 * time.Millisecond
)

var (
	ErrInvalidPort    = errors.New("udpserver: invalid port")
	ErrInvalidAddress = errors.New("udpserver: invalid bind address")
	ErrPortInUse      = errors.New("udpserver: port not available")
	ErrAlreadyBound   = errors.New("udpserver: socket already bound")
	ErrNotBound       = errors.New("udpserver: socket not bound")
)

// Handler processes one datagram. Returned payloads are sent back to the
// sender. A non-nil error stops Serve and is returned from it.
type Handler func(ctx context.Context, d model.Datagram) ([][]byte, error)

// Observer receives socket level events. *metrics.Metrics satisfies it.
type Observer interface {
	DatagramReceived(n int)
	SocketError()
	ReplySent(err error)
}

// ServerConfig holds tunable parameters for the UDP listener.
type ServerConfig struct {
	BufferSize     int
	ReceiveTimeout time.Duration
	// NonBlocking polls the socket in short intervals instead of waiting
	// up to ReceiveTimeout for each datagram.
	NonBlocking bool
	// ReadBuffer sets SO_RCVBUF when positive.
	ReadBuffer int
	Observer   Observer
}

// Server owns a single UDP socket.
type Server struct {
	mu             sync.Mutex
	conn           *net.UDPConn
	bufferSize     int
	receiveTimeout time.Duration
	nonBlocking    bool
	readBuffer     int
	observer       Observer
	closed         bool
}

// NewServer creates an unbound listener.
func NewServer(conf ...ServerConfig) *Server {
	s := &Server{
		bufferSize:     DefaultBufferSize,
		receiveTimeout: DefaultReceiveTimeout,
	}
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			s.bufferSize = conf[0].BufferSize
		}
		if conf[0].ReceiveTimeout > 0 {
			s.receiveTimeout = conf[0].ReceiveTimeout
		}
		s.nonBlocking = conf[0].NonBlocking
		s.readBuffer = conf[0].ReadBuffer
		s.observer = conf[0].Observer
	}
	return s
}

// Configure changes the receive parameters. It takes effect on the next
// receive. A non-positive timeout disables the receive deadline.
func (s *Server) Configure(bufferSize int, receiveTimeout time.Duration, blocking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bufferSize > 0 {
		s.bufferSize = bufferSize
	}
	s.receiveTimeout = receiveTimeout
	s.nonBlocking = !blocking
}

// Bind opens the socket on addr:port. The port is probed first so a port
// held by another process is reported as ErrPortInUse.
func (s *Server) Bind(addr inetaddr.Address, port int) error {
	if !inetaddr.IsValidPort(port) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if !addr.IsValid() {
		return ErrInvalidAddress
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyBound
	}
	if !inetaddr.IsPortAvailable(port, addr, inetaddr.TransportUDP) {
		return fmt.Errorf("%w: %s port %d", ErrPortInUse, addr.Literal(), port)
	}

	laddr := net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr.Addr(), uint16(port)))
	conn, err := net.ListenUDP(addr.Family().Network(inetaddr.TransportUDP), laddr)
	if err != nil {
		return fmt.Errorf("udpserver: bind %s port %d: %w", addr.Literal(), port, err)
	}
	if s.readBuffer > 0 {
		if err := conn.SetReadBuffer(s.readBuffer); err != nil {
			log.Printf("udpserver: set read buffer to %d: %v", s.readBuffer, err)
		}
	}
	s.conn = conn
	s.closed = false
	return nil
}

// Serve receives datagrams until ctx is cancelled, the socket is closed or
// handle returns an error. Timeouts and transient receive errors are not
// fatal.
func (s *Server) Serve(ctx context.Context, handle Handler) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotBound
	}

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.mu.Lock()
		size, timeout, nonBlocking := s.bufferSize, s.receiveTimeout, s.nonBlocking
		s.mu.Unlock()
		if len(buf) != size {
			buf = make([]byte, size)
		}

		var deadline time.Time
		switch {
		case nonBlocking:
			// A deadline already in the past fails before the socket is read.
			deadline = time.Now().Add(pollInterval)
		case timeout > 0:
			deadline = time.Now().Add(timeout)
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udpserver: set read deadline: %w", err)
		}

		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			log.Printf("udpserver: receive: %v", err)
			if s.observer != nil {
				s.observer.SocketError()
			}
			continue
		}
		if s.observer != nil {
			s.observer.DatagramReceived(n)
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		replies, err := handle(ctx, model.Datagram{
			Payload:  payload,
			Addr:     from,
			Received: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("udpserver: handler: %w", err)
		}
		for _, reply := range replies {
			_, _ = s.SendTo(reply, from)
		}
	}
}

// SendTo sends one datagram to dst. Failures are logged and returned.
func (s *Server) SendTo(b []byte, dst netip.AddrPort) (int, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, ErrNotBound
	}
	n, err := conn.WriteToUDPAddrPort(b, dst)
	if err != nil {
		log.Printf("udpserver: send %d bytes to %s: %v", len(b), dst, err)
	}
	if s.observer != nil {
		s.observer.ReplySent(err)
	}
	return n, err
}

// Close releases the socket and unblocks a pending receive. It is safe to
// call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.conn == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	err := s.conn.Close()
	s.conn = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("udpserver: close: %w", err)
	}
	return nil
}

// LocalAddr returns the bound address, or the zero value before Bind.
func (s *Server) LocalAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return netip.AddrPort{}
	}
	if ua, ok := s.conn.LocalAddr().(*net.UDPAddr); ok {
		return ua.AddrPort()
	}
	return netip.AddrPort{}
}
