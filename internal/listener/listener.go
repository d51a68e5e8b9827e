package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"git.cs.nctu.edu.tw/calee/sctp"
	"go.uber.org/zap"

	mmeio "mme/internal/io"
	"mme/internal/metrics"
	"mme/pkg/state"
)

// Handler processes the PDUs of an association. HandleS1AP returns the reply
// to send back, nil when there is none.
type Handler interface {
	HandleS1AP(ctx context.Context, assoc *state.Association, raw []byte) ([]byte, error)
	AssociationClosed(assoc *state.Association)
}

type SCTPConfig struct {
	Addrs   []string
	Port    int
	BufSize int
	SndBuf  int
	RcvBuf  int
}

// Listener accepts eNodeB associations and serves each on its own goroutine.
type Listener struct {
	ln      net.Listener
	network string
	wrap    func(net.Conn) (mmeio.MessageConn, error)
	handler Handler
	metrics metrics.InstrumentS1AP
	log     *zap.SugaredLogger

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[mmeio.MessageConn]struct{}
	closed bool
}

func New(ln net.Listener, network string, wrap func(net.Conn) (mmeio.MessageConn, error),
	h Handler, m metrics.InstrumentS1AP, logger *zap.Logger,
) *Listener {
	return &Listener{
		ln:      ln,
		network: network,
		wrap:    wrap,
		handler: h,
		metrics: m,
		log:     logger.Sugar(),
		conns:   make(map[mmeio.MessageConn]struct{}),
	}
}

// ListenSCTP binds the S1-MME endpoint.
func ListenSCTP(cfg SCTPConfig, h Handler, m metrics.InstrumentS1AP, logger *zap.Logger) (*Listener, error) {
	log := logger.Sugar()
	ips := []net.IPAddr{}
	for _, i := range cfg.Addrs {
		a, err := net.ResolveIPAddr("ip", strings.TrimSpace(i))
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", i, err)
		}
		log.Debugf("Resolved address '%s' to %s", i, a)
		ips = append(ips, *a)
	}
	addr := &sctp.SCTPAddr{
		IPAddrs: ips,
		Port:    cfg.Port,
	}

	ln, err := sctp.ListenSCTP("sctp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	wrap := func(c net.Conn) (mmeio.MessageConn, error) {
		conn, ok := c.(*sctp.SCTPConn)
		if !ok {
			return nil, fmt.Errorf("unexpected connection type %T", c)
		}
		if cfg.SndBuf != 0 {
			if err := conn.SetWriteBuffer(cfg.SndBuf); err != nil {
				return nil, fmt.Errorf("failed to set write buf: %w", err)
			}
		}
		if cfg.RcvBuf != 0 {
			if err := conn.SetReadBuffer(cfg.RcvBuf); err != nil {
				return nil, fmt.Errorf("failed to set read buf: %w", err)
			}
		}
		sndbuf, err := conn.GetWriteBuffer()
		if err != nil {
			return nil, fmt.Errorf("failed to get write buf: %w", err)
		}
		rcvbuf, err := conn.GetReadBuffer()
		if err != nil {
			return nil, fmt.Errorf("failed to get read buf: %w", err)
		}
		log.Debugf("SndBufSize: %d, RcvBufSize: %d", sndbuf, rcvbuf)
		return mmeio.NewSCTPConn(conn, cfg.BufSize)
	}
	return New(ln, "sctp", wrap, h, m, logger), nil
}

// ListenTCP serves S1AP with a 2 byte length prefix over TCP, for hosts
// without kernel SCTP.
func ListenTCP(addr string, h Handler, m metrics.InstrumentS1AP, logger *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	wrap := func(c net.Conn) (mmeio.MessageConn, error) {
		return mmeio.NewFramedConn(c), nil
	}
	return New(ln, "tcp", wrap, h, m, logger), nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts associations until the listener is closed or ctx is done.
func (l *Listener) Serve(ctx context.Context) error {
	l.log.Infof("Listen on %s/%s", l.network, l.ln.Addr())
	stop := context.AfterFunc(ctx, func() {
		l.Close()
	})
	defer stop()

	for {
		c, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		l.log.Infof("Accepted Connection from RemoteAddr: %s", c.RemoteAddr())

		conn, err := l.wrap(c)
		if err != nil {
			l.log.Errorf("association from %s: %v", c.RemoteAddr(), err)
			c.Close()
			continue
		}
		if !l.track(conn) {
			conn.Close()
			return nil
		}
		go func() {
			defer l.wg.Done()
			defer l.untrack(conn)
			l.serveAssociation(ctx, conn)
		}()
	}
}

func (l *Listener) serveAssociation(ctx context.Context, conn mmeio.MessageConn) {
	assoc, err := state.NewAssociation(l.network, conn.RemoteAddr())
	if err != nil {
		l.log.Errorf("association from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	log := l.log.With("assoc", assoc.ID.String(), "remote", fmt.Sprint(conn.RemoteAddr()))
	am := metrics.NewAssociation()
	l.metrics.SaveAssociations(am)
	defer func() {
		conn.Close()
		l.handler.AssociationClosed(assoc)
		am.Close()
		l.metrics.SaveAssociations(am)
		log.Info("association closed")
	}()

	for {
		msg, stream, err := conn.ReadMsg()
		if err != nil {
			if !errors.Is(err, mmeio.EOF) && !l.isClosed() {
				log.Warnf("read failed: %v", err)
			}
			return
		}
		assoc.Stream = stream

		reply, err := l.handler.HandleS1AP(ctx, assoc, msg)
		if err != nil || reply == nil {
			// the handler reports its own failures, the association stays up
			continue
		}
		if err := conn.WriteMsg(reply, stream); err != nil {
			log.Errorf("write failed: %v", err)
			return
		}
	}
}

// track registers c and its goroutine. Close waits only for goroutines
// registered before it marked the listener closed.
func (l *Listener) track(c mmeio.MessageConn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[c] = struct{}{}
	l.wg.Add(1)
	return true
}

func (l *Listener) untrack(c mmeio.MessageConn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, c)
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops accepting, closes every open association and waits for their
// goroutines to finish.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	err := l.ln.Close()
	for c := range l.conns {
		c.Close()
	}
	l.mu.Unlock()

	l.wg.Wait()
	return err
}
