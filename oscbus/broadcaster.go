package oscbus

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"

	"github.com/vsariola/tunesync/link"
)

// Broadcaster is the master side of the OSC channel. It keeps the list of
// subscribers and sends every broadcast message to each of them.
type Broadcaster struct {
	conn *osc.UDPConn
	ctx  context.Context
	log  *slog.Logger

	mu          sync.Mutex
	subscribers map[string]*net.UDPAddr
	latest      link.Message
}

var _ link.Sender = (*Broadcaster)(nil)

// Listen opens the master socket on addr, e.g. "0.0.0.0:5790". Serve must be
// called to accept subscriptions. The socket is closed when ctx is done.
func Listen(ctx context.Context, addr string, logger *slog.Logger) (*Broadcaster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolving listen address")
	}
	conn, err := osc.ListenUDPContext(ctx, "udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "creating OSC server")
	}
	return &Broadcaster{
		conn:        conn,
		ctx:         ctx,
		log:         logger,
		subscribers: map[string]*net.UDPAddr{},
	}, nil
}

// Addr returns the address the master listens on.
func (b *Broadcaster) Addr() net.Addr { return b.conn.LocalAddr() }

// Serve handles subscriptions until the context of Listen is done.
func (b *Broadcaster) Serve() error {
	go func() {
		<-b.ctx.Done()
		b.conn.Close()
	}()
	err := b.conn.Serve(1, osc.PatternMatching{
		AddressSubscribe:   logErrors(b.log, b.handleSubscribe),
		AddressUnsubscribe: logErrors(b.log, b.handleUnsubscribe),
	})
	if b.ctx.Err() != nil {
		return nil
	}
	return errors.Wrap(err, "serving OSC")
}

// Subscribers returns the number of subscribed addresses.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Broadcast sends the message to every subscriber. Sending continues past
// failing subscribers; the first error is returned.
func (b *Broadcaster) Broadcast(m link.Message) error {
	msg, err := encode(m)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case m.Kind == link.Tuning:
		b.latest = m
	case m.Kind == link.Goodbye && m.Master == b.latest.Master:
		b.latest = link.Message{}
	}
	var first error
	for key, addr := range b.subscribers {
		if err := b.conn.SendTo(addr, msg); err != nil {
			b.log.Debug("could not send to subscriber", "addr", key, "err", err)
			if first == nil {
				first = errors.Wrapf(err, "sending %s to %s", msg.Address, key)
			}
		}
	}
	return first
}

func (b *Broadcaster) handleSubscribe(m osc.Message) error {
	addr, key, err := subscriberAddr(m, 3)
	if err != nil {
		return err
	}
	client, err := m.Arguments[2].ReadString()
	if err != nil {
		return errors.Wrap(err, "reading client name")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[key]; !ok {
		b.log.Info("subscriber added", "addr", key, "client", client)
	}
	b.subscribers[key] = addr
	if b.latest.Kind != link.Tuning {
		return nil
	}
	msg, err := encode(b.latest)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.conn.SendTo(addr, msg), "resending tuning to %s", key)
}

func (b *Broadcaster) handleUnsubscribe(m osc.Message) error {
	_, key, err := subscriberAddr(m, 2)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[key]; ok {
		delete(b.subscribers, key)
		b.log.Info("subscriber removed", "addr", key)
	}
	return nil
}

func subscriberAddr(m osc.Message, expected int) (*net.UDPAddr, string, error) {
	if got := len(m.Arguments); got != expected {
		return nil, "", errors.Errorf("%s: expected %d argument(s), got %d", m.Address, expected, got)
	}
	host, err := m.Arguments[0].ReadString()
	if err != nil {
		return nil, "", errors.Wrap(err, "reading host")
	}
	port, err := m.Arguments[1].ReadInt32()
	if err != nil {
		return nil, "", errors.Wrap(err, "reading port")
	}
	key := net.JoinHostPort(host, strconv.Itoa(int(port)))
	addr, err := net.ResolveUDPAddr("udp", key)
	if err != nil {
		return nil, "", errors.Wrapf(err, "resolving subscriber address %s", key)
	}
	return addr, key, nil
}

// logErrors keeps a malformed message from stopping the server.
func logErrors(logger *slog.Logger, h func(osc.Message) error) osc.Method {
	return func(m osc.Message) error {
		if err := h(m); err != nil {
			logger.Warn("could not handle OSC message", "address", m.Address, "err", err)
		}
		return nil
	}
}
