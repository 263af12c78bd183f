package oscbus

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"golang.org/x/sync/errgroup"

	"github.com/vsariola/tunesync/link"
)

type (
	SubscriberConfig struct {
		// Master is the address of the master, e.g. "127.0.0.1:5790".
		Master string
		// Host is the address the master should send to. Empty means
		// 127.0.0.1.
		Host string
		// Client identifies this subscriber in the logs of the master.
		Client string
		// Resubscribe is how often the subscriber checks whether it needs to
		// subscribe again. Zero means one second.
		Resubscribe time.Duration
		Logger      *slog.Logger
	}

	// Subscriber is the client side of the OSC channel. Each Subscribe opens
	// its own socket.
	Subscriber struct {
		cfg SubscriberConfig
	}

	subscription struct {
		conn    *osc.UDPConn
		master  *net.UDPAddr
		cfg     SubscriberConfig
		handler func(link.Message)
		port    int

		lastHeard atomic.Int64 // unix nanoseconds
		lastSeq   atomic.Uint64
		missed    atomic.Bool // a heartbeat announced a newer tuning
	}
)

var _ link.Channel = (*Subscriber)(nil)

func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Master == "" {
		cfg.Master = net.JoinHostPort("127.0.0.1", strconv.Itoa(MasterPort))
	}
	if cfg.Resubscribe <= 0 {
		cfg.Resubscribe = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Subscriber{cfg: cfg}
}

// Subscribe opens a socket, announces it to the master and delivers the
// master messages to handler until cancel is called. A master that is not
// running yet is not an error: the subscription is repeated until it
// answers.
func (s *Subscriber) Subscribe(handler func(link.Message)) (cancel func(), err error) {
	local, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.cfg.Host, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "creating listening address")
	}
	remote, err := net.ResolveUDPAddr("udp", s.cfg.Master)
	if err != nil {
		return nil, errors.Wrap(err, "resolving master address")
	}
	ctx, stop := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	// unconnected, so that a master that is not up yet does not make the
	// reads fail with ICMP errors
	conn, err := osc.ListenUDPContext(gctx, "udp", local)
	if err != nil {
		stop()
		return nil, errors.Wrap(err, "creating OSC listener")
	}
	sub := &subscription{conn: conn, cfg: s.cfg, handler: handler, master: remote}
	sub.port = conn.LocalAddr().(*net.UDPAddr).Port
	g.Go(func() error {
		return sub.serve(gctx)
	})
	g.Go(func() error {
		return sub.loop(gctx)
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.send(AddressUnsubscribe); err != nil {
				s.cfg.Logger.Debug("could not unsubscribe", "err", err)
			}
			stop()
			if err := g.Wait(); err != nil {
				s.cfg.Logger.Warn("OSC subscription failed", "err", err)
			}
		})
	}, nil
}

func (sub *subscription) serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		sub.conn.Close()
	}()
	err := sub.conn.Serve(1, osc.PatternMatching{
		AddressTuning:    logErrors(sub.cfg.Logger, sub.receiver(link.Tuning)),
		AddressHeartbeat: logErrors(sub.cfg.Logger, sub.receiver(link.Heartbeat)),
		AddressGoodbye:   logErrors(sub.cfg.Logger, sub.receiver(link.Goodbye)),
	})
	if ctx.Err() != nil {
		return nil
	}
	return errors.Wrap(err, "receiving master messages")
}

func (sub *subscription) receiver(kind link.MessageKind) func(osc.Message) error {
	return func(m osc.Message) error {
		msg, err := decode(kind, m)
		if err != nil {
			return err
		}
		sub.lastHeard.Store(time.Now().UnixNano())
		switch kind {
		case link.Tuning:
			sub.lastSeq.Store(msg.Seq)
			sub.missed.Store(false)
		case link.Heartbeat:
			if msg.Seq > sub.lastSeq.Load() {
				sub.missed.Store(true)
			}
		}
		sub.handler(msg)
		return nil
	}
}

// loop subscribes right away, and again whenever a heartbeat reveals a
// missed tuning or the master has been silent for two periods.
func (sub *subscription) loop(ctx context.Context) error {
	period := sub.cfg.Resubscribe
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		silent := time.Now().UnixNano()-sub.lastHeard.Load() > int64(2*period)
		if silent || sub.missed.Load() {
			if err := sub.send(AddressSubscribe); err != nil {
				sub.cfg.Logger.Debug("could not subscribe", "master", sub.cfg.Master, "err", err)
			}
			sub.missed.Store(false)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (sub *subscription) send(address string) error {
	args := osc.Arguments{
		osc.String(sub.cfg.Host),
		osc.Int(int32(sub.port)),
	}
	if address == AddressSubscribe {
		args = append(args, osc.String(sub.cfg.Client))
	}
	return errors.Wrapf(sub.conn.SendTo(sub.master, osc.Message{Address: address, Arguments: args}), "sending %s", address)
}
