package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"junction/internal/broker"
	"junction/internal/constants"
	"junction/internal/logger"
	"junction/internal/worker"
	"junction/pkg/models"
)

const TelnetName = constants.TransportTelnet

type TelnetConfig struct {
	TransportName   string        `mapstructure:"transport_name"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ToAddr          string        `mapstructure:"to_addr"`
	RateLimitCount  int           `mapstructure:"rate_limit_count"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

// TelnetTransport is a line-based TCP transport. Each connection is a
// session: connecting opens it, every line is an inbound message from the
// connection's remote address, and disconnecting closes it.
type TelnetTransport struct {
	name     string
	cfg      TelnetConfig
	conn     *broker.Connector
	throttle *Throttle
	log      logger.Logger
	closeLog func() error
	base     logger.Logger
	logs     *logger.WorkerLogs

	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	sub      broker.Subscription
	wg       sync.WaitGroup
	stopping atomic.Bool

	mu      sync.Mutex
	clients map[string]net.Conn
}

func NewTelnetFactory(name string, config map[string]interface{}, deps Deps) (worker.Worker, error) {
	var cfg TelnetConfig
	if err := worker.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	return NewTelnetTransport(name, cfg, deps)
}

func NewTelnetTransport(name string, cfg TelnetConfig, deps Deps) (*TelnetTransport, error) {
	if cfg.TransportName == "" {
		cfg.TransportName = name
	}
	return &TelnetTransport{
		name:     name,
		cfg:      cfg,
		conn:     broker.NewConnector(deps.Broker, cfg.TransportName),
		throttle: NewThrottle(cfg.RateLimitCount, cfg.RateLimitWindow),
		base:     deps.Log,
		logs:     deps.Logs,
		clients:  make(map[string]net.Conn),
	}, nil
}

func (t *TelnetTransport) Start(ctx context.Context) error {
	log, closeLog, err := t.logs.Open(t.base, t.name)
	if err != nil {
		return err
	}
	t.log = log
	t.closeLog = closeLog

	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		closeLog()
		return fmt.Errorf("telnet transport %s: failed to listen on %s: %w", t.name, addr, err)
	}
	t.listener = ln
	t.stopping.Store(false)
	t.ctx, t.cancel = context.WithCancel(ctx)

	sub, err := t.conn.ConsumeOutbound(t.ctx, t.handleOutbound)
	if err != nil {
		t.cancel()
		ln.Close()
		closeLog()
		return err
	}
	t.sub = sub

	t.wg.Add(1)
	go t.acceptLoop()

	t.log.Infow("Telnet transport listening", "address", ln.Addr().String(), "throttled", t.throttle.Enabled())
	t.publishStatus(models.LevelOK, "listening", "Telnet server listening on "+ln.Addr().String())
	return nil
}

// Addr is the address the transport is listening on.
func (t *TelnetTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TelnetTransport) Stop(context.Context) error {
	if t.listener == nil {
		return nil
	}

	// Connections are torn down before the context is cancelled so each
	// one can still publish its close session event.
	t.stopping.Store(true)
	subErr := t.sub.Close()
	t.listener.Close()

	t.mu.Lock()
	for _, c := range t.clients {
		c.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.cancel()
	t.log.Infow("Telnet transport stopped")
	t.listener = nil

	if err := t.closeLog(); err != nil && subErr == nil {
		return err
	}
	return subErr
}

func (t *TelnetTransport) acceptLoop() {
	defer t.wg.Done()
	for {
		c, err := t.listener.Accept()
		if err != nil {
			if !t.stopping.Load() {
				t.log.Errorw("Accept failed", "error", err)
				t.publishStatus(models.LevelDown, "accept_failed", err.Error())
			}
			return
		}
		t.wg.Add(1)
		go t.serve(c)
	}
}

func (t *TelnetTransport) serve(c net.Conn) {
	defer t.wg.Done()
	addr := c.RemoteAddr().String()

	t.mu.Lock()
	t.clients[addr] = c
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.clients, addr)
		t.mu.Unlock()
		c.Close()
		t.publishInbound(addr, nil, models.SessionEventClose)
	}()

	t.publishInbound(addr, nil, models.SessionEventNew)

	scanner := bufio.NewScanner(c)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		t.publishInbound(addr, &line, models.SessionEventResume)
	}
}

func (t *TelnetTransport) publishInbound(from string, content *string, sessionEvent string) {
	msg := models.NewMessage(t.cfg.TransportName, t.cfg.ToAddr, from, content)
	msg.TransportType = TelnetName
	msg.SessionEvent = sessionEvent

	if err := t.conn.PublishInbound(t.ctx, msg); err != nil {
		t.log.Errorw("Failed to publish inbound message", "from", from, "error", err)
		return
	}
	t.log.Infow("Inbound message", "message_id", msg.MessageID, "from", from, "session_event", sessionEvent)
}

func (t *TelnetTransport) handleOutbound(ctx context.Context, msg models.Message) error {
	if err := t.throttle.Wait(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	c, ok := t.clients[msg.ToAddr]
	t.mu.Unlock()

	if !ok {
		t.log.Warnw("Outbound message for unknown client", "message_id", msg.MessageID, "to", msg.ToAddr)
		return t.conn.PublishEvent(ctx, models.NewNack(t.cfg.TransportName, msg.MessageID, "Client not connected"))
	}

	if _, err := fmt.Fprintf(c, "%s\n", msg.ContentString()); err != nil {
		t.log.Errorw("Failed to write to client", "message_id", msg.MessageID, "to", msg.ToAddr, "error", err)
		return t.conn.PublishEvent(ctx, models.NewNack(t.cfg.TransportName, msg.MessageID, err.Error()))
	}
	if msg.SessionEvent == models.SessionEventClose {
		c.Close()
	}

	t.log.Infow("Outbound message", "message_id", msg.MessageID, "to", msg.ToAddr)
	return t.conn.PublishEvent(ctx, models.NewAck(t.cfg.TransportName, msg.MessageID, msg.MessageID))
}

func (t *TelnetTransport) publishStatus(level models.Level, statusType, message string) {
	st := models.Status{
		Component: "telnet",
		Level:     level,
		Type:      statusType,
		Message:   message,
		ChannelID: t.cfg.TransportName,
		Timestamp: time.Now().UTC(),
	}
	if err := t.conn.PublishStatus(t.ctx, st); err != nil {
		t.log.Errorw("Failed to publish status", "error", err)
	}
}
