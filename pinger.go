package ddns

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultPingLine is sent when the ping URL has no line parameter.
const DefaultPingLine = "hello ddns"

// PingTarget is a parsed keepalive destination.
type PingTarget struct {
	Host    string
	Port    int
	Payload []byte // line followed by CRLF
}

func (t PingTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParsePingURL parses a keepalive target of the form udp://host:port?line=payload.
//
// It only validates; no socket is created.
func ParsePingURL(raw string) (PingTarget, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PingTarget{}, fmt.Errorf("invalid ping url: %w", err)
	}
	if u.Scheme != "udp" {
		return PingTarget{}, fmt.Errorf("only support udp ping, got scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return PingTarget{}, fmt.Errorf("expect ping host in %q", raw)
	}
	if u.Port() == "" {
		return PingTarget{}, fmt.Errorf("expect ping port in %q", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port < 1 || port > 65535 {
		return PingTarget{}, fmt.Errorf("invalid ping port %q", u.Port())
	}

	line := DefaultPingLine
	if q := u.Query(); q.Has("line") {
		line = q.Get("line")
	}

	return PingTarget{
		Host:    host,
		Port:    port,
		Payload: []byte(line + "\r\n"),
	}, nil
}

// Pinger periodically sends a fixed datagram so that a listener, e.g. "nc -u -l -p 5000" on a server,
// can see which public address and port the NAT maps this host to.
type Pinger struct {
	conn    *net.UDPConn
	target  *net.UDPAddr
	payload []byte
	logger  logrus.FieldLogger
}

// ListenPinger resolves the target and binds the local socket used for every send.
// A nil logger discards log messages.
func ListenPinger(target PingTarget, logger logrus.FieldLogger) (*Pinger, error) {
	if logger == nil {
		logger = discard
	}
	raddr, err := net.ResolveUDPAddr("udp", target.Addr())
	if err != nil {
		return nil, fmt.Errorf("invalid ping addr %s: %w", target.Addr(), err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("fail to bind udp: %w", err)
	}
	return &Pinger{
		conn:    conn,
		target:  raddr,
		payload: target.Payload,
		logger:  logger,
	}, nil
}

func (p *Pinger) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// Run sends the payload right away and then once per interval until ctx is done.
// Send failures are logged and do not stop the loop. The socket is closed when Run returns.
func (p *Pinger) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	defer p.conn.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, err := p.conn.WriteToUDP(p.payload, p.target)
		observePing(err)
		if err != nil {
			p.logger.WithError(err).Warn("ping fail")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
