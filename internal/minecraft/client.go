// Package minecraft implements the client side of the Server List Ping, the
// status exchange the vanilla client uses to fill its multiplayer screen.
package minecraft

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/keyboard-slayer/mcstatus/internal/address"
	"github.com/keyboard-slayer/mcstatus/internal/mcerrors"
)

const DefaultTimeout = 2 * time.Second

type client struct {
	logger   *slog.Logger
	endpoint address.Endpoint
	timeout  time.Duration
	ping     bool
	progress func(Step)
	state    State
	dialer   net.Dialer
	socket   net.Conn
	reader   *bufio.Reader
}

// Option configures a single query.
type Option func(*client)

// WithTimeout bounds the whole query, from dialing to the last byte read.
func WithTimeout(timeout time.Duration) Option {
	return func(c *client) {
		c.timeout = timeout
	}
}

// WithPing measures latency with a ping/pong exchange after the status.
func WithPing() Option {
	return func(c *client) {
		c.ping = true
	}
}

// WithProgress calls report as the query moves from one step to the next.
// report runs on the querying goroutine and must not block.
func WithProgress(report func(Step)) Option {
	return func(c *client) {
		c.progress = report
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *client) {
		c.logger = logger
	}
}

// Query performs one status query against endpoint. It makes a single
// attempt and closes its connection before returning.
func Query(ctx context.Context, endpoint address.Endpoint, opts ...Option) (*Status, error) {
	c := &client{
		logger:   slog.Default(),
		endpoint: endpoint,
		timeout:  DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("server", endpoint.String())

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	status, err := c.query(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}

	return status, nil
}

func (self *client) query(ctx context.Context) (*Status, error) {
	self.report(StepConnecting)
	if err := self.connect(ctx); err != nil {
		return nil, err
	}
	defer self.close()

	// Dialing honours ctx by itself, everything after relies on the deadline.
	stop := context.AfterFunc(ctx, func() {
		self.socket.SetDeadline(time.Now())
	})
	defer stop()

	hs := handshake{
		protocol: statusProtocolVersion,
		host:     self.endpoint.Host(),
		port:     self.endpoint.Port(),
		next:     StateStatus,
	}
	self.logger.Debug("sending handshake", "protocol", hs.protocol, "host", hs.host, "port", hs.port, "next", hs.next)

	packet, err := hs.bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mcerrors.ErrProtocol, err)
	}
	if err := self.send(packet); err != nil {
		return nil, err
	}
	self.switchState(hs.next)

	self.report(StepFetching)
	packet, err = statusRequest()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mcerrors.ErrProtocol, err)
	}
	self.logger.Debug("sending status request")
	if err := self.send(packet); err != nil {
		return nil, err
	}

	id, data, err := readPacket(self.reader)
	if err != nil {
		return nil, fmt.Errorf("reading status response: %w", err)
	}
	self.logger.Debug("received packet", "id", id, "length", len(data))

	document, err := parseStatusResponse(id, data)
	if err != nil {
		return nil, err
	}

	status, err := decodeStatus(document)
	if err != nil {
		return nil, err
	}

	if self.ping {
		self.report(StepPinging)
		latency, err := self.measureLatency()
		if err != nil {
			return nil, err
		}
		status.Latency = latency
	}

	return status, nil
}

func (self *client) measureLatency() (time.Duration, error) {
	start := time.Now()
	payload := start.UnixMilli()

	packet, err := pingRequest(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", mcerrors.ErrProtocol, err)
	}

	self.logger.Debug("sending ping", "payload", payload)
	if err := self.send(packet); err != nil {
		return 0, err
	}

	id, data, err := readPacket(self.reader)
	if err != nil {
		return 0, fmt.Errorf("reading pong: %w", err)
	}

	echoed, err := parsePong(id, data)
	if err != nil {
		return 0, err
	}

	latency := time.Since(start)

	if echoed != payload {
		return 0, fmt.Errorf("%w: pong carries %d, sent %d", mcerrors.ErrProtocol, echoed, payload)
	}

	self.logger.Debug("received pong", "latency", latency)
	return latency, nil
}

func (self *client) report(step Step) {
	if self.progress != nil {
		self.progress(step)
	}
}

func (self *client) switchState(next State) {
	self.logger.Debug("switching state", "from", self.state, "to", next)
	self.state = next
}

func (self *client) connect(ctx context.Context) error {
	self.logger.Debug("connecting", "target", self.endpoint.Target())

	socket, err := self.dialer.DialContext(ctx, "tcp", self.endpoint.Target())
	if err != nil {
		return fmt.Errorf("dial %s: %w", self.endpoint.Target(), err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := socket.SetDeadline(deadline); err != nil {
			socket.Close()
			return err
		}
	}

	self.socket = socket
	self.reader = bufio.NewReader(socket)
	return nil
}

func (self *client) send(packet []byte) error {
	if _, err := self.socket.Write(packet); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (self *client) close() {
	if err := self.socket.Close(); err != nil {
		self.logger.Debug("closing connection", "error", err)
	}
}

// classify makes sure err carries one of the error kinds. Cancellation by the
// caller is left as context.Canceled.
func classify(ctx context.Context, err error) error {
	if mcerrors.Kind(err) != nil {
		return err
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("query abandoned: %w", context.Canceled)
	}

	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", mcerrors.ErrTimeout, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", mcerrors.ErrProtocol, err)
	}

	return fmt.Errorf("%w: %w", mcerrors.ErrConnection, err)
}
