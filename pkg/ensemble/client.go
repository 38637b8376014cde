package ensemble

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client reaches the ensemble through a Coordinator. Every Handle dials a
// new connection, so a member that dropped out in an earlier rotation does
// not keep this one from reducing later.
type Client struct {
	logger    *zap.Logger
	url       string
	member    uuid.UUID
	restraint string
	dialer    *websocket.Dialer

	attempts atomic.Uint64
}

func NewClient(logger *zap.Logger, url string, member uuid.UUID, restraint string) *Client {
	return &Client{
		logger:    logger,
		url:       url,
		member:    member,
		restraint: restraint,
		dialer:    websocket.DefaultDialer,
	}
}

func (c *Client) Member() uuid.UUID {
	return c.member
}

func (c *Client) Handle(ctx context.Context) (Reducer, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnavailable, c.url, err)
	}
	return &clientHandle{
		client:  c,
		conn:    conn,
		attempt: c.attempts.Add(1) - 1,
	}, nil
}

// clientHandle serves exactly one reduction and closes its connection.
type clientHandle struct {
	client  *Client
	conn    *websocket.Conn
	attempt uint64
}

func (h *clientHandle) Reduce(ctx context.Context, send, receive []float64) error {
	defer func() {
		_ = h.conn.Close()
	}()

	if err := checkSize(send, receive); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = h.conn.Close()
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = h.conn.SetWriteDeadline(deadline)
		_ = h.conn.SetReadDeadline(deadline)
	}

	req := reduceRequest{
		Member:    h.client.member,
		Restraint: h.client.restraint,
		Attempt:   h.attempt,
		Grid:      send,
	}
	if err := h.conn.WriteMessage(websocket.BinaryMessage, req.marshal()); err != nil {
		return h.wrap(ctx, fmt.Errorf("send reduce request: %w", err))
	}

	_, data, err := h.conn.ReadMessage()
	if err != nil {
		return h.wrap(ctx, fmt.Errorf("receive reduce response: %w", err))
	}

	var resp reduceResponse
	if err := resp.unmarshal(data); err != nil {
		return fmt.Errorf("decode reduce response: %w", err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: round %d: %s", ErrAborted, resp.Round, resp.Error)
	}
	if len(resp.Grid) != len(receive) {
		return fmt.Errorf("%w: expected %d bins, coordinator sent %d", ErrSizeMismatch, len(receive), len(resp.Grid))
	}

	copy(receive, resp.Grid)
	h.client.logger.Debug("reduced through coordinator",
		zap.String("restraint", h.client.restraint),
		zap.Uint64("round", resp.Round),
		zap.Uint64("attempt", h.attempt))
	return nil
}

// wrap classifies a transport error. The socket deadline mirrors the
// context deadline and may fire before ctx reports it.
func (h *clientHandle) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrAborted, ctxErr)
	}
	var netErr net.Error
	if deadline, ok := ctx.Deadline(); ok && errors.As(err, &netErr) && netErr.Timeout() && !time.Now().Before(deadline) {
		return fmt.Errorf("%w: %w: %w", ErrAborted, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
