package ensemble

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type memberConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (m *memberConn) send(resp reduceResponse) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.conn.WriteMessage(websocket.BinaryMessage, resp.marshal())
}

type pendingRound struct {
	round        uint64
	sum          []float64
	participants map[uuid.UUID]*memberConn
}

// Coordinator is the meeting point of ensemble members reducing over the
// network. Each restraint name has at most one pending round; a round
// completes when the configured number of distinct members contributed and
// is then answered with the element-wise sum. A member disconnecting while a
// round it joined is pending fails that round for every participant.
type Coordinator struct {
	logger   *zap.Logger
	members  int
	upgrader websocket.Upgrader

	mu      sync.Mutex
	pending map[string]*pendingRound
	rounds  map[string]uint64

	completed atomic.Uint64
	aborted   atomic.Uint64
}

func NewCoordinator(logger *zap.Logger, members int) *Coordinator {
	if members <= 0 {
		panic("members must > 0")
	}
	return &Coordinator{
		logger:  logger,
		members: members,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		pending: make(map[string]*pendingRound),
		rounds:  make(map[string]uint64),
	}
}

func (c *Coordinator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("unable to upgrade connection", zap.Error(err))
		return
	}
	member := &memberConn{conn: conn}
	defer func() {
		c.drop(member)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("member connection lost", zap.Error(err))
			}
			return
		}

		var req reduceRequest
		if err := req.unmarshal(data); err != nil {
			c.logger.Warn("unable to decode reduce request", zap.Error(err))
			if err := member.send(reduceResponse{Error: err.Error()}); err != nil {
				return
			}
			continue
		}
		c.join(member, req)
	}
}

func (c *Coordinator) join(member *memberConn, req reduceRequest) {
	c.mu.Lock()

	pr, ok := c.pending[req.Restraint]
	if !ok {
		pr = &pendingRound{
			round:        c.rounds[req.Restraint],
			sum:          make([]float64, len(req.Grid)),
			participants: make(map[uuid.UUID]*memberConn, c.members),
		}
		c.rounds[req.Restraint]++
		c.pending[req.Restraint] = pr
	}

	if len(pr.sum) != len(req.Grid) {
		delete(c.pending, req.Restraint)
		c.mu.Unlock()
		reason := fmt.Sprintf("%v: round has %d bins, member sent %d", ErrSizeMismatch, len(pr.sum), len(req.Grid))
		c.fail(req.Restraint, pr, reason, nil)
		c.reply(member, reduceResponse{Round: pr.round, Error: reason})
		return
	}
	if _, dup := pr.participants[req.Member]; dup {
		c.mu.Unlock()
		c.reply(member, reduceResponse{Round: pr.round, Error: "member already joined round"})
		return
	}

	for i, v := range req.Grid {
		pr.sum[i] += v
	}
	pr.participants[req.Member] = member
	c.logger.Debug("member joined round",
		zap.String("restraint", req.Restraint),
		zap.Uint64("round", pr.round),
		zap.Stringer("member", req.Member),
		zap.Uint64("attempt", req.Attempt))

	if len(pr.participants) < c.members {
		c.mu.Unlock()
		return
	}
	delete(c.pending, req.Restraint)
	c.mu.Unlock()

	c.completed.Add(1)
	c.logger.Debug("round reduced",
		zap.String("restraint", req.Restraint),
		zap.Uint64("round", pr.round),
		zap.Int("members", len(pr.participants)))

	resp := reduceResponse{Round: pr.round, Grid: pr.sum}
	for _, p := range pr.participants {
		c.reply(p, resp)
	}
}

func (c *Coordinator) drop(member *memberConn) {
	type failed struct {
		restraint string
		round     *pendingRound
	}
	var rounds []failed

	c.mu.Lock()
	for restraint, pr := range c.pending {
		for _, p := range pr.participants {
			if p == member {
				delete(c.pending, restraint)
				rounds = append(rounds, failed{restraint, pr})
				break
			}
		}
	}
	c.mu.Unlock()

	for _, f := range rounds {
		c.fail(f.restraint, f.round, "member disconnected", member)
	}
}

func (c *Coordinator) fail(restraint string, pr *pendingRound, reason string, skip *memberConn) {
	c.aborted.Add(1)
	c.logger.Warn("round aborted",
		zap.String("restraint", restraint),
		zap.Uint64("round", pr.round),
		zap.String("reason", reason))

	for _, p := range pr.participants {
		if p == skip {
			continue
		}
		c.reply(p, reduceResponse{Round: pr.round, Error: reason})
	}
}

func (c *Coordinator) reply(member *memberConn, resp reduceResponse) {
	if err := member.send(resp); err != nil {
		c.logger.Warn("unable to send reduce response", zap.Error(err))
	}
}

func (c *Coordinator) Completed() uint64 {
	return c.completed.Load()
}

func (c *Coordinator) Aborted() uint64 {
	return c.aborted.Load()
}

func (c *Coordinator) PrintStatistics() {
	c.logger.Info("coordinator statistics",
		zap.Int("members", c.members),
		zap.Uint64("rounds_completed", c.completed.Load()),
		zap.Uint64("rounds_aborted", c.aborted.Load()))
}
