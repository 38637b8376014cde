package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/ensemble/pkg/bus"
	"github.com/peter-kozarec/ensemble/pkg/common"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// Pushover sends a push notification once a restraint has failed threshold
// reductions in a row. A committed rotation resets the streak. It may wrap
// handlers of several routers.
type Pushover struct {
	logger   *zap.Logger
	user     string
	token    string
	device   string
	endpoint string
	client   *http.Client

	threshold int
	mu        sync.Mutex
	streaks   map[string]int
}

func NewPushover(logger *zap.Logger, user, token, device string, threshold int) *Pushover {
	if threshold <= 0 {
		threshold = 1
	}
	return &Pushover{
		logger:    logger,
		user:      user,
		token:     token,
		device:    device,
		endpoint:  pushoverEndpoint,
		client:    &http.Client{Timeout: 5 * time.Second},
		threshold: threshold,
		streaks:   make(map[string]int),
	}
}

func (p *Pushover) WithWindowRotated(handler bus.WindowRotatedEventHandler) bus.WindowRotatedEventHandler {
	return func(ctx context.Context, ev common.WindowRotated) {
		p.mu.Lock()
		delete(p.streaks, ev.Restraint)
		p.mu.Unlock()
		handler(ctx, ev)
	}
}

func (p *Pushover) WithReductionFailed(handler bus.ReductionFailedEventHandler) bus.ReductionFailedEventHandler {
	return func(ctx context.Context, ev common.ReductionFailed) {
		p.mu.Lock()
		p.streaks[ev.Restraint]++
		notify := p.streaks[ev.Restraint] == p.threshold
		p.mu.Unlock()

		if notify {
			msg := fmt.Sprintf("restraint = %s\nrotation = %d\nt = %g\nfailures = %d\nreason = %s",
				ev.Restraint, ev.Rotation, ev.SimTime, p.threshold, ev.Reason)
			if err := p.send(ctx, "Ensemble reduction failing", msg); err != nil {
				p.logger.Error("pushover notification failed", zap.Error(err))
			}
		}
		handler(ctx, ev)
	}
}

func (p *Pushover) send(ctx context.Context, title, message string) error {
	data := url.Values{}
	data.Set("token", p.token)
	data.Set("user", p.user)
	data.Set("device", p.device)
	data.Set("title", title)
	data.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pushover post failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pushover error: %s", body)
	}

	return nil
}
