package pricefeed

import (
	"context"
	"encoding/json"
	"time"

	"exchange-ledger/internal/core/domain"
	"exchange-ledger/internal/core/ports"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

// subscribeRequest is sent once per connection to select assets.
type subscribeRequest struct {
	Op     string   `json:"op"`
	Assets []string `json:"assets"`
}

// SampleHandler receives every accepted price sample.
type SampleHandler func(domain.PriceSample)

// StreamClient maintains the persistent websocket subscription to the price
// feed. On connection loss it retries with a fixed backoff, and while
// disconnected it polls the request/response endpoint on its own interval so
// the oracle keeps receiving samples however long the outage lasts.
type StreamClient struct {
	url       string
	assets    []string
	backoff   time.Duration
	pollEvery time.Duration
	fallback  ports.PriceFetcher // nil disables the polling fallback
	handler   SampleHandler
	log       zerolog.Logger
}

// NewStreamClient creates a stream client. pollEvery sets the fallback poll
// cadence, independent of the reconnect backoff. handler must be safe for
// concurrent use; it is invoked from the read loop and the poll loop.
func NewStreamClient(url string, assets []string, backoff, pollEvery time.Duration, fallback ports.PriceFetcher, handler SampleHandler, log zerolog.Logger) *StreamClient {
	return &StreamClient{
		url:       url,
		assets:    assets,
		backoff:   backoff,
		pollEvery: pollEvery,
		fallback:  fallback,
		handler:   handler,
		log:       log,
	}
}

// Run connects, subscribes, and pumps messages until ctx is cancelled.
// It never returns an error: connection failures are retried forever.
func (c *StreamClient) Run(ctx context.Context) {
	var stopPolling func()
	defer func() {
		if stopPolling != nil {
			stopPolling()
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.connect(ctx)
		if err != nil {
			c.log.Warn().Err(err).Str("url", c.url).Msg("price stream connect failed, polling until it recovers")
			if stopPolling == nil {
				stopPolling = c.startPolling(ctx)
			}
			if !sleepCtx(ctx, c.backoff) {
				return
			}
			continue
		}

		if stopPolling != nil {
			stopPolling()
			stopPolling = nil
		}

		c.log.Info().Str("url", c.url).Msg("price stream connected")
		c.readPump(ctx, conn)
		conn.Close()

		stopPolling = c.startPolling(ctx)
		if !sleepCtx(ctx, c.backoff) {
			return
		}
	}
}

// startPolling launches the fallback poll loop: one immediate pass, then one
// per pollEvery until stopped. The returned func stops the loop and waits for
// it to exit.
func (c *StreamClient) startPolling(ctx context.Context) func() {
	if c.fallback == nil || c.pollEvery <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.pollOnce(ctx)

		ticker := time.NewTicker(c.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				c.pollOnce(ctx)
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (c *StreamClient) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}

	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Assets: c.assets}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// readPump consumes messages until the connection breaks or ctx is done.
func (c *StreamClient) readPump(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the caller shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("price stream read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed price stream message")
			continue
		}
		sample, err := msg.Sample(domain.PriceSourceStream)
		if err != nil {
			c.log.Warn().Err(err).Msg("unparseable price in stream message")
			continue
		}
		c.handler(sample)
	}
}

// pollOnce performs one fallback poll pass, forwarding samples to the handler.
func (c *StreamClient) pollOnce(ctx context.Context) {
	if c.fallback == nil {
		return
	}
	samples, err := c.fallback.Fetch(ctx, c.assets)
	if err != nil {
		c.log.Warn().Err(err).Msg("polling fallback failed")
		return
	}
	for _, s := range samples {
		c.handler(s)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
