package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// oddsMessage is the provider wire format: either a match-market snapshot or
// a session quote per message.
type oddsMessage struct {
	Match   *OddsSnapshot `json:"match,omitempty"`
	Session *SessionOdds  `json:"session,omitempty"`
}

// WSClient consumes the provider's odds stream over websocket and writes
// every update into the OddsCache. Reconnects with a flat backoff; the
// admission pipeline's staleness threshold covers the gap while the stream
// is down.
type WSClient struct {
	url     string
	cache   *OddsCache
	clock   Clock
	log     zerolog.Logger
	backoff time.Duration
}

func NewWSClient(url string, cache *OddsCache, clock Clock, log zerolog.Logger) *WSClient {
	return &WSClient{
		url:     url,
		cache:   cache,
		clock:   clock,
		log:     log,
		backoff: 3 * time.Second,
	}
}

// Run blocks until ctx is cancelled, reconnecting on any stream error.
func (c *WSClient) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.connectAndListen(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.log.Warn().Err(err).Dur("backoff", c.backoff).Msg("odds stream closed, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}
	}
}

func (c *WSClient) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.log.Info().Str("url", c.url).Msg("connected to odds provider")

	// ReadMessage has no context support; closing the connection is the only
	// way to unblock it on shutdown.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		var msg oddsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed odds message")
			continue
		}

		if msg.Match != nil {
			if msg.Match.Timestamp.IsZero() {
				msg.Match.Timestamp = c.clock.Now()
			}
			if err := c.cache.SetMatch(ctx, msg.Match); err != nil {
				c.log.Error().Err(err).Str("match", msg.Match.MatchKey).Msg("cache write failed")
			}
		}
		if msg.Session != nil {
			if msg.Session.Timestamp.IsZero() {
				msg.Session.Timestamp = c.clock.Now()
			}
			if err := c.cache.SetSession(ctx, msg.Session); err != nil {
				c.log.Error().Err(err).Str("match", msg.Session.MatchKey).Msg("cache write failed")
			}
		}
	}
}
