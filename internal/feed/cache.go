package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// OddsCache stores the latest odds snapshot per market in Redis. The
// websocket client writes through it; the admission pipeline reads from it.
// Snapshot freshness is judged by the embedded Timestamp, not the Redis TTL;
// the TTL only bounds memory for matches that stopped updating.
type OddsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewOddsCache(rdb *redis.Client, ttl time.Duration) *OddsCache {
	return &OddsCache{rdb: rdb, ttl: ttl}
}

func matchKeyOf(matchKey string) string { return "odds:match:" + matchKey }

func sessionKeyOf(matchKey, session string) string {
	return "odds:session:" + matchKey + ":" + session
}

// SetMatch stores the latest match-market snapshot.
func (c *OddsCache) SetMatch(ctx context.Context, snap *OddsSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, matchKeyOf(snap.MatchKey), b, c.ttl).Err()
}

// SetSession stores the latest session-market quote.
func (c *OddsCache) SetSession(ctx context.Context, odds *SessionOdds) error {
	b, err := json.Marshal(odds)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, sessionKeyOf(odds.MatchKey, odds.Session), b, c.ttl).Err()
}

// LiveOdds implements OddsFeed. A cache miss returns (nil, nil): the market
// is unknown, which the admission pipeline treats as a cancel condition.
func (c *OddsCache) LiveOdds(ctx context.Context, matchKey string) (*OddsSnapshot, error) {
	b, err := c.rdb.Get(ctx, matchKeyOf(matchKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap OddsSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SessionOdds implements OddsFeed.
func (c *OddsCache) SessionOdds(ctx context.Context, matchKey, session string) (*SessionOdds, error) {
	b, err := c.rdb.Get(ctx, sessionKeyOf(matchKey, session)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var odds SessionOdds
	if err := json.Unmarshal(b, &odds); err != nil {
		return nil, err
	}
	return &odds, nil
}

var _ OddsFeed = (*OddsCache)(nil)
