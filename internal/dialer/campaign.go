package dialer

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"surveydialer/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// capRetryInterval is how long the campaign waits before re-asking for a
// dial slot when the cap is exhausted.
const capRetryInterval = 5 * time.Second

// SlotLimiter caps concurrent dials. The redis-backed limiter coordinates
// across processes sharing an origin number; the local one is in-process
// only.
type SlotLimiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// RedisLimiter coordinates the cap through redis so multiple dialer
// processes sharing an origin number stay under one limit. Slots carry a TTL
// so a crashed process cannot leak them.
type RedisLimiter struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, fromNumber string, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLimiter{
		rdb:   rdb,
		key:   "dialer:active_calls:" + fromNumber,
		limit: limit,
		ttl:   ttl,
	}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) {
	_ = utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key)
}

type localLimiter struct {
	slots chan struct{}
}

// NewLocalLimiter is the fallback when redis is not configured.
func NewLocalLimiter(limit int) SlotLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &localLimiter{slots: make(chan struct{}, limit)}
}

func (l *localLimiter) Acquire(context.Context) (bool, error) {
	select {
	case l.slots <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *localLimiter) Release(context.Context) {
	select {
	case <-l.slots:
	default:
	}
}

// CallPlacer places one call; the Dialer satisfies it.
type CallPlacer interface {
	PlaceCall(ctx context.Context, toNumber string) (string, error)
}

// Campaign walks a target list in random order with a randomized pause
// between calls so the dial pattern does not look mechanical to carriers.
type Campaign struct {
	placer  CallPlacer
	limiter SlotLimiter
	minGap  time.Duration
	maxGap  time.Duration
	log     *slog.Logger

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCampaign(placer CallPlacer, limiter SlotLimiter, minGap, maxGap time.Duration, log *slog.Logger) *Campaign {
	if limiter == nil {
		limiter = NewLocalLimiter(1)
	}
	if minGap <= 0 {
		minGap = 70 * time.Second
	}
	if maxGap < minGap {
		maxGap = minGap
	}
	if log == nil {
		log = slog.Default()
	}
	return &Campaign{
		placer:  placer,
		limiter: limiter,
		minGap:  minGap,
		maxGap:  maxGap,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}
}

// Run dials every number once. Individual call failures are logged and the
// campaign moves on; only cancellation stops it early. It reports how many
// calls were placed successfully.
func (c *Campaign) Run(ctx context.Context, numbers []string) (int, error) {
	order := make([]string, len(numbers))
	copy(order, numbers)
	c.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	placed := 0
	for i, number := range order {
		if err := c.acquireSlot(ctx); err != nil {
			return placed, err
		}

		if _, err := c.placer.PlaceCall(ctx, number); err != nil {
			c.log.Error("campaign call failed", "to", number, "err", err)
		} else {
			placed++
		}

		if i < len(order)-1 {
			if err := c.sleep(ctx, c.gap()); err != nil {
				c.limiter.Release(ctx)
				return placed, err
			}
		}
		c.limiter.Release(ctx)
	}
	return placed, nil
}

// acquireSlot blocks until a dial slot is free. Limiter errors fail open so
// a redis outage cannot stall the campaign.
func (c *Campaign) acquireSlot(ctx context.Context) error {
	for {
		ok, err := c.limiter.Acquire(ctx)
		if err != nil {
			c.log.Error("dial slot check failed, proceeding", "err", err)
			return nil
		}
		if ok {
			return nil
		}
		if err := c.sleep(ctx, capRetryInterval); err != nil {
			return err
		}
	}
}

func (c *Campaign) gap() time.Duration {
	if c.maxGap == c.minGap {
		return c.minGap
	}
	return c.minGap + time.Duration(c.rng.Int63n(int64(c.maxGap-c.minGap)))
}
