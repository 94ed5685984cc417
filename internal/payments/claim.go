package payments

import (
	"context"
	"time"

	"bizwallet/internal/apperr"
	"bizwallet/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrPaymentInFlight means another request holds the claim on the same
// payment reference. Callers retry.
var ErrPaymentInFlight = apperr.Conflict("payment is already being processed, retry shortly")

// Claimer serializes concurrent reconciliation of one payment reference.
// It only narrows the race; the storage uniqueness constraint decides.
type Claimer interface {
	Claim(ctx context.Context, ref string) (release func(), err error)
}

const defaultClaimTTL = 30 * time.Second

type RedisClaimer struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisClaimer(rdb *redis.Client, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}
	return &RedisClaimer{rdb: rdb, ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, ref string) (func(), error) {
	key := "bizwallet:payment_ref:" + ref
	owner := uuid.NewString()

	ok, err := utils.AcquireClaim(ctx, c.rdb, key, owner, c.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPaymentInFlight
	}
	return func() {
		_ = utils.ReleaseClaim(context.WithoutCancel(ctx), c.rdb, key, owner)
	}, nil
}
