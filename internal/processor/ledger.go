package processor

import (
	"context"
	"strconv"
	"time"

	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/redis"
)

const DefaultLedgerTTL = 24 * time.Hour

// RelayLedger remembers jobs the provider already accepted. A worker that
// relayed a message but could not record it in the store leaves the job
// processing; when maintenance hands the job out again the ledger answers
// instead of the provider, so the customer does not get the message twice.
type RelayLedger struct {
	redis  redis.RedisAdapter
	ttl    time.Duration
	prefix string
}

func NewRelayLedger(adapter redis.RedisAdapter, ttl time.Duration) *RelayLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	return &RelayLedger{redis: adapter, ttl: ttl, prefix: "relayed:"}
}

// Lookup returns the provider reference recorded for jobID. A redis failure
// reads as not relayed.
func (l *RelayLedger) Lookup(ctx context.Context, jobID int64) (ref string, ok bool) {
	if l == nil || l.redis == nil {
		return "", false
	}
	b, err := l.redis.Get(ctx, l.key(jobID))
	if err != nil {
		if !redis.IsNil(err) {
			logger.Warn("relay ledger read failed", "job_id", jobID, "error", err)
		}
		return "", false
	}
	return string(b), true
}

func (l *RelayLedger) Record(ctx context.Context, jobID int64, providerRef string) {
	if l == nil || l.redis == nil {
		return
	}
	if err := l.redis.Set(ctx, l.key(jobID), []byte(providerRef), l.ttl); err != nil {
		logger.Warn("relay ledger write failed", "job_id", jobID, "error", err)
	}
}

// Forget drops the record once the store has the job marked sent.
func (l *RelayLedger) Forget(ctx context.Context, jobID int64) {
	if l == nil || l.redis == nil {
		return
	}
	_ = l.redis.Del(ctx, l.key(jobID))
}

func (l *RelayLedger) key(jobID int64) string {
	return l.prefix + strconv.FormatInt(jobID, 10)
}
