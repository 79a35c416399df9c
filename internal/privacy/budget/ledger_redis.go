package budget

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	dErrors "veristat/pkg/domain-errors"
)

// reserveScript performs the compare-and-add in one atomic step on the
// server. Returns the new spend, or -1 when the reservation would exceed
// the cap.
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local epsilon = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
if current + epsilon > cap then
  return '-1'
end
redis.call('SET', KEYS[1], tostring(current + epsilon))
return tostring(current + epsilon)
`)

// RedisLedger shares the budget across processes. Spend never expires:
// epsilon is a lifetime bound per series, renewal is an operator decision.
type RedisLedger struct {
	client *redis.Client
	cap    float64
}

func NewRedisLedger(client *redis.Client, epsilonCap float64) *RedisLedger {
	if epsilonCap <= 0 {
		epsilonCap = DefaultEpsilonCap
	}
	return &RedisLedger{client: client, cap: epsilonCap}
}

func (l *RedisLedger) key(seriesKey string) string {
	return "privacy:budget:" + seriesKey
}

func (l *RedisLedger) Reserve(ctx context.Context, seriesKey string, epsilon float64) error {
	if epsilon <= 0 {
		return dErrors.New(dErrors.CodeValidation, "epsilon must be positive")
	}
	res, err := reserveScript.Run(ctx, l.client, []string{l.key(seriesKey)},
		fmt.Sprintf("%.10f", epsilon), fmt.Sprintf("%.10f", l.cap)).Text()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "reserve privacy budget")
	}
	if res == "-1" {
		return dErrors.Newf(dErrors.CodeBudgetExceeded,
			"series %q: reservation of %.4f exceeds cap %.4f", seriesKey, epsilon, l.cap)
	}
	return nil
}

func (l *RedisLedger) Spent(ctx context.Context, seriesKey string) (float64, error) {
	val, err := l.client.Get(ctx, l.key(seriesKey)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "read privacy budget")
	}
	return val, nil
}
