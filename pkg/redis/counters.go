package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

const keyNamespace = "gf"

// windowIncr bumps KEYS[1] and gives a fresh key ARGV[1] milliseconds to live.
// Both steps run atomically so a crash cannot leave a counter without expiry.
const windowIncr = `local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`

func namespaced(parts ...string) string {
	kept := []string{keyNamespace}
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ":")
}

// IdempotencyKey returns gf:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return namespaced("idempotency", scope, id)
}

// WindowAllow counts one hit in the fixed window holding now and reports
// whether the count is still within limit. Windows start at multiples of
// window since the epoch, so an hourly window resets on the hour.
func (c *Client) WindowAllow(ctx context.Context, scope string, limit int64, window time.Duration, now time.Time) (bool, int64, error) {
	if window <= 0 {
		return false, 0, errors.New("window must be positive")
	}
	cmds, err := c.commands()
	if err != nil {
		return false, 0, err
	}

	start := now.UTC().Truncate(window)
	remaining := start.Add(window).Sub(now.UTC())
	key := namespaced("rate_limit", scope, strconv.FormatInt(start.Unix(), 10))

	count, err := cmds.Eval(ctx, windowIncr, []string{key}, max(remaining.Milliseconds(), 1)).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}
