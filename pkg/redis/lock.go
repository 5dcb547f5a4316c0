package redis

import (
	"context"
	"time"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// AcquireOwned sets key to owner for ttl unless another owner holds it.
func (c *Client) AcquireOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, owner, ttl)
}

// ReleaseOwned deletes key atomically when owner still holds it and reports
// whether it did. An expired or stolen lock is left alone.
func (c *Client) ReleaseOwned(ctx context.Context, key, owner string) (bool, error) {
	cmds, err := c.commands()
	if err != nil {
		return false, err
	}
	n, err := cmds.Eval(ctx, compareAndDelete, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
