package httpx

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/citylore/checkout/internal/redisx"
)

// Sliding-window counter over a sorted set, one atomic round trip.
// KEYS[1]=rate key, ARGV=[now, window start, window seconds, member,
// limit]. Returns the count inside the window, or -1 when over limit.
const luaRateLimit = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSec = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '0', windowStart)

local count = redis.call('ZCARD', key)

if count < tonumber(ARGV[5]) then
  redis.call('ZADD', key, now, member)
  redis.call('EXPIRE', key, windowSec)
  return count + 1
else
  return -1
end
`

// RateLimit throttles by client IP using a redis sliding window. The
// limiter fails open: a redis outage must not take the read path down
// with it.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			key := fmt.Sprintf(redisx.KeyOrderRate, ip)

			now := time.Now().Unix()
			windowSec := int64(window.Seconds())
			member := fmt.Sprintf("%d-%d", now, time.Now().UnixNano())

			res, err := rdb.Eval(r.Context(), luaRateLimit, []string{key},
				now, now-windowSec, windowSec, member, limit).Int()
			if err != nil {
				log.Warn("rate limiter unavailable, letting request through",
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if res < 0 {
				writeError(w, r, http.StatusTooManyRequests,
					CodeTooManyRequests, "too many requests, slow down", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP trusts middleware.RealIP to have rewritten RemoteAddr from
// the forwarding headers already.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
