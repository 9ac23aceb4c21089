package store

import "github.com/redis/go-redis/v9"

// INCR + PEXPIRE só no primeiro hit da janela. Se a chave perdeu o TTL
// (ex: foi regravada sem expiração), a janela é reaberta para não travar o
// contador para sempre.
var incrementWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

var decrementFloorScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
local n = tonumber(cur)
if n ~= nil and n <= 0 then
  return 0
end
return redis.call('DECR', KEYS[1])
`)
