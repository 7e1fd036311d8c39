/*
Package cache provides the optional Redis-backed distributed cache tier,
used alongside the in-process groupcache LRUs when
memory.distributed_cache_enabled is set.

# Core types

  - Manager: wraps a go-redis client, exposing Get/Set/Delete/Exists/Expire
    plus GetJSON/SetJSON convenience methods.
  - Config: address, password, pool size, default TTL, and health-check
    interval.

# Capabilities

  - String and JSON cache access.
  - Connection pooling via PoolSize/MinIdleConns.
  - Background health checks that ping the connection on an interval.
  - ErrCacheMiss sentinel and IsCacheMiss for miss detection.
*/
package cache
