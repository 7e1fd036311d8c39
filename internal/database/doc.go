/*
Package database provides GORM-based connection pool management for the
store kernel: health checks, pool statistics, and retryable transactions.

# Core types

  - PoolManager: wraps a GORM DB and its underlying sql.DB, exposing
    DB()/Ping()/Stats()/Close().
  - PoolConfig: max idle/open connections, connection lifetime, idle
    timeout, and health-check interval.
  - PoolStats: JSON-friendly pool statistics snapshot.
  - TransactionFunc: the transaction callback type.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Background health checks that ping the connection on an interval.
  - WithTransaction for a single transactional unit of work;
    WithTransactionRetry adds exponential backoff for deadlocks and
    serialization failures.
  - GetStats returns a structured snapshot of pool activity.
*/
package database
