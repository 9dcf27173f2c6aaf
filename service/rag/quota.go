package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eco-agent-backend/dao"

	"github.com/redis/go-redis/v9"
)

const (
	quotaKeyPrefix = "eco:rag_calls:"

	// 过期后从数据库中的计数重新加载
	quotaKeyTTL = 7 * 24 * time.Hour
)

var ErrQuotaExceeded = errors.New("document search limit reached for this session")

// Quota 会话检索次数额度，Reserve 成功后返回占用后的计数
type Quota interface {
	Reserve(ctx context.Context, sessionID string) (int, error)
	Release(ctx context.Context, sessionID string)
}

// DBQuota 在一个事务内用条件更新完成检查与计数
type DBQuota struct {
	limit int
}

var _ Quota = &DBQuota{}

func NewDBQuota(limit int) *DBQuota {
	return &DBQuota{limit: limit}
}

func (q *DBQuota) Reserve(ctx context.Context, sessionID string) (int, error) {
	count, err := dao.ReserveRAGCall(ctx, sessionID, q.limit)
	if errors.Is(err, dao.ErrRAGQuotaExceeded) {
		return 0, ErrQuotaExceeded
	}
	return count, err
}

func (q *DBQuota) Release(ctx context.Context, sessionID string) {
	if err := dao.ReleaseRAGCall(ctx, sessionID); err != nil {
		slog.Error("Failed to release rag call", "session_id", sessionID, "err", err)
	}
}

// 计数取 Redis 与数据库中较大的值，达到上限返回 -1，否则自增
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '-1')
local stored = tonumber(ARGV[2])
if current < stored then
  redis.call('SET', KEYS[1], ARGV[2], 'EX', ARGV[3])
  current = stored
end
if current >= tonumber(ARGV[1]) then
  return -1
end
return redis.call('INCR', KEYS[1])
`)

// key 不存在或计数为 0 时返回 -1，不归还
var releaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
  return -1
end
return redis.call('DECR', KEYS[1])
`)

// RedisQuota 多实例部署时用 Redis 原子计数，结果同步回数据库
type RedisQuota struct {
	rdb   redis.UniversalClient
	limit int
}

var _ Quota = &RedisQuota{}

func NewRedisQuota(rdb redis.UniversalClient, limit int) *RedisQuota {
	return &RedisQuota{rdb: rdb, limit: limit}
}

func (q *RedisQuota) Reserve(ctx context.Context, sessionID string) (int, error) {
	stored, err := dao.GetRAGCallCount(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	count, err := reserveScript.Run(ctx, q.rdb,
		[]string{quotaKeyPrefix + sessionID},
		q.limit, stored, int(quotaKeyTTL.Seconds()),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve rag call: %w", err)
	}
	if count < 0 {
		return 0, ErrQuotaExceeded
	}

	if err := dao.RaiseRAGCallCount(ctx, sessionID, count); err != nil {
		slog.Error("Failed to sync rag call count", "session_id", sessionID, "err", err)
	}
	return count, nil
}

func (q *RedisQuota) Release(ctx context.Context, sessionID string) {
	count, err := releaseScript.Run(ctx, q.rdb, []string{quotaKeyPrefix + sessionID}).Int()
	if err != nil {
		slog.Error("Failed to release rag call", "session_id", sessionID, "err", err)
		return
	}
	if count < 0 {
		return
	}
	if err := dao.ReleaseRAGCall(ctx, sessionID); err != nil {
		slog.Error("Failed to sync rag call count", "session_id", sessionID, "err", err)
	}
}
