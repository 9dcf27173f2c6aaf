package dao

import (
	"context"
	"errors"

	"eco-agent-backend/model"

	"gorm.io/gorm"
)

var ErrRAGQuotaExceeded = errors.New("rag call quota exceeded for session")

// ReserveRAGCall 原子地占用一次会话检索额度，条件更新保证计数不超过 limit
func ReserveRAGCall(ctx context.Context, sessionID string, limit int) (int, error) {
	var count int
	err := DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Session{}).
			Where("id = ? AND rag_call_count < ?", sessionID, limit).
			UpdateColumn("rag_call_count", gorm.Expr("rag_call_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&model.Session{}).
				Where("id = ?", sessionID).
				Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return ErrNotFound
			}
			return ErrRAGQuotaExceeded
		}
		var counts []int
		if err := tx.Model(&model.Session{}).
			Where("id = ?", sessionID).
			Pluck("rag_call_count", &counts).Error; err != nil {
			return err
		}
		if len(counts) > 0 {
			count = counts[0]
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ReleaseRAGCall 检索失败时归还额度
func ReleaseRAGCall(ctx context.Context, sessionID string) error {
	return DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND rag_call_count > 0", sessionID).
		UpdateColumn("rag_call_count", gorm.Expr("rag_call_count - 1")).Error
}

func CreateRAGContext(ctx context.Context, ragContext *model.RAGContext) error {
	return DB.WithContext(ctx).Create(ragContext).Error
}

// GetRAGContext 仅返回同一会话内的检索上下文
func GetRAGContext(ctx context.Context, sessionID, contextID string) (*model.RAGContext, error) {
	var ragContext model.RAGContext
	if err := DB.WithContext(ctx).
		Where("id = ? AND session_id = ?", contextID, sessionID).
		First(&ragContext).Error; err != nil {
		return nil, notFound(err)
	}
	return &ragContext, nil
}

func CountRAGContexts(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := DB.WithContext(ctx).Model(&model.RAGContext{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

func GetRAGCallCount(ctx context.Context, sessionID string) (int, error) {
	var counts []int
	if err := DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", sessionID).
		Limit(1).
		Pluck("rag_call_count", &counts).Error; err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, ErrNotFound
	}
	return counts[0], nil
}

// RaiseRAGCallCount 计数以 Redis 为准时同步回数据库，只增不减，乱序写入不会把计数改小
func RaiseRAGCallCount(ctx context.Context, sessionID string, count int) error {
	return DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND rag_call_count < ?", sessionID, count).
		UpdateColumn("rag_call_count", count).Error
}
