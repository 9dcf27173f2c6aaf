package dao

import (
	"context"

	"eco-agent-backend/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 100

func GetMessagesBySessionID(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	query := DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("position ASC")
	if limit > 0 {
		// 超出上限时保留最近的消息
		var total int64
		if err := DB.WithContext(ctx).Model(&model.Message{}).
			Where("session_id = ?", sessionID).
			Count(&total).Error; err != nil {
			return nil, err
		}
		if total > int64(limit) {
			query = query.Offset(int(total) - limit)
		}
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func GetMessageByID(ctx context.Context, messageID string) (*model.Message, error) {
	var message model.Message
	if err := DB.WithContext(ctx).
		Where("id = ?", messageID).
		First(&message).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

// MessageSessionID 返回消息所在会话，不存在时返回空串
func MessageSessionID(ctx context.Context, messageID string) (string, error) {
	var sessionIDs []string
	if err := DB.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", messageID).
		Limit(1).
		Pluck("session_id", &sessionIDs).Error; err != nil {
		return "", err
	}
	if len(sessionIDs) == 0 {
		return "", nil
	}
	return sessionIDs[0], nil
}

// ReplaceSessionMessages 以给定列表重写会话消息：按 ID upsert，删除列表外的旧消息。
// 同一列表重复写入结果不变，已生成的摘要不会被覆盖。
func ReplaceSessionMessages(ctx context.Context, sessionID string, messages []model.Message) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, 0, len(messages))
		for i := range messages {
			messages[i].SessionID = sessionID
			ids = append(ids, messages[i].ID)
		}

		stale := tx.Where("session_id = ?", sessionID)
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		if err := stale.Delete(&model.Message{}).Error; err != nil {
			return err
		}

		if len(messages) == 0 {
			return nil
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"position", "role", "parts", "processing_time_ms", "updated_at",
			}),
		}).CreateInBatches(messages, insertBatchSize).Error
	})
}

func UpdateMessageSummary(ctx context.Context, tx *gorm.DB, messageID, summary string) error {
	if tx == nil {
		tx = DB
	}
	return tx.WithContext(ctx).Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("summary", summary).Error
}
