package dao

import (
	"context"
	"errors"
	"time"

	"eco-agent-backend/model"

	"gorm.io/gorm"
)

var ErrSessionOwner = errors.New("session belongs to another owner")

func GetSessionsByOwner(ctx context.Context, owner model.Owner) ([]model.Session, error) {
	var sessions []model.Session
	if err := DB.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Order("updated_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession 会话不存在或不属于 owner 时均返回 ErrNotFound
func GetSession(ctx context.Context, owner model.Owner, sessionID string) (*model.Session, error) {
	var session model.Session
	if err := DB.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error; err != nil {
		return nil, notFound(err)
	}
	if !session.OwnedBy(owner) {
		return nil, ErrNotFound
	}
	return &session, nil
}

// GetOrCreateSession 首条消息时创建会话
func GetOrCreateSession(ctx context.Context, owner model.Owner, sessionID, title string) (*model.Session, bool, error) {
	session, err := GetSession(ctx, owner, sessionID)
	if err == nil {
		return session, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	var count int64
	if err := DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", sessionID).
		Count(&count).Error; err != nil {
		return nil, false, err
	}
	if count > 0 {
		return nil, false, ErrSessionOwner
	}

	if title == "" {
		title = model.DefaultSessionTitle
	}
	userID, anonymousID := owner.Columns()
	session = &model.Session{
		ID:          sessionID,
		UserID:      userID,
		AnonymousID: anonymousID,
		Title:       title,
	}
	if err := DB.WithContext(ctx).Create(session).Error; err != nil {
		return nil, false, err
	}
	return session, true, nil
}

func TouchSession(ctx context.Context, sessionID string) error {
	return DB.WithContext(ctx).Model(&model.Session{}).
		Where("id = ?", sessionID).
		Update("updated_at", time.Now()).Error
}

func UpdateSessionTitle(ctx context.Context, owner model.Owner, sessionID, title string) error {
	result := DB.WithContext(ctx).Model(&model.Session{}).
		Scopes(ownerScope(owner)).
		Where("id = ?", sessionID).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession 删除会话及其消息、检索上下文
func DeleteSession(ctx context.Context, owner model.Owner, sessionID string) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Scopes(ownerScope(owner)).
			Where("id = ?", sessionID).
			Delete(&model.Session{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("session_id = ?", sessionID).
			Delete(&model.Message{}).Error; err != nil {
			return err
		}

		return tx.Where("session_id = ?", sessionID).
			Delete(&model.RAGContext{}).Error
	})
}
