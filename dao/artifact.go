package dao

import (
	"context"

	"eco-agent-backend/model"

	"gorm.io/gorm"
)

func CreateImage(ctx context.Context, image *model.GeneratedImage) error {
	return DB.WithContext(ctx).Create(image).Error
}

func GetImage(ctx context.Context, owner model.Owner, id string) (*model.GeneratedImage, error) {
	var image model.GeneratedImage
	if err := DB.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Where("id = ?", id).
		First(&image).Error; err != nil {
		return nil, notFound(err)
	}
	return &image, nil
}

func CreateChart(ctx context.Context, chart *model.GeneratedChart) error {
	return DB.WithContext(ctx).Create(chart).Error
}

func GetChart(ctx context.Context, owner model.Owner, id string) (*model.GeneratedChart, error) {
	var chart model.GeneratedChart
	if err := DB.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Where("id = ?", id).
		First(&chart).Error; err != nil {
		return nil, notFound(err)
	}
	return &chart, nil
}

func CreateCSV(ctx context.Context, csv *model.GeneratedCSV) error {
	return DB.WithContext(ctx).Create(csv).Error
}

func GetCSV(ctx context.Context, owner model.Owner, id string) (*model.GeneratedCSV, error) {
	var csv model.GeneratedCSV
	if err := DB.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Where("id = ?", id).
		First(&csv).Error; err != nil {
		return nil, notFound(err)
	}
	return &csv, nil
}

func CreateUsageRecord(ctx context.Context, record *model.UsageRecord) error {
	return DB.WithContext(ctx).Create(record).Error
}

// PurgeOwner 删除用户的全部数据，对应上游用户删除时的级联
func PurgeOwner(ctx context.Context, owner model.Owner) error {
	return DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sessionIDs []string
		if err := tx.Model(&model.Session{}).
			Scopes(ownerScope(owner)).
			Pluck("id", &sessionIDs).Error; err != nil {
			return err
		}

		if len(sessionIDs) > 0 {
			if err := tx.Where("session_id IN ?", sessionIDs).
				Delete(&model.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id IN ?", sessionIDs).
				Delete(&model.RAGContext{}).Error; err != nil {
				return err
			}
		}

		for _, table := range []any{
			&model.Session{},
			&model.GeneratedImage{},
			&model.GeneratedChart{},
			&model.GeneratedCSV{},
		} {
			if err := tx.Scopes(ownerScope(owner)).Delete(table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
