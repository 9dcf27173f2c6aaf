// Package daotest 为依赖 dao.DB 的测试提供内存 SQLite 数据库
package daotest

import (
	"fmt"
	"testing"

	"eco-agent-backend/dao"
	"eco-agent-backend/model"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Setup 打开独立的内存库并替换 dao.DB，测试结束后恢复
func Setup(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库的多个连接会互相加锁
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, dao.Migrate(db))

	prev := dao.DB
	dao.DB = db
	t.Cleanup(func() {
		dao.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

// CreateSession 写入一条属于 owner 的会话
func CreateSession(t *testing.T, owner model.Owner, sessionID string) *model.Session {
	t.Helper()

	userID, anonymousID := owner.Columns()
	session := &model.Session{
		ID:          sessionID,
		UserID:      userID,
		AnonymousID: anonymousID,
		Title:       model.DefaultSessionTitle,
	}
	require.NoError(t, dao.DB.Create(session).Error)
	return session
}
