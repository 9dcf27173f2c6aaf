package dao

import (
	"errors"
	"fmt"
	"strings"

	"eco-agent-backend/config"
	"eco-agent-backend/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSQLiteDSN = "file:eco-agent.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

var (
	// DB 全局数据库连接
	DB *gorm.DB

	ErrNotFound = errors.New("record not found")
)

// Open 按驱动打开数据库，线上使用托管 Postgres，本地开发使用内嵌 SQLite
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = defaultSQLiteDSN
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// Init 打开全局连接并迁移表结构
func Init(cfg config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	return nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Session{},
		&model.Message{},
		&model.RAGContext{},
		&model.GeneratedImage{},
		&model.GeneratedChart{},
		&model.GeneratedCSV{},
		&model.UsageRecord{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ownerScope 按归属过滤，登录用户与匿名访客互不可见
func ownerScope(owner model.Owner) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if owner.UserID != "" {
			return db.Where("user_id = ?", owner.UserID)
		}
		return db.Where("user_id IS NULL AND anonymous_id = ?", owner.AnonymousID)
	}
}
