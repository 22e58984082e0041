package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 打开数据库并迁移表结构
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}

	if err := db.AutoMigrate(&PublishTask{}, &Account{}); err != nil {
		return nil, fmt.Errorf("migrate database failed: %w", err)
	}

	return db, nil
}
