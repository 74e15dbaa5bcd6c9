package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/database"
)

// Open 按数据库配置建立连接并创建迁移器，Close 时一并关闭连接池。
// sqlite 的表结构由 GORM AutoMigrate 维护，返回 ErrUnsupported。
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	if dbType == DatabaseTypeSQLite {
		return nil, fmt.Errorf("%w: sqlite schema is created by auto_migrate", ErrUnsupported)
	}

	pool, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	m, err := NewMigrator(pool.SQLDB(), Config{DatabaseType: dbType}, logger)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	m.release = pool.Close
	return m, nil
}
