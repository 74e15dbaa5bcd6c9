// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 为运行历史表（workflow_runs / workflow_step_runs）提供
版本化 Schema 迁移，基于 golang-migrate 实现。

# 概述

PostgreSQL 与 MySQL 的 SQL 迁移文件通过 embed.FS 内嵌，列与索引
和 store.GormStore 的模型一致，因此迁移后再启用 auto_migrate 不会
产生变更。SQLite 只用于本地运行，表结构由 GORM AutoMigrate 创建，
Open 对其返回 ErrUnsupported。

# 核心类型

  - Migrator：Up/Down/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：封装 golang-migrate 实例；ctx 取消时通过
    GracefulStop 在安全点停止。
  - Open：由 config.DatabaseConfig 建立连接池并创建迁移器。
  - CLI：`crewflow migrate <action>` 的格式化输出。
*/
package migration
