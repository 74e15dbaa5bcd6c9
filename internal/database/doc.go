// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开运行历史使用的关系型数据库，并管理其连接池。

# 概述

Open 根据 config.DatabaseConfig 的驱动类型选择 GORM dialector
（postgres、mysql 或纯 Go 的 sqlite），再交由 PoolManager 配置连接池。
返回的 *gorm.DB 直接交给 store.OpenGormStore 使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、Close() 等生命周期方法，可选后台健康检查。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。
    sqlite 固定单连接。
  - PoolStats：友好格式的连接池统计信息。
*/
package database
