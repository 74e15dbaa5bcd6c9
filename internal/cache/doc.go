// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理运行历史 Redis 后端的连接。

# 概述

Manager 根据 config.RedisConfig 创建 go-redis 客户端，启动时 Ping 探活，
可选后台健康检查，并通过 Client() 将客户端交给 store.NewRedisStore。

# 核心类型

  - Manager：持有 Redis 客户端，提供 Client()、Ping()、Close()、GetStats()。
  - Stats：连接池命中、超时与空闲连接统计。
  - ErrClosed：管理器关闭后的哨兵错误。
*/
package cache
