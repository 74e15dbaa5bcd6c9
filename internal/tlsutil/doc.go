// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 tlsutil 为 crewflow 的两个出站连接提供 TLS 配置（TLS 1.2+，仅 AEAD 密码套件）。

  - RedisConfig：redis.tls 开启时由 internal/cache 使用，证书主机名取
    redis.tls_server_name 或 redis.addr 的主机部分。
  - PushClient：运行结束向 metrics.push_gateway 推送指标，超时取
    metrics.push_timeout。
*/
package tlsutil
