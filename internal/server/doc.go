// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，crewflow 用它在工作流运行期间
暴露 Prometheus 指标端点。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start/Shutdown/
    Errors/Addr/IsRunning。Start 先监听再后台 Serve，端口冲突同步返回；
    Addr 在监听后返回实际地址（支持 ":0"）。
  - Config：监听地址、读写与空闲超时、优雅关闭超时。
  - MetricsHandler：把 prometheus.Gatherer 挂到指定路径。
*/
package server
