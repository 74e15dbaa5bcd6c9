// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 CrewFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为工作流引擎之外的各包（agents、store、metrics、cmd）
提供统一的测试基础设施。workflow 包自身的内部测试无法导入本包
（会形成循环依赖），使用包内的 helpers_test.go。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 工作流断言: AssertStepStatus / AssertVisitOrder
  - 通用断言: AssertJSONEqual / AssertEventuallyTrue / AssertEventuallyEqual
  - 数据工具: MustJSON / MustParseJSON / WaitFor

# 子包

  - testutil/mocks: MockAgent（脚本化结果、失败注入、延迟、并发统计）
    与 MockHistorySink（记录 RunRecord，可注入错误）
  - testutil/fixtures: 预置工作流定义（YAML）与 Builder 工厂

# 使用示例

	ctx := testutil.TestContext(t)
	agent := mocks.NewMockAgent("fetch").WithResult("rows").FailTimes(1, errors.New("flaky"))
	w, _ := fixtures.Diamond(agent).Build(nil)
	out, err := w.Execute(ctx)
*/
package testutil
