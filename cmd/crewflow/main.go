// =============================================================================
// CrewFlow 主入口
// =============================================================================
// 使用方法:
//
//	crewflow run --workflow review.yaml                    # 执行工作流
//	crewflow run --workflow review.yaml --var threshold=80 # 覆盖 DSL 变量
//	crewflow validate --workflow review.yaml               # 仅校验
//	crewflow history --config crewflow.yaml --name review  # 查询运行记录
//	crewflow migrate --config crewflow.yaml up             # 升级运行记录表结构
//	crewflow agents                                        # 列出内置 Agent
//	crewflow version                                       # 显示版本信息
// =============================================================================

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/crewflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "run":
		err = runWorkflow(args[1:], stdout, stderr)
	case "validate":
		err = runValidate(args[1:], stdout, stderr)
	case "agents":
		err = runAgents(args[1:], stdout, stderr)
	case "history":
		err = runHistory(args[1:], stdout, stderr)
	case "migrate":
		err = runMigrate(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		if isUsageError(err) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "CrewFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `CrewFlow - multi-agent workflow engine

Usage:
  crewflow <command> [options]

Commands:
  run       Execute a workflow definition and print the final memory as JSON
  validate  Parse and validate a workflow definition without running it
  agents    List built-in agents
  history   List recorded runs from the configured history backend
  migrate   Manage the history schema on postgres/mysql
  version   Show version information
  help      Show this help message

Options for 'run' and 'validate':
  --workflow <path>   Workflow definition (YAML)
  --config <path>     Configuration file (YAML)
  --var key=value     Override a workflow variable (repeatable, 'run' only)

Options for 'history':
  --config <path>     Configuration file (YAML)
  --name <workflow>   Filter by workflow name
  --status <status>   Filter by run status (completed, failed, cancelled)
  --limit <n>         Maximum number of runs (default 20)

Usage of 'migrate':
  crewflow migrate [--config <path>] <up|down|steps N|goto V|force V|version|status|info>

Examples:
  crewflow run --workflow examples/crew.yaml --var caps=research,coding
  crewflow run --workflow review.yaml --config /etc/crewflow/config.yaml --var threshold=80
  crewflow validate --workflow review.yaml
  crewflow history --config crewflow.yaml --name review --limit 5
  crewflow migrate --config crewflow.yaml up`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		// stdout 留给 JSON 结果
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
