package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/migration"
	"github.com/BaSui01/crewflow/workflow"
	"github.com/BaSui01/crewflow/workflow/dsl"
	"github.com/BaSui01/crewflow/workflow/store"
)

// usageError 参数错误，退出码为 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// parseFlags 将 flag 解析错误转为 usageError，-h 原样返回 flag.ErrHelp
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return &usageError{msg: fmt.Sprintf("%s: %v", fs.Name(), err)}
	}
	return nil
}

func isUsageError(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}

// varFlags 收集重复的 --var key=value，值按 YAML 标量解析
type varFlags map[string]any

func (v varFlags) String() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, v[k])
	}
	return strings.Join(parts, ",")
}

func (v varFlags) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		value = raw
	}
	v[strings.TrimSpace(key)] = value
	return nil
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runWorkflow(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workflowPath := fs.String("workflow", "", "Path to workflow definition (YAML)")
	configPath := fs.String("config", "", "Path to config file")
	vars := varFlags{}
	fs.Var(vars, "var", "Override a workflow variable (key=value, repeatable)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *workflowPath == "" {
		return &usageError{msg: "run: --workflow is required"}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to release resources", zap.Error(err))
		}
	}()

	if a.registry != nil && cfg.Metrics.Addr != "" {
		srv, err := startMetricsServer(cfg.Metrics.Addr, cfg.Metrics.Path, a.registry, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	data, err := os.ReadFile(*workflowPath)
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}
	def, err := dsl.Decode(data)
	if err != nil {
		return err
	}
	if len(vars) > 0 {
		if def.Variables == nil {
			def.Variables = make(map[string]any, len(vars))
		}
		for k, v := range vars {
			def.Variables[k] = v
		}
	}

	b, err := a.parser().Compile(def)
	if err != nil {
		return err
	}
	w, err := b.WithObserver(a.observers()...).Build(nil)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}

	logger.Info("running workflow",
		zap.String("workflow", w.Name()),
		zap.String("file", *workflowPath),
		zap.String("version", Version),
	)
	result, runErr := w.Execute(ctx)

	if a.registry != nil && cfg.Metrics.PushGateway != "" {
		// 运行被取消时仍推送本次结果
		if err := pushMetrics(context.Background(), cfg.Metrics, a.registry); err != nil {
			logger.Warn("failed to push metrics", zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("workflow %s (run %s): %w", w.Name(), w.RunID(), runErr)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// =============================================================================
// ✅ validate 命令
// =============================================================================

func runValidate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workflowPath := fs.String("workflow", "", "Path to workflow definition (YAML)")
	configPath := fs.String("config", "", "Path to config file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *workflowPath == "" {
		return &usageError{msg: "validate: --workflow is required"}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	a := &app{cfg: cfg, logger: logger, agents: builtinAgents(cfg.Workflow, logger)}
	b, err := a.parser().ParseFile(*workflowPath)
	if err != nil {
		return err
	}
	w, err := b.Build(nil)
	if err != nil {
		return fmt.Errorf("build workflow: %w", err)
	}

	fmt.Fprintf(stdout, "workflow %q is valid: type=%s steps=%d\n", w.Name(), w.Type(), len(w.Steps()))
	return nil
}

// =============================================================================
// 🤖 agents 命令
// =============================================================================

func runAgents(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	reg := builtinAgents(config.DefaultWorkflowConfig(), zap.NewNop())
	for _, name := range reg.Names() {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// =============================================================================
// 🗂️ history 命令
// =============================================================================

func runHistory(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	name := fs.String("name", "", "Workflow name")
	status := fs.String("status", "", "Run status")
	limit := fs.Int("limit", 20, "Maximum number of runs")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if (*name == "") == (*status == "") {
		return &usageError{msg: "history: exactly one of --name or --status is required"}
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in config")
	}
	if store.Backend(cfg.History.Backend) == store.BackendMemory {
		return fmt.Errorf("history backend %q does not persist runs between invocations", cfg.History.Backend)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	s, closeFn, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()

	var runs []*workflow.RunRecord
	if *name != "" {
		runs, err = s.ListByWorkflow(ctx, *name, *limit)
	} else {
		runs, err = s.ListByStatus(ctx, workflow.Status(*status), *limit)
	}
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []*workflow.RunRecord{}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}

// =============================================================================
// 🧱 migrate 命令
// =============================================================================

func runMigrate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return &usageError{msg: "migrate: an action is required (up, down, steps, goto, force, version, status, info)"}
	}
	action, actionArgs := fs.Arg(0), fs.Args()[1:]

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := migration.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("failed to close migrator", zap.Error(err))
		}
	}()

	err = migration.NewCLI(m, stdout).Run(ctx, action, actionArgs)
	if errors.Is(err, migration.ErrUnknownAction) {
		return &usageError{msg: err.Error()}
	}
	return err
}
