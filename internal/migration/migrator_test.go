package migration

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/database/stub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/crewflow/config"
)

// newStubMigrator 使用 golang-migrate 的内存 stub 驱动，迁移文件取自内嵌的方言目录
func newStubMigrator(t *testing.T, dbType DatabaseType) (*DefaultMigrator, *stub.Stub) {
	t.Helper()
	drv, err := stub.WithInstance(nil, &stub.Config{})
	require.NoError(t, err)

	m, err := newWithDriver(Config{DatabaseType: dbType}, drv, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, drv.(*stub.Stub)
}

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"POSTGRES", DatabaseTypePostgres, false},
		{"invalid", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL} {
		t.Run(string(dbType), func(t *testing.T) {
			fsys, path, err := sourceFor(dbType)
			require.NoError(t, err)

			files, err := listMigrations(fsys, path)
			require.NoError(t, err)
			require.Len(t, files, 2)
			assert.Equal(t, migrationFile{version: 1, name: "create_workflow_runs"}, files[0])
			assert.Equal(t, migrationFile{version: 2, name: "create_workflow_step_runs"}, files[1])
		})
	}

	_, _, err := sourceFor(DatabaseTypeSQLite)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestMigrator_UpDown(t *testing.T) {
	ctx := context.Background()
	m, drv := newStubMigrator(t, DatabaseTypePostgres)

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	require.Len(t, drv.MigrationSequence, 2)
	assert.Contains(t, drv.MigrationSequence[0], "CREATE TABLE IF NOT EXISTS workflow_runs")
	assert.Contains(t, drv.MigrationSequence[1], "CREATE TABLE IF NOT EXISTS workflow_step_runs")

	// 已是最新版本时 Up 不报错
	require.NoError(t, m.Up(ctx))

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, &MigrationInfo{CurrentVersion: 2, TotalMigrations: 2, AppliedMigrations: 2}, info)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.Contains(t, drv.MigrationSequence[len(drv.MigrationSequence)-1], "DROP TABLE IF EXISTS workflow_step_runs")
}

func TestMigrator_StepsGotoForce(t *testing.T) {
	ctx := context.Background()
	m, drv := newStubMigrator(t, DatabaseTypeMySQL)

	require.NoError(t, m.Steps(ctx, 1))
	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Goto(ctx, 2))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	// Force 只改版本号，不执行 SQL
	ran := len(drv.MigrationSequence)
	drv.IsDirty = true
	require.NoError(t, m.Force(ctx, 1))
	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.Len(t, drv.MigrationSequence, ran)

	assert.Error(t, m.Goto(ctx, 7), "unknown version")
}

func TestMigrator_StatusDirty(t *testing.T) {
	ctx := context.Background()
	m, drv := newStubMigrator(t, DatabaseTypePostgres)

	drv.CurrentVersion = 1
	drv.IsDirty = true

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MigrationStatus{
		{Version: 1, Name: "create_workflow_runs", Applied: true, Dirty: true},
		{Version: 2, Name: "create_workflow_step_runs"},
	}, statuses)

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.Dirty)
	assert.Equal(t, 1, info.PendingMigrations)
}

func TestMigrator_CancelledContext(t *testing.T) {
	m, _ := newStubMigrator(t, DatabaseTypePostgres)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Up(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMigrator_Errors(t *testing.T) {
	_, err := NewMigrator(nil, Config{DatabaseType: DatabaseTypePostgres}, nil)
	assert.ErrorContains(t, err, "db is required")

	drv, err := stub.WithInstance(nil, &stub.Config{})
	require.NoError(t, err)
	_, err = newWithDriver(Config{DatabaseType: DatabaseTypeSQLite}, drv, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestOpen_Errors(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "sqlite"
	_, err := Open(cfg, nil)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorContains(t, err, "auto_migrate")

	cfg.Driver = "oracle"
	_, err = Open(cfg, nil)
	assert.ErrorContains(t, err, "invalid database type")
}

// =============================================================================
// CLI
// =============================================================================

func TestCLI_Run(t *testing.T) {
	ctx := context.Background()
	m, _ := newStubMigrator(t, DatabaseTypePostgres)
	var out bytes.Buffer
	cli := NewCLI(m, &out)

	require.NoError(t, cli.Run(ctx, "version", nil))
	assert.Contains(t, out.String(), "No migrations applied yet")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "up", nil))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "status", nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Contains(t, lines[0], "VERSION")
	assert.Contains(t, out.String(), "create_workflow_step_runs")
	assert.Contains(t, out.String(), "Total: 2, Applied: 2, Pending: 0")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "steps", []string{"-1"}))
	assert.Contains(t, out.String(), "Rolling back 1 migration(s)")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "info", nil))
	assert.Contains(t, out.String(), "Current Version:    1")
}

func TestCLI_RunErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newStubMigrator(t, DatabaseTypePostgres)
	cli := NewCLI(m, &bytes.Buffer{})

	assert.ErrorIs(t, cli.Run(ctx, "sideways", nil), ErrUnknownAction)
	assert.ErrorContains(t, cli.Run(ctx, "steps", nil), "exactly one argument")
	assert.ErrorContains(t, cli.Run(ctx, "steps", []string{"0"}), "invalid step count")
	assert.ErrorContains(t, cli.Run(ctx, "goto", []string{"-1"}), "invalid version")
	assert.ErrorContains(t, cli.Run(ctx, "force", []string{"x"}), "invalid version")
}
