package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// runner выполняет команду в каталоге dir и возвращает объединённый вывод.
type runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd.CombinedOutput()
}

// GitSync приводит рабочую копию вики к состоянию удалённой ветки.
type GitSync struct {
	dir    string
	remote string
	branch string
	git    string
	run    runner
	logger *slog.Logger
}

// GitSyncConfig — конфигурация GitSync.
type GitSyncConfig struct {
	Dir    string // рабочая копия
	Remote string // default: "origin"
	Branch string // default: "main"
	Git    string // путь к git (default: "git")
	Logger *slog.Logger
}

// NewGitSync создаёт GitSync.
func NewGitSync(cfg GitSyncConfig) *GitSync {
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Git == "" {
		cfg.Git = "git"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GitSync{
		dir:    cfg.Dir,
		remote: cfg.Remote,
		branch: cfg.Branch,
		git:    cfg.Git,
		run:    execRunner,
		logger: cfg.Logger.With("job", WikiSync),
	}
}

// Execute выполняет fetch и жёсткий reset на удалённую ветку.
// Локальные изменения в рабочей копии теряются.
func (g *GitSync) Execute(ctx context.Context) error {
	if err := g.checkWorkTree(ctx); err != nil {
		return err
	}

	before, _ := g.head(ctx)

	if _, err := g.gitCmd(ctx, "fetch", "--prune", g.remote, g.branch); err != nil {
		return err
	}
	if _, err := g.gitCmd(ctx, "reset", "--hard", g.remote+"/"+g.branch); err != nil {
		return err
	}

	after, err := g.head(ctx)
	if err != nil {
		return err
	}

	g.logger.Info("wiki synchronized",
		"dir", g.dir,
		"branch", g.branch,
		"from", before,
		"to", after,
		"changed", before != after,
	)
	return nil
}

// Validate проверяет, что рабочая копия на месте и удалённая ветка доступна.
// Ничего не меняет: fetch выполняется с --dry-run.
func (g *GitSync) Validate(ctx context.Context) error {
	if err := g.checkWorkTree(ctx); err != nil {
		return err
	}

	out, err := g.gitCmd(ctx, "fetch", "--dry-run", g.remote, g.branch)
	if err != nil {
		return err
	}

	status, err := g.gitCmd(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}

	g.logger.Info("wiki sync dry run",
		"dir", g.dir,
		"branch", g.branch,
		"incoming", len(bytes.TrimSpace(out)) > 0,
		"local_changes", countLines(status),
	)
	return nil
}

func (g *GitSync) checkWorkTree(ctx context.Context) error {
	if g.dir == "" {
		return fmt.Errorf("wiki directory is not configured")
	}
	out, err := g.gitCmd(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return fmt.Errorf("%s is not a git work tree: %w", g.dir, err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("%s is not a git work tree", g.dir)
	}
	return nil
}

func (g *GitSync) head(ctx context.Context) (string, error) {
	out, err := g.gitCmd(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *GitSync) gitCmd(ctx context.Context, args ...string) ([]byte, error) {
	out, err := g.run(ctx, g.dir, g.git, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, firstLine(out))
	}
	return out, nil
}

func countLines(b []byte) int {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0
	}
	return bytes.Count(b, []byte("\n")) + 1
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
