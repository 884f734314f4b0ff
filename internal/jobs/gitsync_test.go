package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/wikiops/internal/telemetry"
)

// fakeGit отвечает на команды git по префиксу аргументов.
type fakeGit struct {
	calls     []string
	responses map[string]string
	fail      map[string]error
}

func (f *fakeGit) run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := strings.Join(args, " ")
	f.calls = append(f.calls, cmd)
	for prefix, err := range f.fail {
		if strings.HasPrefix(cmd, prefix) {
			return []byte("fatal: could not read from remote repository\nmore"), err
		}
	}
	for prefix, out := range f.responses {
		if strings.HasPrefix(cmd, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func newTestGitSync(fg *fakeGit) *GitSync {
	g := NewGitSync(GitSyncConfig{Dir: "/srv/wiki", Branch: "main", Logger: telemetry.Discard()})
	g.run = fg.run
	return g
}

func TestGitSync_Execute(t *testing.T) {
	fg := &fakeGit{responses: map[string]string{
		"rev-parse --is-inside-work-tree": "true\n",
		"rev-parse --short HEAD":          "abc1234\n",
	}}
	g := newTestGitSync(fg)

	require.NoError(t, g.Execute(context.Background()))
	assert.Equal(t, []string{
		"rev-parse --is-inside-work-tree",
		"rev-parse --short HEAD",
		"fetch --prune origin main",
		"reset --hard origin/main",
		"rev-parse --short HEAD",
	}, fg.calls)
}

func TestGitSync_ValidateHasNoSideEffects(t *testing.T) {
	fg := &fakeGit{responses: map[string]string{
		"rev-parse --is-inside-work-tree": "true\n",
		"status --porcelain":              " M Home.md\n?? Draft.md\n",
	}}
	g := newTestGitSync(fg)

	require.NoError(t, g.Validate(context.Background()))
	assert.Equal(t, []string{
		"rev-parse --is-inside-work-tree",
		"fetch --dry-run origin main",
		"status --porcelain",
	}, fg.calls)
	for _, c := range fg.calls {
		assert.NotContains(t, c, "reset")
	}
}

func TestGitSync_FetchFailure(t *testing.T) {
	fg := &fakeGit{
		responses: map[string]string{"rev-parse --is-inside-work-tree": "true\n"},
		fail:      map[string]error{"fetch": errors.New("exit status 128")},
	}
	g := newTestGitSync(fg)

	err := g.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git fetch")
	assert.Contains(t, err.Error(), "could not read from remote repository")
	assert.NotContains(t, err.Error(), "more")
	assert.NotContains(t, fg.calls, "reset --hard origin/main")
}

func TestGitSync_NotAWorkTree(t *testing.T) {
	fg := &fakeGit{fail: map[string]error{"rev-parse": errors.New("exit status 128")}}
	g := newTestGitSync(fg)

	assert.Error(t, g.Execute(context.Background()))
	assert.Error(t, g.Validate(context.Background()))
}

func TestGitSync_NoDir(t *testing.T) {
	g := NewGitSync(GitSyncConfig{Logger: telemetry.Discard()})
	assert.Error(t, g.Execute(context.Background()))
}

func TestGitSync_Cancelled(t *testing.T) {
	fg := &fakeGit{fail: map[string]error{"rev-parse": errors.New("signal: killed")}}
	g := newTestGitSync(fg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.Execute(ctx), context.Canceled)
}
