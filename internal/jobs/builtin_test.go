package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/wikiops/internal/registry"
	"github.com/shaiso/wikiops/internal/telemetry"
)

func TestDefaultDefinitionsFormValidRegistry(t *testing.T) {
	handlers := Handlers(
		NewGitSync(GitSyncConfig{Dir: t.TempDir(), Logger: telemetry.Discard()}),
		NewIndexer(IndexerConfig{ContentDir: t.TempDir(), Logger: telemetry.Discard()}),
	)

	reg, err := registry.New(DefaultDefinitions(handlers)...)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	def, err := reg.Get(WikiSync)
	require.NoError(t, err)
	assert.True(t, def.ForbidsOverlap())
	assert.Same(t, handlers[WikiSync], def.Handler)
}
