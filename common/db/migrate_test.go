package db

import (
	"io/fs"
	"testing"

	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_RejectsUnknownCommand(t *testing.T) {
	cfg := &config.Config{}
	err := Migrate(cfg, logger.Discard(), "sideways", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown migrate command")
}

func TestMigrate_ForceRequiresVersion(t *testing.T) {
	cfg := &config.Config{}
	err := Migrate(cfg, logger.Discard(), "force", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version number")
}

func TestMigrationSource_Embedded(t *testing.T) {
	src, err := migrationSource(&config.Config{})
	require.NoError(t, err)

	files, err := fs.Glob(src, "*.sql")
	require.NoError(t, err)
	assert.Contains(t, files, "000001_materials.up.sql")
	assert.Contains(t, files, "000001_materials.down.sql")
}
