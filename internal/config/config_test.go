package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFlat(t *testing.T) {
	s := Default()
	n, err := s.ReadFlat(strings.NewReader("CircleSize 42\nEtaGlass 1.6\nNotAKey 7\nPxPerMM 100\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, n, "unknown keys are not counted")
	assert.Equal(t, 42, s.CircleSize)
	assert.Equal(t, 1.6, s.EtaGlass)
	assert.Equal(t, 100.0, s.PxPerMM)
	// untouched keys keep defaults
	assert.Equal(t, 0.951, s.ChannelWallThickness)
	assert.Equal(t, 61, s.DICRegionSize)
}

func TestLoadMissingFile(t *testing.T) {
	s := Default()
	n, err := s.Load(filepath.Join(t.TempDir(), "missing.cfg"))
	assert.Error(t, err)
	assert.Equal(t, -1, n)
	assert.Equal(t, *Default(), *s)
}

func TestSaveLoadFormats(t *testing.T) {
	for _, name := range []string{"settings.cfg", "settings.yaml", "settings.ini"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			src := Default()
			src.HMaxParam = 150
			src.EtaLiquid = 1.333
			require.NoError(t, src.Save(path))

			dst := Default()
			n, err := dst.Load(path)
			require.NoError(t, err)
			assert.Greater(t, n, 0)
			assert.Equal(t, *src, *dst)
		})
	}
}

func TestLoadINIPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.ini")
	require.NoError(t, os.WriteFile(path, []byte("[settings]\nCircleThreshold = 9\n"), 0644))

	s := Default()
	n, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 9, s.CircleThreshold)
}

func TestLoadCountsKeysEqualToDefaults(t *testing.T) {
	fields := reflect.TypeOf(Settings{}).NumField()
	for _, name := range []string{"settings.cfg", "settings.yaml", "settings.ini"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Default().Save(path))

			n, err := Default().Load(path)
			require.NoError(t, err)
			assert.Equal(t, fields, n)
		})
	}

	path := filepath.Join(t.TempDir(), "same.ini")
	require.NoError(t, os.WriteFile(path, []byte("[settings]\nCircleThreshold = 4\nEtaGlass = 1.6\n"), 0644))
	s := Default()
	n, err := s.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 4, s.CircleThreshold)
	assert.Equal(t, 1.6, s.EtaGlass)
}

func TestScale(t *testing.T) {
	s := Default()
	assert.InDelta(t, 0.8, s.PxToReal(50), 1e-12)
	assert.InDelta(t, 50, s.RealToPx(s.PxToReal(50)), 1e-12)
	assert.InDelta(t, 0.951+1.5, s.DefaultHeight(), 1e-12)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	s := Default()
	s.PxPerMM = 0
	assert.Error(t, s.Validate())

	s = Default()
	s.EtaLiquid = -1
	assert.Error(t, s.Validate())

	s = Default()
	s.DICRegionSize = 1
	assert.Error(t, s.Validate())
}
