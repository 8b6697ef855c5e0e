package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"particle-height/internal/config"
	"particle-height/internal/finder"
	"particle-height/internal/particle"
	"particle-height/pkg/geometry"
)

func TestParseHeights(t *testing.T) {
	hs, err := parseHeights("0.5, 1,1.5")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1, 1.5}, hs)

	_, err = parseHeights("")
	assert.Error(t, err)
	_, err = parseHeights("0.5,x")
	assert.Error(t, err)
}

func TestRowAxes(t *testing.T) {
	cfg := config.Default()
	cfg.ChannelWallThickness = 1
	assert.Equal(t, []string{"3", "2", "0.5", "1", "0.75"}, row(3, cfg, 1, 2, 1.5, 0.75))
}

func TestFirstParticleZIncludesWall(t *testing.T) {
	cfg := config.Default()
	set := particle.NewSet(cfg, []geometry.Circle{
		geometry.NewCircle(100, 100, 50),
		geometry.NewCircle(300, 100, 50),
	})
	res := &finder.Result{Set: set}

	_, ok := firstParticleZ(res)
	assert.False(t, ok, "unfitted particle")

	set.Particles[0].Position.Z = 2.5
	set.Particles[0].HeightKnown = true
	set.Particles[1].Position.Z = 1.2
	set.Particles[1].HeightKnown = true
	z, ok := firstParticleZ(res)
	require.True(t, ok)
	assert.Equal(t, 2.5, z)
	assert.NotEqual(t, set.Particles[0].Height(), z)

	_, ok = firstParticleZ(&finder.Result{Set: particle.NewSet(cfg, nil)})
	assert.False(t, ok)
}

func TestFlagGiven(t *testing.T) {
	fs := flag.NewFlagSet("particleheight", flag.ContinueOnError)
	fs.String("settings", "settings", "")
	fs.Bool("hough", false, "")
	require.NoError(t, fs.Parse([]string{"-hough"}))
	assert.False(t, flagGiven(fs, "settings"))
	assert.True(t, flagGiven(fs, "hough"))

	fs = flag.NewFlagSet("particleheight", flag.ContinueOnError)
	fs.String("settings", "settings", "")
	require.NoError(t, fs.Parse([]string{"-settings", "settings"}))
	assert.True(t, flagGiven(fs, "settings"), "explicit value equal to the default")
}
