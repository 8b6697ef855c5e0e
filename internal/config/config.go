// Package config holds the run settings shared read-only by every stage of
// particle height recovery, and loads them from the flat settings file
// format or from YAML/INI files.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/gcfg.v1"
	"gopkg.in/yaml.v3"
)

// Settings is the flat set of named numeric parameters. Field names double
// as the keys of the flat settings file.
type Settings struct {
	// Image processing
	BackgroundThreshold int `yaml:"BackgroundThreshold"`
	OpenSize            int `yaml:"OpenSize"`
	OpenIter            int `yaml:"OpenIter"`
	CloseSize           int `yaml:"CloseSize"`
	CloseIter           int `yaml:"CloseIter"`
	CircleMinDist       int `yaml:"CircleMinDist"`
	CircleThreshold     int `yaml:"CircleThreshold"`
	CircleParam1        int `yaml:"CircleParam1"`
	CircleIntensity     int `yaml:"CircleIntensity"`
	CircleSize          int `yaml:"CircleSize"`
	CircleSizeRange     int `yaml:"CircleSizeRange"`
	HMaxParam           int `yaml:"HMaxParam"`

	// Optics and geometry, lengths in mm
	PxPerMM              float64 `yaml:"PxPerMM"`
	ChannelHeight        float64 `yaml:"ChannelHeight"`
	ChannelWallThickness float64 `yaml:"ChannelWallThickness"`
	ParticleRadiusPx     float64 `yaml:"ParticleRadiusPx"`
	EtaParticle          float64 `yaml:"EtaParticle"`
	EtaLiquid            float64 `yaml:"EtaLiquid"`
	EtaGlass             float64 `yaml:"EtaGlass"`
	DICRegionSize        int     `yaml:"DICRegionSize"`

	// Optimizer
	XtolAbsSingle  float64 `yaml:"XtolAbsSingle"`
	XtolAbsGroup   float64 `yaml:"XtolAbsGroup"`
	InitStepSingle float64 `yaml:"InitStepSingle"`
	InitStepGroup  float64 `yaml:"InitStepGroup"`
	OverlapPenalty int     `yaml:"OverlapPenalty"`
	MaxEvals       int     `yaml:"MaxEvals"`      // 0 means no evaluation budget
	FastTransform  int     `yaml:"FastTransform"` // non-zero selects the radius lookup table

	// Experimental
	ContactDistance float64 `yaml:"ContactDistance"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		BackgroundThreshold: 10,
		OpenSize:            2,
		OpenIter:            7,
		CloseSize:           1,
		CloseIter:           7,
		CircleMinDist:       50,
		CircleThreshold:     4,
		CircleParam1:        200,
		CircleIntensity:     235,
		CircleSize:          50,
		CircleSizeRange:     8,
		HMaxParam:           200,

		PxPerMM:              62.5,
		ChannelHeight:        3.0,
		ChannelWallThickness: 0.951,
		ParticleRadiusPx:     50.0,
		EtaParticle:          1.49569,
		EtaLiquid:            1.43935,
		EtaGlass:             1.50999,
		DICRegionSize:        61,

		XtolAbsSingle:  0.001,
		XtolAbsGroup:   0.001,
		InitStepSingle: 0.1,
		InitStepGroup:  0.1,
		OverlapPenalty: 1000,

		ContactDistance: 1.7,
	}
}

// Clone returns an independent copy, used when a caller needs to vary
// parameters (calibration) without touching the shared settings.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}

// PxToReal converts a pixel length to mm.
func (s *Settings) PxToReal(px float64) float64 {
	return px / s.PxPerMM
}

// RealToPx converts a mm length to pixels.
func (s *Settings) RealToPx(mm float64) float64 {
	return mm * s.PxPerMM
}

// DefaultHeight is the starting z of a particle: the middle of the channel,
// measured from the pattern plane.
func (s *Settings) DefaultHeight() float64 {
	return s.ChannelWallThickness + 0.5*s.ChannelHeight
}

// Validate rejects settings that make the optical model meaningless.
func (s *Settings) Validate() error {
	if s.PxPerMM <= 0 {
		return fmt.Errorf("PxPerMM must be positive, got %g", s.PxPerMM)
	}
	if s.ParticleRadiusPx <= 0 {
		return fmt.Errorf("ParticleRadiusPx must be positive, got %g", s.ParticleRadiusPx)
	}
	if s.EtaParticle <= 0 || s.EtaLiquid <= 0 || s.EtaGlass <= 0 {
		return fmt.Errorf("refraction indices must be positive, got particle=%g liquid=%g glass=%g",
			s.EtaParticle, s.EtaLiquid, s.EtaGlass)
	}
	if s.ChannelHeight <= 0 || s.ChannelWallThickness < 0 {
		return fmt.Errorf("invalid channel geometry: height=%g wall=%g", s.ChannelHeight, s.ChannelWallThickness)
	}
	if s.DICRegionSize < 3 {
		return fmt.Errorf("DICRegionSize must be at least 3, got %d", s.DICRegionSize)
	}
	return nil
}

// Format selects the on-disk encoding of a settings file.
type Format int

const (
	// FormatFlat is "Name value" per line.
	FormatFlat Format = iota
	// FormatYAML is a YAML mapping of the same names.
	FormatYAML
	// FormatINI is a gcfg file with a [settings] section.
	FormatINI
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".ini", ".gcfg":
		return FormatINI
	default:
		return FormatFlat
	}
}

// Load reads settings from path into s and returns the number of values
// applied. Keys missing from the file keep their current values. A file
// that cannot be opened or parsed returns -1 and leaves s untouched.
func (s *Settings) Load(path string) (int, error) {
	switch FormatOf(path) {
	case FormatYAML:
		return s.loadYAML(path)
	case FormatINI:
		return s.loadINI(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return -1, fmt.Errorf("failed to open settings: %w", err)
	}
	defer f.Close()

	return s.ReadFlat(f)
}

// ReadFlat applies "Name value" pairs from r. Unknown keys are skipped.
// Reading stops at the first token pair whose value is not a number.
func (s *Settings) ReadFlat(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	n := 0
	for sc.Scan() {
		key := sc.Text()
		if !sc.Scan() {
			break
		}
		value, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			break
		}
		if s.set(key, value) {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("failed to read settings: %w", err)
	}
	return n, nil
}

// Save writes s to path in the format chosen by its extension.
func (s *Settings) Save(path string) error {
	var data []byte
	switch FormatOf(path) {
	case FormatYAML:
		out, err := yaml.Marshal(s)
		if err != nil {
			return fmt.Errorf("error marshaling settings: %w", err)
		}
		data = out
	case FormatINI:
		var b strings.Builder
		b.WriteString("[settings]\n")
		s.each(func(name string, v reflect.Value) {
			fmt.Fprintf(&b, "%s = %s\n", name, formatValue(v))
		})
		data = []byte(b.String())
	default:
		var b strings.Builder
		s.WriteFlat(&b)
		data = []byte(b.String())
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing settings file: %w", err)
	}
	return nil
}

// WriteFlat writes every setting as "Name value" lines.
func (s *Settings) WriteFlat(w io.Writer) {
	s.each(func(name string, v reflect.Value) {
		fmt.Fprintf(w, "%s %s\n", name, formatValue(v))
	})
}

func (s *Settings) loadYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return -1, fmt.Errorf("error reading settings file: %w", err)
	}

	var keys map[string]any
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return -1, fmt.Errorf("error parsing settings file: %w", err)
	}
	next := *s
	if err := yaml.Unmarshal(data, &next); err != nil {
		return -1, fmt.Errorf("error parsing settings file: %w", err)
	}
	*s = next

	n := 0
	for k := range keys {
		if s.has(k) {
			n++
		}
	}
	return n, nil
}

type iniFile struct {
	Settings Settings
}

func (s *Settings) loadINI(path string) (int, error) {
	file := iniFile{Settings: *s}
	if err := gcfg.ReadFileInto(&file, path); err != nil {
		return -1, fmt.Errorf("error parsing settings file: %w", err)
	}

	// gcfg does not report which variables were present. Read again over a
	// baseline differing in every field: a field is set by the file exactly
	// when both reads agree.
	probe := iniFile{Settings: shifted(*s)}
	if err := gcfg.ReadFileInto(&probe, path); err != nil {
		return -1, fmt.Errorf("error parsing settings file: %w", err)
	}
	*s = file.Settings

	n := 0
	a, b := reflect.ValueOf(file.Settings), reflect.ValueOf(probe.Settings)
	for i := 0; i < a.NumField(); i++ {
		if a.Field(i).Interface() == b.Field(i).Interface() {
			n++
		}
	}
	return n, nil
}

// shifted returns s with every numeric field changed by one.
func shifted(s Settings) Settings {
	v := reflect.ValueOf(&s).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Int:
			f.SetInt(f.Int() + 1)
		case reflect.Float64:
			f.SetFloat(f.Float() + 1)
		}
	}
	return s
}

func (s *Settings) each(fn func(name string, v reflect.Value)) {
	v := reflect.ValueOf(s).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		fn(t.Field(i).Name, v.Field(i))
	}
}

func (s *Settings) has(key string) bool {
	_, ok := reflect.TypeOf(*s).FieldByName(key)
	return ok
}

func (s *Settings) set(key string, value float64) bool {
	if !s.has(key) {
		return false
	}
	f := reflect.ValueOf(s).Elem().FieldByName(key)
	switch f.Kind() {
	case reflect.Int:
		f.SetInt(int64(value))
	case reflect.Float64:
		f.SetFloat(value)
	default:
		return false
	}
	return true
}

func formatValue(v reflect.Value) string {
	if v.Kind() == reflect.Int {
		return strconv.FormatInt(v.Int(), 10)
	}
	return strconv.FormatFloat(v.Float(), 'g', -1, 64)
}
