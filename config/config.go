// Package config loads an mxdb environment's open-time settings from YAML,
// the way SimonWaldherr-tinySQL drives its own storage settings off a
// gopkg.in/yaml.v3-decoded file instead of hand-written Set* call sites.
// Loading a file does not touch the store itself; the on-disk meta page
// stays the single source of truth for geometry and page size once an
// environment has been created.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/andrelio/mxdb"
)

// Geometry mirrors the arguments to Env.SetGeometry.
type Geometry struct {
	Lower           int64 `yaml:"lower"`
	Now             int64 `yaml:"now"`
	Upper           int64 `yaml:"upper"`
	GrowthStep      int64 `yaml:"growthStep"`
	ShrinkThreshold int64 `yaml:"shrinkThreshold"`
}

// Options is the YAML-decodable mirror of the knobs Env exposes through its
// Set* methods, applied before Open.
type Options struct {
	Path       string    `yaml:"path"`
	PageSize   uint32    `yaml:"pageSize"`
	MaxReaders uint32    `yaml:"maxReaders"`
	MaxDBs     uint32    `yaml:"maxDBs"`
	Geometry   *Geometry `yaml:"geometry"`
	Flags      []string  `yaml:"flags"`
	SyncBytes  uint      `yaml:"syncBytes"`
	Mode       uint32    `yaml:"mode"`
}

// flagNames maps lower-case YAML flag names onto the untyped Env flag
// constants. A listed name is accepted even where the engine does not act
// on the flag (lifo/liforeclaim set LifoReclaim, which has no effect); an
// unrecognized name is a Load error rather than a silently ignored knob.
var flagNames = map[string]uint{
	"nosubdir":        mxdb.NoSubdir,
	"readonly":        mxdb.ReadOnly,
	"exclusive":       mxdb.Exclusive,
	"accede":          mxdb.Accede,
	"writemap":        mxdb.WriteMap,
	"nostickythreads": mxdb.NoStickyThreads,
	"noreadahead":     mxdb.NoReadAhead,
	"nomeminit":       mxdb.NoMemInit,
	"liforeclaim":     mxdb.LifoReclaim,
	"lifo":            mxdb.LifoReclaim,
	"pageperturb":     mxdb.PagePerturb,
	"nometasync":      mxdb.NoMetaSync,
	"safenosync":      mxdb.SafeNoSync,
	"utterlynosync":   mxdb.UtterlyNoSync,
}

// Load reads and validates a YAML settings file.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if opts.Path == "" {
		return nil, fmt.Errorf("config: %s: path is required", path)
	}

	for _, name := range opts.Flags {
		if _, ok := flagNames[name]; !ok {
			return nil, fmt.Errorf("config: %s: unknown flag %q", path, name)
		}
	}

	return &opts, nil
}

// flagMask ORs together the untyped Env flags named in Flags.
func (o *Options) flagMask() uint {
	var mask uint
	for _, name := range o.Flags {
		mask |= flagNames[name]
	}
	return mask
}

// Apply calls the Set* methods Options describes against env, in the order
// Env documents them to require (MaxDBs/MaxReaders/PageSize/Geometry before
// Open). It does not call Open itself — the caller still chooses mode and
// any Create flag explicitly.
func (o *Options) Apply(env *mxdb.Env) error {
	if o.MaxDBs > 0 {
		if err := env.SetMaxDBs(o.MaxDBs); err != nil {
			return fmt.Errorf("config: SetMaxDBs: %w", err)
		}
	}

	if o.MaxReaders > 0 {
		if err := env.SetMaxReaders(o.MaxReaders); err != nil {
			return fmt.Errorf("config: SetMaxReaders: %w", err)
		}
	}

	if o.Geometry != nil {
		pageSize := int(o.PageSize)
		if err := env.SetGeometry(
			o.Geometry.Lower,
			o.Geometry.Now,
			o.Geometry.Upper,
			o.Geometry.GrowthStep,
			o.Geometry.ShrinkThreshold,
			pageSize,
		); err != nil {
			return fmt.Errorf("config: SetGeometry: %w", err)
		}
	} else if o.PageSize > 0 {
		if err := env.SetPageSize(o.PageSize); err != nil {
			return fmt.Errorf("config: SetPageSize: %w", err)
		}
	}

	if o.SyncBytes > 0 {
		if err := env.SetSyncBytes(o.SyncBytes); err != nil {
			return fmt.Errorf("config: SetSyncBytes: %w", err)
		}
	}

	return nil
}

// OpenFlags returns the mode/flags pair Open expects, combining Flags with
// extra (typically mxdb.Create).
func (o *Options) OpenFlags(extra uint) (path string, flags uint, mode os.FileMode) {
	m := o.Mode
	if m == 0 {
		m = 0644
	}
	return o.Path, o.flagMask() | extra, os.FileMode(m)
}
