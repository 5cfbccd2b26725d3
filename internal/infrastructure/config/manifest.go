package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Manifest lists the programs spawned at boot. A name may be a glob such
// as "fault*", which boots every matching program.
//
//	programs:
//	  - name: forktree
//	  - name: sleeper
//	    count: 2
type Manifest struct {
	Programs []ProgramEntry `yaml:"programs" toml:"programs" json:"programs"`
}

// ProgramEntry names one built-in program and how many copies to spawn.
type ProgramEntry struct {
	Name  string `yaml:"name" toml:"name" json:"name"`
	Count int    `yaml:"count,omitempty" toml:"count,omitempty" json:"count,omitempty"`
}

// Instances is the number of copies, at least one.
func (p ProgramEntry) Instances() int {
	return max(p.Count, 1)
}

// Format is a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks the encoding from a file extension, YAML by default.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

var strictJSON = sonic.Config{DisallowUnknownFields: true}.Froze()

// ParseManifest decodes a YAML manifest document.
func ParseManifest(data []byte) (*Manifest, error) {
	return ParseManifestFormat(data, FormatYAML)
}

// ParseManifestFormat decodes a manifest in the given encoding. Unknown
// fields are rejected in every encoding.
func ParseManifestFormat(data []byte, f Format) (*Manifest, error) {
	var m Manifest
	var err error
	switch f {
	case FormatYAML:
		err = yaml.UnmarshalWithOptions(data, &m, yaml.DisallowUnknownField())
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&m)
	case FormatJSON:
		err = strictJSON.Unmarshal(data, &m)
	default:
		err = fmt.Errorf("unknown format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	for i, p := range m.Programs {
		if p.Name == "" {
			return nil, fmt.Errorf("parse manifest: program %d has no name", i)
		}
		if p.Count < 0 {
			return nil, fmt.Errorf("parse manifest: program %q has negative count", p.Name)
		}
	}
	return &m, nil
}

// LoadManifest reads a manifest file, choosing the decoder by extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifestFormat(data, FormatOf(path))
}

// ManifestOf builds a manifest spawning each named program once.
func ManifestOf(names ...string) *Manifest {
	m := &Manifest{Programs: make([]ProgramEntry, 0, len(names))}
	for _, n := range names {
		m.Programs = append(m.Programs, ProgramEntry{Name: n})
	}
	return m
}

// Marshal encodes the manifest as YAML.
func (m *Manifest) Marshal() ([]byte, error) {
	return m.MarshalFormat(FormatYAML)
}

// MarshalFormat encodes the manifest in f.
func (m *Manifest) MarshalFormat(f Format) ([]byte, error) {
	switch f {
	case FormatYAML:
		return yaml.Marshal(m)
	case FormatTOML:
		return toml.Marshal(m)
	case FormatJSON:
		return sonic.ConfigStd.MarshalIndent(m, "", "  ")
	}
	return nil, fmt.Errorf("unknown format %q", f)
}
