package spec

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed entities/*.yaml
var builtin embed.FS

// Builtin returns the entity definitions shipped with the binary.
func Builtin() fs.FS {
	sub, err := fs.Sub(builtin, "entities")
	if err != nil {
		panic(fmt.Sprintf("spec: embedded entities: %v", err))
	}
	return sub
}

// Load parses every *.yaml file at the root of fsys as one entity spec and
// builds a registry from them.
func Load(fsys fs.FS, known Known) (*Registry, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list entity files: %w", err)
	}
	if len(names) == 0 {
		return nil, errors.New("no entity files found")
	}
	sort.Strings(names)

	specs := make([]*EntitySpec, 0, len(names))
	for _, name := range names {
		s, err := parseFile(fsys, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return NewRegistry(specs, known)
}

// MustLoad is Load for process start: a broken entity set is unrecoverable.
func MustLoad(fsys fs.FS, known Known) *Registry {
	r, err := Load(fsys, known)
	if err != nil {
		panic(fmt.Sprintf("spec: load entities: %v", err))
	}
	return r
}

func parseFile(fsys fs.FS, name string) (*EntitySpec, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s EntitySpec
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name[:len(name)-len(path.Ext(name))]
	}
	return &s, nil
}
