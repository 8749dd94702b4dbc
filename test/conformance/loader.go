package conformance

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// TestPath is the fixture directory, relative to this package.
const TestPath = "testdata"

// LoadedCase is a case with the file it came from.
type LoadedCase struct {
	File  string
	Suite string
	Case  Case
}

// LoadAll walks dir and loads every .yaml fixture in file name order.
func LoadAll(dir string) ([]LoadedCase, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".yaml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var loaded []LoadedCase
	for _, path := range files {
		suite, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		rel, _ := filepath.Rel(dir, path)
		for _, c := range suite.Tests {
			loaded = append(loaded, LoadedCase{File: rel, Suite: suite.Name, Case: c})
		}
	}
	return loaded, nil
}

// LoadFile parses one fixture file. Unknown fields are errors so typos in
// expectations do not silently pass.
func LoadFile(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var suite Suite
	if err := dec.Decode(&suite); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if suite.Name == "" {
		suite.Name = filepath.Base(path)
	}
	return &suite, nil
}
