package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/record-workflow/internal/domain/access"
)

// policyFile is the on-disk shape of the permission table:
//
//	permissions:
//	  submit: [any]
//	  assign: [admin, manager]
type policyFile struct {
	Permissions map[string][]string `yaml:"permissions"`
}

// LoadPolicy reads a permission table. Operations the file leaves out keep
// their default roles. An empty path returns the default table.
func LoadPolicy(path string) (access.Table, error) {
	table := access.DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data, table)
}

// ParsePolicy overlays the permissions in data onto base
func ParsePolicy(data []byte, base access.Table) (access.Table, error) {
	var pf policyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	known := make(map[access.Operation]bool)
	for _, op := range access.Operations() {
		known[op] = true
	}

	out := make(access.Table, len(base))
	for op, roles := range base {
		out[op] = append([]string(nil), roles...)
	}
	for name, roles := range pf.Permissions {
		op := access.Operation(name)
		if !known[op] {
			return nil, fmt.Errorf("policy file: unknown operation %q", name)
		}
		out[op] = roles
	}
	return out, nil
}
