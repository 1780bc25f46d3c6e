// Package manifest parses app manifests and seeds descriptors into the
// record store at startup.
package manifest

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/latticehq/lattice/internal/shared/types"
)

// File is the on-disk manifest shape (<app>.app.yaml).
type File struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	Version      string             `yaml:"version"`
	Module       string             `yaml:"module"`
	Outputs      []types.Output     `yaml:"outputs"`
	Methods      []string           `yaml:"methods"`
	Dependencies types.Dependencies `yaml:"dependencies"`
}

// Parse decodes and validates one manifest.
func Parse(data []byte) (*File, error) {
	var mf File
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if strings.TrimSpace(mf.ID) == "" {
		return nil, fmt.Errorf("manifest missing app id")
	}
	seen := make(map[string]struct{}, len(mf.Outputs))
	for i := range mf.Outputs {
		out := &mf.Outputs[i]
		if out.OutputID == "" {
			return nil, fmt.Errorf("manifest %s: output missing id", mf.ID)
		}
		if _, dup := seen[out.OutputID]; dup {
			return nil, fmt.Errorf("manifest %s: duplicate output %s", mf.ID, out.OutputID)
		}
		seen[out.OutputID] = struct{}{}
		out.AppID = mf.ID
		if out.AccessLevel == "" {
			out.AccessLevel = types.AccessPublic
		}
		if out.AccessLevel != types.AccessPublic && out.AccessLevel != types.AccessRequiresPermission {
			return nil, fmt.Errorf("manifest %s: output %s has invalid access level %q", mf.ID, out.OutputID, out.AccessLevel)
		}
	}
	return &mf, nil
}

// App converts a manifest to its app descriptor.
func (mf *File) App() *types.App {
	return &types.App{
		ID:        mf.ID,
		Name:      mf.Name,
		Version:   mf.Version,
		ModuleRef: mf.Module,
		Manifest: types.Manifest{
			Outputs:      mf.Outputs,
			Methods:      mf.Methods,
			Dependencies: mf.Dependencies,
		},
	}
}
