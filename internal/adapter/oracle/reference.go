package oracle

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

//go:embed models.yaml
var bundledReference []byte

// Reference answers from a curated model reference table, so well-known
// horde models resolve without any network traffic.
type Reference struct {
	models map[string]float64
}

type referenceFile struct {
	Models map[string]struct {
		Parameters float64 `yaml:"parameters"`
	} `yaml:"models"`
}

// DefaultReference parses the reference table bundled with the binary.
func DefaultReference() (*Reference, error) {
	return parseReference(bundledReference)
}

// LoadReference reads a YAML reference file of the shape:
//
//	models:
//	  EleutherAI/gpt-neo-2.7B:
//	    parameters: 2.7
func LoadReference(path string) (*Reference, error) {
	// #nosec G304 -- the reference file path comes from configuration
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("model reference file not found: %s", path)
		}
		return nil, err
	}
	ref, err := parseReference(b)
	if err != nil {
		return nil, fmt.Errorf("yaml parse %s: %w", path, err)
	}
	return ref, nil
}

func parseReference(b []byte) (*Reference, error) {
	var doc referenceFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	ref := &Reference{models: make(map[string]float64, len(doc.Models))}
	for model, entry := range doc.Models {
		if entry.Parameters > 0 {
			ref.models[model] = entry.Parameters
		}
	}
	return ref, nil
}

func (r *Reference) ParametersBillions(_ domain.Context, model string) (float64, error) {
	if p, ok := r.models[model]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: model %s not in reference", domain.ErrNotFound, model)
}

// Len reports how many models the reference knows.
func (r *Reference) Len() int {
	return len(r.models)
}
