// Package oracle resolves how large a language model is, in billions of
// parameters. The coordinator turns that size into the model's kudos
// multiplier, so every resolver here answers the same question: given a
// model id, how many billion parameters does it carry.
package oracle

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// Static serves fixed sizes. Used in tests and air-gapped deployments where
// neither a reference file nor the hub is available.
type Static map[string]float64

func (s Static) ParametersBillions(_ domain.Context, model string) (float64, error) {
	if p, ok := s[model]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("%w: model %s", domain.ErrNotFound, model)
}

// Layered tries each resolver in order and returns the first answer. The
// last failure is what the caller sees when nothing resolves.
type Layered []domain.ModelOracle

func (l Layered) ParametersBillions(ctx domain.Context, model string) (float64, error) {
	var lastErr error
	for _, o := range l {
		p, err := o.ParametersBillions(ctx, model)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: model %s", domain.ErrNotFound, model)
	}
	return 0, lastErr
}

// NameSize resolves a model's size from its id alone. It anchors the
// layered chain so workers serving known-shape models keep popping jobs
// while the hub is unreachable.
type NameSize struct{}

func (NameSize) ParametersBillions(_ domain.Context, model string) (float64, error) {
	if b, ok := SizeFromName(model); ok {
		return b, nil
	}
	return 0, fmt.Errorf("%w: no size in model id %s", domain.ErrNotFound, model)
}

// Model ids usually encode their size: gpt-neo-2.7B, fairseq-dense-13B,
// opt-350m.
var sizeSuffix = regexp.MustCompile(`(?i)[-_.](\d+(?:\.\d+)?)([bm])\b`)

// SizeFromName extracts a parameter count, in billions, from a model id.
func SizeFromName(model string) (float64, bool) {
	m := sizeSuffix.FindStringSubmatch(model)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "m" || m[2] == "M" {
		n /= 1000
	}
	return n, true
}
