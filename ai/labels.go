package ai

import (
	"fmt"
	"strings"

	"github.com/poiesic/attestor/core"
)

// ParseEntailmentLabel maps a model-produced label onto core.EntailmentLabel.
// Common synonyms are accepted.
func ParseEntailmentLabel(s string) (core.EntailmentLabel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "support", "supports", "supported", "entailment", "entails":
		return core.EntailmentSupport, nil
	case "neutral", "unrelated", "unknown":
		return core.EntailmentNeutral, nil
	case "contradict", "contradicts", "contradiction", "contradicted":
		return core.EntailmentContradict, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// ClampScore limits a model-produced score to [0,1].
func ClampScore(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
