// Package normalizer maps raw observations onto the canonical record schema.
package normalizer

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/heroes"
	"github.com/ow2stats/herostats/internal/stats"
)

// Normalizer validates observations against the hero vocabulary and attaches
// the configuration's dimensional fields. It is stateless and safe for
// concurrent use.
type Normalizer struct {
	vocab  heroes.Vocabulary
	logger *zap.Logger
}

// New builds a Normalizer over the given vocabulary.
func New(vocab heroes.Vocabulary, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{vocab: vocab, logger: logger}
}

// Normalize produces a HeroStatRecord or a ValidationError. Out-of-range
// rates that survived extraction are a validation failure, never a silent
// clamp. The observedAt timestamp is the as-of time the page was read.
func (n *Normalizer) Normalize(
	obs stats.RawObservation,
	cfg stats.StatConfiguration,
	observedAt time.Time,
) (stats.HeroStatRecord, error) {
	hero, ok := n.vocab.Canonical(obs.Hero)
	if !ok {
		return stats.HeroStatRecord{}, &stats.ValidationError{
			Hero:   obs.Hero,
			Reason: "hero does not map to a known canonical identifier",
		}
	}
	if obs.PickRate == nil && obs.WinRate == nil {
		return stats.HeroStatRecord{}, &stats.ValidationError{
			Hero:   obs.Hero,
			Reason: "no usable data: both rate fields are null",
		}
	}
	pickRate, err := validateRate("pick rate", obs.PickRate)
	if err != nil {
		return stats.HeroStatRecord{}, &stats.ValidationError{Hero: obs.Hero, Reason: err.Error()}
	}
	winRate, err := validateRate("win rate", obs.WinRate)
	if err != nil {
		return stats.HeroStatRecord{}, &stats.ValidationError{Hero: obs.Hero, Reason: err.Error()}
	}

	tier := strings.ToLower(strings.TrimSpace(cfg.Tier))
	if tier == "" {
		tier = "all"
	}

	return stats.HeroStatRecord{
		HeroID:     hero.ID,
		HeroClass:  hero.Class,
		PickRate:   pickRate,
		WinRate:    winRate,
		Region:     strings.ToLower(cfg.Region),
		Platform:   strings.ToLower(cfg.Platform),
		Gamemode:   strings.ToLower(cfg.Gamemode),
		Map:        strings.ToLower(cfg.Map),
		MapType:    MapType(cfg.Map),
		Tier:       tier,
		ObservedAt: observedAt.UTC(),
	}, nil
}

// validateRate copies the value so the record never aliases extractor memory.
func validateRate(field string, v *float64) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if *v < 0 || *v > 100 {
		return nil, fmt.Errorf("%s %.2f outside [0,100]", field, *v)
	}
	value := *v
	return &value, nil
}
