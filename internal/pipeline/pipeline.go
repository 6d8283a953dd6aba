// Package pipeline turns an uploaded meal image into per-item nutrition
// records. Two strategies share the same Estimator contract: a single
// schema-constrained call, or a recognition call followed by a text-only
// quantification call.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"nutriscan/internal/domain"
	"nutriscan/internal/inference"
	"nutriscan/internal/infra"
)

// Mode selects the estimation strategy.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeSplit  Mode = "split"
)

// ParseMode accepts "single" or "split" (case-insensitive).
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeSplit:
		return ModeSplit, nil
	default:
		return "", fmt.Errorf("pipeline: unsupported mode %q", raw)
	}
}

// Estimator produces nutrition records for one uploaded meal image.
type Estimator interface {
	Mode() Mode
	Estimate(ctx context.Context, image inference.Asset) ([]domain.NutritionRecord, error)
}

// Options configures New.
type Options struct {
	Locale language.Tag
	Logger *infra.Logger
}

// New returns the Estimator for mode backed by client.
func New(mode Mode, client inference.Client, opts Options) (Estimator, error) {
	if client == nil {
		return nil, fmt.Errorf("pipeline: inference client is required")
	}
	locale := opts.Locale
	if locale == language.Und {
		locale = DefaultLocale
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	p := promptsFor(locale)
	switch mode {
	case ModeSingle:
		return &SingleCall{client: client, prompts: p}, nil
	case ModeSplit:
		return &Split{client: client, prompts: p, logger: logger}, nil
	default:
		return nil, fmt.Errorf("pipeline: unsupported mode %q", mode)
	}
}
