// Package normalize converts free-form spoken-language text into the
// canonical "item price [quantity]" line. The external correction
// service is cost-gated and every failure path degrades to returning
// the raw input unchanged.
package normalize

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"voice-order-logger/internal/observability/metrics"
)

// Corrector is the external text-correction service boundary.
// Correct returns the normalized line or an error; callers must treat
// any error as "use the raw input".
type Corrector interface {
	Correct(ctx context.Context, text string) (string, error)
}

var (
	asciiDigit = regexp.MustCompile(`\d`)
	// Chinese numerals and common financial variants. An utterance with
	// neither an ASCII digit nor one of these has no discoverable price
	// signal, so the paid corrector is skipped entirely.
	cjkNumeral = regexp.MustCompile(`[一二三四五六七八九零〇十百千萬亿億两兩壹貳參肆伍陸柒捌玖拾佰仟]`)
)

// Gate decides whether to invoke the corrector and applies fallback.
type Gate struct {
	corrector Corrector
	metrics   *metrics.Metrics
}

// NewGate creates a normalization gate. A nil corrector is valid and
// means "no credential available": every input passes through raw.
func NewGate(corrector Corrector) *Gate {
	return &Gate{
		corrector: corrector,
		metrics:   metrics.DefaultMetrics,
	}
}

// Normalize returns the canonical form of raw, or raw unchanged when
// the corrector is skipped, unavailable, or fails. It never returns an
// error and never returns an empty string for non-empty input.
func (g *Gate) Normalize(ctx context.Context, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}

	if !asciiDigit.MatchString(trimmed) && !cjkNumeral.MatchString(trimmed) {
		g.metrics.RecordNormalizeSkipped()
		return trimmed
	}

	if g.corrector == nil {
		g.metrics.RecordNormalizeFallback("no_corrector")
		return trimmed
	}

	normalized, err := g.corrector.Correct(ctx, trimmed)
	if err != nil {
		log.Debug().Err(err).Str("text", trimmed).Msg("correction failed, falling back to raw text")
		g.metrics.RecordNormalizeFallback("corrector_error")
		return trimmed
	}

	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		g.metrics.RecordNormalizeFallback("empty_reply")
		return trimmed
	}

	g.metrics.RecordNormalizeCorrected()
	return normalized
}
