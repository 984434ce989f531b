// Package injection implements the three-layer prompt-injection detector:
// a compiled pattern catalogue, a weighted-sum heuristic, and an optional
// model-backed judge for borderline scores. The first two layers are
// synchronous and allocation-light so they can sit on the ingress hot path.
package injection

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Action is what the Conductor does with a detected message.
type Action string

const (
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
	ActionLog   Action = "log"
)

// Layer identifies which stage produced a verdict.
type Layer string

const (
	LayerNone Layer = "none"
	LayerL1   Layer = "l1"
	LayerL2   Layer = "l2"
	LayerL3   Layer = "l3"
)

// Judge is the optional L3 async classifier, backed by a cheap model call.
// Disabled by default.
type Judge interface {
	Classify(ctx context.Context, text string) (detected bool, err error)
}

const defaultHeuristicThreshold = 0.6

// Config constructs a Detector. Compiled once at startup; not
// hot-reloadable because the patterns are pre-compiled.
type Config struct {
	Enabled            bool
	Action             Action
	ExtraPatterns      []string
	HeuristicThreshold float64 // default 0.6 when zero
	LLMJudgeThreshold  float64 // lower bound of the L3 band; L3 disabled if Judge is nil
	Judge              Judge
}

// Detector runs L1 pattern matching and L2 heuristic scoring synchronously,
// and optionally hands borderline scores to an L3 judge.
type Detector struct {
	enabled            bool
	action             Action
	patterns           []*regexp.Regexp
	heuristicThreshold float64
	llmJudgeThreshold  float64
	judge              Judge
}

// New compiles extra patterns alongside the built-in catalogue.
func New(cfg Config) *Detector {
	threshold := cfg.HeuristicThreshold
	if threshold <= 0 {
		threshold = defaultHeuristicThreshold
	}
	patterns := make([]*regexp.Regexp, len(compiledBuiltins))
	copy(patterns, compiledBuiltins)
	for _, p := range cfg.ExtraPatterns {
		if p == "" {
			continue
		}
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		} else {
			// Not a valid regex; fall back to literal substring matching
			// so a typo'd extra pattern doesn't silently vanish.
			patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(p)))
		}
	}
	return &Detector{
		enabled:            cfg.Enabled,
		action:             cfg.Action,
		patterns:           patterns,
		heuristicThreshold: threshold,
		llmJudgeThreshold:  cfg.LLMJudgeThreshold,
		judge:              cfg.Judge,
	}
}

// Verdict is the outcome of inspecting one message.
type Verdict struct {
	Detected bool
	Score    float64
	Layer    Layer
	Action   Action
}

// InspectSync runs L1 then L2, synchronously. Returns a zero Verdict with
// Detected=false when the detector is disabled.
func (d *Detector) InspectSync(text string) Verdict {
	if !d.enabled {
		return Verdict{}
	}
	if d.matchesPattern(text) {
		return Verdict{Detected: true, Score: 1, Layer: LayerL1, Action: d.action}
	}
	score := d.heuristicScore(text)
	if score >= d.heuristicThreshold {
		return Verdict{Detected: true, Score: score, Layer: LayerL2, Action: d.action}
	}
	return Verdict{Detected: false, Score: score, Layer: LayerNone, Action: d.action}
}

// NeedsJudge reports whether v's score falls in the L3 band
// [llm_judge_threshold, heuristic_threshold) and a judge is configured.
func (d *Detector) NeedsJudge(v Verdict) bool {
	if d.judge == nil || v.Detected {
		return false
	}
	return v.Score >= d.llmJudgeThreshold && v.Score < d.heuristicThreshold
}

// InspectAsync runs the L3 judge. Only call when NeedsJudge reported true.
func (d *Detector) InspectAsync(ctx context.Context, text string) (Verdict, error) {
	detected, err := d.judge.Classify(ctx, text)
	if err != nil {
		return Verdict{}, err
	}
	if detected {
		return Verdict{Detected: true, Score: 1, Layer: LayerL3, Action: d.action}, nil
	}
	return Verdict{Detected: false, Layer: LayerL3, Action: d.action}, nil
}

func (d *Detector) matchesPattern(text string) bool {
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// heuristicScore sums the independent signal weights and clamps to [0, 1].
func (d *Detector) heuristicScore(text string) float64 {
	var score float64
	lower := strings.ToLower(text)

	if imperativeDensity(lower) {
		score += 0.25
	}
	if containsAny(lower, roleAssignmentPhrases) {
		score += 0.30
	}
	if containsAny(lower, boundaryMarkers) {
		score += 0.40
	}
	if base64ish.MatchString(text) || hexish.MatchString(text) {
		score += 0.20
	}
	if isLanguageMixed(text) {
		score += 0.15
	}
	if containsAny(lower, promptStructureMarkers) {
		score += 0.20
	}

	if score > 1 {
		score = 1
	}
	return score
}

// imperativeDensity flags text with an unusually high ratio of command verbs
// drawn from imperativeVerbs, a cheap stand-in for a part-of-speech pass.
func imperativeDensity(lower string) bool {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return false
	}
	hits := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?:;\"'()")
		for _, v := range imperativeVerbs {
			if w == v {
				hits++
				break
			}
		}
	}
	return float64(hits)/float64(len(words)) >= 0.08
}

func containsAny(lower string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// isLanguageMixed is a coarse signal: text mixing Latin script with CJK,
// Cyrillic, or Arabic blocks in the same message, which is unusual for
// ordinary conversation and common in obfuscated injection attempts.
func isLanguageMixed(text string) bool {
	var hasLatin, hasOther bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Latin, r):
			hasLatin = true
		case unicode.Is(unicode.Han, r), unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Arabic, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			hasOther = true
		}
		if hasLatin && hasOther {
			return true
		}
	}
	return false
}
