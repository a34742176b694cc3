package dialogue

import "time"

// ConvergenceMode decides whether a session may end itself
type ConvergenceMode string

const (
	// ConvergeExplicit never ends a session on its own. Readiness is only
	// reported and the caller decides when to finalize.
	ConvergeExplicit ConvergenceMode = "explicit"
	// ConvergeAuto finalizes once the top factors are stable, or at the turn cap.
	ConvergeAuto ConvergenceMode = "auto"
)

// Policy holds the tunables of the turn state machine
type Policy struct {
	TopK                int             `yaml:"top_k"`
	JaccardThreshold    float64         `yaml:"jaccard_threshold"`
	FocusTurnsThreshold int             `yaml:"focus_turns_threshold"`
	MinAnalysisTurns    int             `yaml:"min_analysis_turns"`
	AttachAnalysis      bool            `yaml:"attach_analysis"`
	Convergence         ConvergenceMode `yaml:"convergence"`

	// Locale picks the fallback questions and template summary
	Locale Locale `yaml:"locale"`

	// auto mode only
	AutoMinTurns         int `yaml:"auto_min_turns"`
	AutoMinStabilityHits int `yaml:"auto_min_stability_hits"`
	MaxTurns             int `yaml:"max_turns"`

	// servers take this from the AI settings
	SummaryTimeout time.Duration `yaml:"-"`
}

// DefaultPolicy returns explicit-only convergence with analysis attached
// from the third turn on.
func DefaultPolicy() Policy {
	return Policy{
		TopK:                 3,
		JaccardThreshold:     0.67,
		FocusTurnsThreshold:  2,
		MinAnalysisTurns:     3,
		AttachAnalysis:       true,
		Convergence:          ConvergeExplicit,
		Locale:               LocaleEnglish,
		AutoMinTurns:         3,
		AutoMinStabilityHits: 2,
		MaxTurns:             5,
		SummaryTimeout:       10 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TopK <= 0 {
		p.TopK = d.TopK
	}
	if p.JaccardThreshold <= 0 {
		p.JaccardThreshold = d.JaccardThreshold
	}
	if p.FocusTurnsThreshold <= 0 {
		p.FocusTurnsThreshold = d.FocusTurnsThreshold
	}
	if p.MinAnalysisTurns <= 0 {
		p.MinAnalysisTurns = d.MinAnalysisTurns
	}
	if p.Convergence == "" {
		p.Convergence = d.Convergence
	}
	if p.Locale == "" {
		p.Locale = d.Locale
	}
	if p.AutoMinTurns <= 0 {
		p.AutoMinTurns = d.AutoMinTurns
	}
	if p.AutoMinStabilityHits <= 0 {
		p.AutoMinStabilityHits = d.AutoMinStabilityHits
	}
	if p.MaxTurns <= 0 {
		p.MaxTurns = d.MaxTurns
	}
	return p
}

// Jaccard returns |a∩b| / |a∪b| over the distinct elements. Two empty sets
// are identical and score 1; one empty set scores 0.
func Jaccard(a, b []string) float64 {
	sa := make(map[string]struct{}, len(a))
	for _, v := range a {
		sa[v] = struct{}{}
	}
	sb := make(map[string]struct{}, len(b))
	for _, v := range b {
		sb[v] = struct{}{}
	}
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0.0
	}
	inter := 0
	for v := range sa {
		if _, ok := sb[v]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(sa)+len(sb)-inter)
}
