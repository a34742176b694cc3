package evidence

import (
	"reviewlens/internal/logger"
	"reviewlens/internal/model"
	"reviewlens/internal/scoring"
)

const (
	DefaultPerFactorMax = 8
	DefaultMaxTotal     = 15

	// overFetch widens the candidate pool so anchor and de-duplication
	// filtering still leave enough reviews to fill the quota.
	overFetch = 10
)

// Quota is the target number of excerpts per label for one ranked factor
type Quota map[model.Label]int

// Total returns the sum of all label targets
func (q Quota) Total() int {
	n := 0
	for _, v := range q {
		n += v
	}
	return n
}

// DefaultQuota returns the label targets for a factor rank (0 is the top factor)
func DefaultQuota(rank int) Quota {
	if rank == 0 {
		return Quota{model.LabelNegative: 3, model.LabelMixed: 2, model.LabelPositive: 1}
	}
	return Quota{model.LabelNegative: 2, model.LabelMixed: 2, model.LabelPositive: 1}
}

// Options tunes evidence selection. Zero fields take the defaults.
type Options struct {
	PerFactorMax  int           `yaml:"per_factor_max"`
	MaxTotal      int           `yaml:"max_total"`
	LabelWindow   int           `yaml:"label_window"`
	ExcerptMaxLen int           `yaml:"excerpt_max_len"`
	QuotaByRank   map[int]Quota `yaml:"quota_by_rank"`
}

// DefaultOptions returns the standard selection limits
func DefaultOptions() Options {
	return Options{
		PerFactorMax:  DefaultPerFactorMax,
		MaxTotal:      DefaultMaxTotal,
		LabelWindow:   DefaultLabelWindow,
		ExcerptMaxLen: DefaultExcerptMaxLen,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PerFactorMax <= 0 {
		o.PerFactorMax = d.PerFactorMax
	}
	if o.MaxTotal <= 0 {
		o.MaxTotal = d.MaxTotal
	}
	if o.LabelWindow <= 0 {
		o.LabelWindow = d.LabelWindow
	}
	if o.ExcerptMaxLen <= 0 {
		o.ExcerptMaxLen = d.ExcerptMaxLen
	}
	return o
}

func (o Options) quotaFor(rank int) Quota {
	if q, ok := o.QuotaByRank[rank]; ok && q.Total() > 0 {
		return q
	}
	return DefaultQuota(rank)
}

// Sampler picks a diverse, capped evidence set for ranked factors
type Sampler struct {
	opts Options
	log  *logger.Logger
}

// NewSampler creates a sampler; a nil logger discards output
func NewSampler(opts Options, log *logger.Logger) *Sampler {
	return &Sampler{
		opts: opts.withDefaults(),
		log:  logger.OrNop(log),
	}
}

// Options returns the effective options
func (s *Sampler) Options() Options {
	return s.opts
}

// Sample walks the ranked factors in order and selects up to MaxTotal
// excerpts. Every excerpt has an anchor hit for its factor and no review is
// used twice across the whole result. Factors missing from the taxonomy or
// the corpus are skipped.
func (s *Sampler) Sample(c *scoring.Corpus, factors map[string]*model.Factor, ranked []model.FactorScore) []model.Evidence {
	out := make([]model.Evidence, 0, s.opts.MaxTotal)
	seen := make(map[string]struct{})

	for rank, fs := range ranked {
		if len(out) >= s.opts.MaxTotal {
			break
		}
		col, ok := c.Column(fs.FactorKey)
		if !ok {
			s.log.Warn("evidence: factor has no score column, skipping", "factor", fs.FactorKey)
			continue
		}
		f, ok := factors[fs.FactorKey]
		if !ok || f == nil {
			s.log.Warn("evidence: unknown factor, skipping", "factor", fs.FactorKey)
			continue
		}

		quota := s.opts.quotaFor(rank)
		maxPick := min(s.opts.PerFactorMax, quota.Total(), s.opts.MaxTotal-len(out))
		if maxPick <= 0 {
			continue
		}

		candidates := s.candidates(c, col, f, maxPick*overFetch)
		picked := pickByQuota(candidates, quota, seen, maxPick)
		s.log.Debug("evidence: factor sampled",
			"factor", f.Key, "rank", rank, "candidates", len(candidates), "picked", len(picked))
		out = append(out, picked...)
	}
	return out
}

// candidates returns the anchor-hit reviews of column col, highest score first
func (s *Sampler) candidates(c *scoring.Corpus, col int, f *model.Factor, limit int) []model.Evidence {
	var out []model.Evidence
	for _, i := range c.TopReviews(col, limit) {
		r := &c.Reviews[i]
		if r.ID == "" {
			continue
		}
		norm := c.Norm[i]
		if !scoring.ContainsAny(norm, f.AnchorTerms) {
			continue
		}

		reasons := []string{f.Key + "+anchor"}
		if scoring.ContainsAny(norm, f.ContextTerms) {
			reasons = append(reasons, f.Key+"+context")
		}
		if scoring.ContainsAny(norm, f.NegationTerms) {
			reasons = append(reasons, f.Key+"+negation")
		}

		rating := 0
		if r.Rating != nil {
			rating = *r.Rating
		}
		out = append(out, model.Evidence{
			ReviewID:  r.ID,
			Rating:    rating,
			Excerpt:   Excerpt(r.Text, f, s.opts.ExcerptMaxLen),
			Reasons:   reasons,
			FactorKey: f.Key,
			Score:     c.At(i, col),
			Label:     Classify(r.Text, f, s.opts.LabelWindow),
		})
	}
	return out
}

// pickByQuota fills label buckets in score order, then tops up the
// remaining slots with the best leftover candidates of any label.
func pickByQuota(candidates []model.Evidence, quota Quota, seen map[string]struct{}, maxPick int) []model.Evidence {
	picked := make([]model.Evidence, 0, maxPick)
	counts := make(map[model.Label]int, len(quota))
	taken := make([]bool, len(candidates))

	for i, c := range candidates {
		if len(picked) >= maxPick {
			break
		}
		if _, dup := seen[c.ReviewID]; dup {
			continue
		}
		if want, ok := quota[c.Label]; !ok || counts[c.Label] >= want {
			continue
		}
		picked = append(picked, c)
		counts[c.Label]++
		seen[c.ReviewID] = struct{}{}
		taken[i] = true
	}

	for i, c := range candidates {
		if len(picked) >= maxPick {
			break
		}
		if taken[i] {
			continue
		}
		if _, dup := seen[c.ReviewID]; dup {
			continue
		}
		picked = append(picked, c)
		seen[c.ReviewID] = struct{}{}
	}
	return picked
}
