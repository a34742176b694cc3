package dialogue

import "reviewlens/internal/model"

// Snapshot returns a copy of the session state keyed by factor key
func (s *Session) Snapshot() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := make(map[string]float64, len(s.cumulative))
	for id, v := range s.cumulative {
		if i, ok := s.byID[id]; ok {
			scores[s.factors[i].Key] = v
		}
	}
	return model.SessionState{
		Status:           s.status,
		TurnCount:        s.turnCount,
		CumulativeScores: scores,
		PrevTopK:         s.idKeys(s.prevTopK),
		StabilityHits:    s.stabilityHits,
		LastJaccard:      s.lastJaccard,
		AskedQuestions:   append([]string(nil), s.askedOrder...),
		History:          append([]model.DialogueTurn(nil), s.history...),
	}
}

// Restore rebuilds a session from its config and a saved state. Factor keys
// no longer in the taxonomy are dropped.
func Restore(cfg Config, state model.SessionState) *Session {
	s := New(cfg)

	if state.Status == model.SessionFinalized {
		s.status = model.SessionFinalized
	}
	s.turnCount = state.TurnCount
	s.stabilityHits = state.StabilityHits
	s.lastJaccard = state.LastJaccard
	for key, v := range state.CumulativeScores {
		if i, ok := s.byKey[key]; ok && v > 0 {
			s.cumulative[s.factors[i].ID] = v
		} else if !ok {
			s.log.Warn("restore: dropping unknown factor", "factor", key)
		}
	}
	for _, key := range state.PrevTopK {
		if i, ok := s.byKey[key]; ok {
			s.prevTopK = append(s.prevTopK, s.factors[i].ID)
		}
	}
	for _, text := range state.AskedQuestions {
		s.markAsked(text)
	}
	s.history = append(s.history, state.History...)
	return s
}
