package composite

import (
	"fmt"
	"sort"

	"github.com/opensurvey/kestrel/internal/domain"
)

// AggregateSignals computes a group score as the weighted average of
// its available signals, redistributing the weight of unavailable ones
// proportionally across the rest. Returns ok=false when no signal in
// the group is available; the group is then excluded from the
// composite and its weight redistributed one level up.
func AggregateSignals(group domain.SignalGroup, signals []domain.SignalScore) (domain.GroupScore, bool) {
	var totalWeight float64
	for _, sig := range signals {
		if sig.Available {
			totalWeight += sig.Weight
		}
	}
	if totalWeight <= 0 {
		return domain.GroupScore{}, false
	}

	gs := domain.GroupScore{Group: group}
	for _, sig := range signals {
		if !sig.Available {
			continue
		}
		gs.Score += (sig.Weight / totalWeight) * clamp01(sig.Value)
		gs.Signals = append(gs.Signals, sig)
		if sig.Flag != "" {
			gs.Flags = append(gs.Flags, sig.Flag)
		}
	}
	return gs, true
}

// BehavioralSignals converts the per-method behavioral scores supplied
// with an analysis request into weighted signals. Methods absent from
// the request are marked unavailable; methods present in the request
// but unknown to the profile are rejected rather than silently scored
// at weight zero.
func BehavioralSignals(scores map[string]float64, profile domain.WeightProfile) ([]domain.SignalScore, error) {
	for method := range scores {
		if _, ok := profile.Methods[method]; !ok {
			return nil, fmt.Errorf("unknown behavioral method %q", method)
		}
	}

	methods := make([]string, 0, len(profile.Methods))
	for method := range profile.Methods {
		methods = append(methods, method)
	}
	sort.Strings(methods)

	signals := make([]domain.SignalScore, 0, len(methods))
	for _, method := range methods {
		sig := domain.SignalScore{Method: method, Weight: profile.Methods[method]}
		if v, ok := scores[method]; ok {
			sig.Value = v
			sig.Available = true
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
