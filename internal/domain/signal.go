package domain

// SignalGroup is one of the three independently aggregated signal
// categories fused into a composite verdict.
type SignalGroup string

const (
	GroupBehavioral  SignalGroup = "behavioral"
	GroupTextQuality SignalGroup = "text_quality"
	GroupFraud       SignalGroup = "fraud"
)

// Behavioral method names produced by the upstream collectors.
const (
	MethodKeystroke = "keystroke"
	MethodMouse     = "mouse"
	MethodTiming    = "timing"
	MethodDevice    = "device"
	MethodNetwork   = "network"
)

// SignalScore is a single method's contribution to its group.
// Immutable after creation; an unavailable score must have its weight
// redistributed, never be counted as 0.
type SignalScore struct {
	Method    string  `json:"method"`
	Value     float64 `json:"value"`  // bounded [0,1]
	Weight    float64 `json:"weight"` // nominal, subject to redistribution
	Available bool    `json:"available"`
	Flag      string  `json:"flag,omitempty"` // set when the method's own threshold tripped
}

// GroupScore is the aggregated result for one signal group.
type GroupScore struct {
	Group   SignalGroup   `json:"group"`
	Score   float64       `json:"score"` // weighted average of available signals, [0,1]
	Signals []SignalScore `json:"signals,omitempty"`
	Flags   []string      `json:"flags,omitempty"`
}
