package model

// Priority ranks how urgently a task must be served.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns a sortable weight where a higher value is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// DisasterType identifies the kind of disaster a task belongs to.
type DisasterType string

// DefaultDisaster is the reserved key of the fallback evaluation weights.
const DefaultDisaster DisasterType = "default"

// Capability is an opaque rescue skill code such as LIFE_DETECTION.
type Capability string

// CapabilitySet is an order-irrelevant set of capability codes.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given codes, ignoring duplicates.
func NewCapabilitySet(codes ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is part of the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Len returns the number of distinct codes.
func (s CapabilitySet) Len() int { return len(s) }

// Intersect returns the codes present in both sets.
func (s CapabilitySet) Intersect(o CapabilitySet) CapabilitySet {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(CapabilitySet)
	for c := range small {
		if large.Has(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

// Environment is the operating medium of a device.
type Environment string

const (
	EnvAir  Environment = "air"
	EnvLand Environment = "land"
	EnvSea  Environment = "sea"
)

// ModuleType classifies device modules.
type ModuleType string

const (
	ModuleSensor        ModuleType = "sensor"
	ModuleCommunication ModuleType = "communication"
	ModuleUtility       ModuleType = "utility"
	ModulePower         ModuleType = "power"
)

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
