package model

import (
	"time"

	"github.com/ledgerline/invoice-cli/internal/rules"
)

// PatternKind classifies how a vendor pattern extracts its value.
type PatternKind string

const (
	PatternRegex      PatternKind = "REGEX"
	PatternAnchor     PatternKind = "ANCHOR"
	PatternPositional PatternKind = "POSITIONAL"
	PatternFormula    PatternKind = "FORMULA"
	PatternMap        PatternKind = "MAP"
)

// VendorPattern is one learned extraction rule for a single target field.
// A vendor holds at most one pattern per field; newer patterns overwrite.
type VendorPattern struct {
	Kind       PatternKind `json:"kind"`
	Logic      *rules.Expr `json:"logic"`
	Confidence float64     `json:"confidence"`
	Evidence   string      `json:"evidence,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	LastUsedAt *time.Time  `json:"last_used_at,omitempty"`
}

// VendorMemory is the per-vendor store of learned patterns, aliases and
// default field values. It is owned by the persistence layer; engines read it
// and propose mutations through the store.
type VendorMemory struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	Fingerprints []string                 `json:"fingerprints,omitempty"` // alias strings for approximate matching
	Defaults     map[string]any           `json:"defaults,omitempty"`
	Patterns     map[string]VendorPattern `json:"patterns,omitempty"` // target field -> pattern
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// SetPattern replaces the pattern for a field, keeping the one-per-field
// invariant.
func (vm *VendorMemory) SetPattern(field string, p VendorPattern) {
	if vm.Patterns == nil {
		vm.Patterns = make(map[string]VendorPattern, 1)
	}
	vm.Patterns[field] = p
}

// CorrectionMemory is a global, vendor-independent rule: when Trigger holds
// on an invoice record, Action produces a replacement value.
type CorrectionMemory struct {
	ID          string      `json:"id"` // formula name plus disambiguator
	Trigger     *rules.Expr `json:"trigger"`
	Action      *rules.Expr `json:"action"`
	Description string      `json:"description"`
	Confidence  float64     `json:"confidence"`
	Decay       float64     `json:"decay"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ResolutionOutcome is whether a human kept or overrode a rule's value.
type ResolutionOutcome string

const (
	OutcomeAccepted ResolutionOutcome = "ACCEPTED"
	OutcomeRejected ResolutionOutcome = "REJECTED"
)

// MaxResolutionHistory bounds the per-rule outcome history; the oldest entry
// is evicted first.
const MaxResolutionHistory = 100

// ResolutionRecord is one remembered application outcome.
type ResolutionRecord struct {
	Field   string            `json:"field"`
	Outcome ResolutionOutcome `json:"outcome"`
	At      time.Time         `json:"at"`
}

// ResolutionMemory tracks how often a rule's proposals survived human review.
// Invariant: AcceptedCount + RejectedCount <= TotalApplications.
type ResolutionMemory struct {
	RuleID            string             `json:"rule_id"`
	TotalApplications int                `json:"total_applications"`
	AcceptedCount     int                `json:"accepted_count"`
	RejectedCount     int                `json:"rejected_count"`
	History           []ResolutionRecord `json:"history,omitempty"`
	LastUsedAt        *time.Time         `json:"last_used_at,omitempty"`
}

// Record appends one outcome, bumping the counters and evicting the oldest
// history entry beyond MaxResolutionHistory.
func (rm *ResolutionMemory) Record(field string, outcome ResolutionOutcome, at time.Time) {
	rm.TotalApplications++
	switch outcome {
	case OutcomeAccepted:
		rm.AcceptedCount++
	case OutcomeRejected:
		rm.RejectedCount++
	}
	rm.History = append(rm.History, ResolutionRecord{Field: field, Outcome: outcome, At: at})
	if len(rm.History) > MaxResolutionHistory {
		rm.History = rm.History[len(rm.History)-MaxResolutionHistory:]
	}
	t := at
	rm.LastUsedAt = &t
}

// ResolutionKey builds the store key for a vendor pattern's resolution memory.
func ResolutionKey(vendorID, field string) string {
	return vendorID + ":" + field
}
