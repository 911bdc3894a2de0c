package model

import "time"

// Provenance tags where a proposed field value came from.
type Provenance string

const (
	SourceOCR            Provenance = "OCR"
	SourceVendorPattern  Provenance = "VENDOR_PATTERN"
	SourceCorrectionRule Provenance = "CORRECTION_RULE"
	SourceHuman          Provenance = "HUMAN"
)

// Audit stages, in pipeline order.
const (
	StageVendorMatched     = "VENDOR_MATCHED"
	StageNewVendor         = "NEW_VENDOR"
	StageCorrectionsLoaded = "CORRECTIONS_LOADED"
	StagePatternApplied    = "PATTERN_APPLIED"
	StageDefaultApplied    = "DEFAULT_APPLIED"
	StageCorrectionApplied = "CORRECTION_APPLIED"
	StageDecide            = "DECIDE"
)

// AuditEntry is one timestamped reasoning step. The trail is append-only.
type AuditEntry struct {
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// FieldConfidence is a proposed value for one output field.
type FieldConfidence struct {
	Field      string     `json:"field"`
	Value      any        `json:"value"`
	Confidence float64    `json:"confidence"`
	Source     Provenance `json:"source"`
	RuleID     string     `json:"rule_id,omitempty"`
}

// ProcessingContext is the ephemeral per-invoice working set assembled by the
// recall engine and threaded through the cognitive and decision stages.
type ProcessingContext struct {
	Invoice     Invoice
	Vendor      *VendorMemory // nil when no vendor matched
	VendorScore float64       // approximate-match distance, 0 for exact
	Corrections []CorrectionMemory
	Resolutions map[string]ResolutionMemory // rule id -> reinforcement record
	Audit       []AuditEntry
}

// AddAudit appends one reasoning entry.
func (pc *ProcessingContext) AddAudit(stage, message string, confidence float64, at time.Time) {
	pc.Audit = append(pc.Audit, AuditEntry{
		Stage:      stage,
		Message:    message,
		Confidence: confidence,
		At:         at,
	})
}

// OutputContract is the finalized result of one Process call. It is produced
// once and never mutated afterwards.
type OutputContract struct {
	Invoice             Invoice                    `json:"invoice"`
	RequiresHumanReview bool                       `json:"requires_human_review"`
	Reasoning           string                     `json:"reasoning"`
	Confidence          float64                    `json:"confidence"`
	Proposals           map[string]FieldConfidence `json:"proposals,omitempty"`
	Audit               []AuditEntry               `json:"audit"`
	ProcessedAt         time.Time                  `json:"processed_at"`
}
