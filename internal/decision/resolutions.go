package decision

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/ledgerline/invoice-cli/internal/model"
)

// RecordResolutions derives a per-field outcome for every proposal carrying a
// rule id and persists it: ACCEPTED when the human kept the system value (or
// left the field unset), REJECTED when the human overrode it. Returns the
// number of recorded outcomes.
func (e *Engine) RecordResolutions(ctx context.Context, proposals map[string]model.FieldConfidence, system, corrected model.Invoice) (int, error) {
	recorded := 0
	for field, p := range proposals {
		if p.RuleID == "" {
			continue
		}

		outcome := model.OutcomeAccepted
		correctedValue, present := corrected.Field(field)
		if present {
			systemValue, _ := system.Field(field)
			if !valuesEqual(systemValue, correctedValue) {
				outcome = model.OutcomeRejected
			}
		}

		rm, err := e.store.GetResolutionMemory(ctx, p.RuleID)
		if err != nil {
			return recorded, err
		}
		rm.Record(field, outcome, e.now())
		if err := e.store.UpsertResolutionMemory(ctx, rm); err != nil {
			return recorded, err
		}
		recorded++
		zap.L().Debug("decision: resolution recorded",
			zap.String("rule", p.RuleID),
			zap.String("field", field),
			zap.String("outcome", string(outcome)),
		)
	}
	return recorded, nil
}

// valuesEqual compares field values; amounts compare numerically, structured
// values structurally.
func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
