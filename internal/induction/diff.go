package induction

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/ledgerline/invoice-cli/internal/model"
)

// FieldDiff is one changed leaf between a system output and its human
// correction. ItemIndex is the line-item position for leaves below
// lineItems, -1 otherwise.
type FieldDiff struct {
	Path      string // e.g. "taxAmount" or "lineItems.0.sku"
	Field     string // leaf field name
	ItemIndex int
	Old       any // nil when the human added the field
	New       any
}

// diffReporter collects add/replace leaf differences from a cmp run.
// Removals (a value present in the system output but absent in the
// correction) are ignored: deleting data teaches no extraction rule.
type diffReporter struct {
	path  cmp.Path
	diffs []FieldDiff
}

func (r *diffReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *diffReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

func (r *diffReporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}
	oldV, newV := r.path.Last().Values()
	if !newV.IsValid() {
		return // remove-type difference
	}
	var newVal any = newV.Interface()
	if newVal == nil {
		return
	}
	var oldVal any
	if oldV.IsValid() {
		oldVal = oldV.Interface()
	}

	field, itemIndex, ok := leafOf(r.path)
	if !ok {
		return
	}
	path := field
	if itemIndex >= 0 {
		path = fmt.Sprintf("%s.%d.%s", model.FieldLineItems, itemIndex, field)
	}
	r.diffs = append(r.diffs, FieldDiff{
		Path:      path,
		Field:     field,
		ItemIndex: itemIndex,
		Old:       oldVal,
		New:       newVal,
	})
}

// leafOf extracts the leaf field name and optional line-item index from a
// cmp path over the flattened record maps.
func leafOf(path cmp.Path) (field string, itemIndex int, ok bool) {
	itemIndex = -1
	for _, step := range path {
		switch s := step.(type) {
		case cmp.MapIndex:
			field = fmt.Sprintf("%v", s.Key())
		case cmp.SliceIndex:
			itemIndex = s.Key()
		}
	}
	return field, itemIndex, field != ""
}

// DiffRecords returns the add/replace leaf changes turning the system output
// into the human correction, over the flattened record representation.
func DiffRecords(system, corrected model.Invoice) []FieldDiff {
	r := &diffReporter{}
	cmp.Equal(system.Record(), corrected.Record(), cmp.Reporter(r))

	// Only leaves where the values actually differ count; whole-map
	// reports for nested structures are already decomposed by cmp.
	out := r.diffs[:0]
	for _, d := range r.diffs {
		if d.Field == model.FieldRawText || d.Field == model.FieldLineItems {
			continue // raw text edits and item add/remove teach nothing
		}
		out = append(out, d)
	}
	return out
}
