package result

import (
	"encoding/json"
	"strings"

	"sheetrow/internal/records"
)

// Column names used by screen and dedupe results.
const (
	ResearchKey = "research"
	ReasonKey   = "reason"

	SelectedKey           = "selected"
	EquivalenceClassIDKey = "equivalence_class_id"
	EquivalenceClassName  = "equivalence_class_name"
)

// PromoteReason lifts research.reason to a top-level reason column and drops
// the research payload. Records are modified in place and returned.
func PromoteReason(recs []records.Record) []records.Record {
	for i := range recs {
		raw, ok := recs[i].Get(ResearchKey)
		if !ok {
			continue
		}
		if reason, found := nestedReason(raw); found {
			recs[i].Set(ReasonKey, reason)
		}
		recs[i].Delete(ResearchKey)
	}
	return recs
}

func nestedReason(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		r, ok := t[ReasonKey]
		return r, ok
	case records.Record:
		return t.Get(ReasonKey)
	case *records.Record:
		if t == nil {
			return nil, false
		}
		return t.Get(ReasonKey)
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, false
		}
		r, ok := m[ReasonKey]
		return r, ok
	}
	return nil, false
}

// SelectedOnly keeps the representative record of each equivalence class and
// strips the dedupe bookkeeping columns from it.
func SelectedOnly(recs []records.Record) []records.Record {
	out := make([]records.Record, 0, len(recs))
	for i := range recs {
		v, _ := recs[i].Get(SelectedKey)
		if !isTrue(v) {
			continue
		}
		rec := recs[i]
		rec.Delete(SelectedKey)
		rec.Delete(EquivalenceClassIDKey)
		rec.Delete(EquivalenceClassName)
		out = append(out, rec)
	}
	return out
}

func isTrue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	}
	return false
}
