package migrate

import (
	"fmt"
	"strings"

	"github.com/pavelanni/examstats/internal/codec"
	"github.com/pavelanni/examstats/internal/model"
)

// Migrate rewrites doc into the current compact shape in place and returns
// the number of session records it changed. It is idempotent.
//
// Records that cannot be normalized are left untouched for Hydrate to drop.
// Unknown fields are never removed. The only error is a top-level shape
// that is not a history document at all.
func Migrate(doc map[string]any) (int, error) {
	apply(doc, documentRules, familyNone)
	if has(doc, codec.DocSessions.Alias) || has(doc, codec.DocOpen.Alias) {
		for _, name := range derivedDocumentFields {
			delete(doc, name)
		}
	}

	changed := 0
	if v, ok := doc[codec.DocSessions.Alias]; ok {
		items, ok := codec.Slice(v)
		if !ok {
			return 0, &codec.DecodeError{
				Stage: codec.StageDocument,
				Err:   fmt.Errorf("field %q is %T, want list", codec.DocSessions.Alias, v),
			}
		}
		for _, it := range items {
			if m, ok := codec.Map(it); ok && migrateSession(m) {
				changed++
			}
		}
	}
	if m, ok := codec.Map(doc[codec.DocOpen.Alias]); ok && migrateSession(m) {
		changed++
	}
	return changed, nil
}

func migrateSession(m map[string]any) bool {
	fam := sessionFamily(m)
	if fam == familyNone {
		return false
	}
	changed := false
	if fam != familyCurrent {
		if fam == familyVerbose {
			changed = escapeAliases(m, codec.SessionFields)
		}
		if apply(m, sessionRules, fam) {
			changed = true
		}
	}

	if items, ok := codec.Slice(m[codec.SessionQuestions.Alias]); ok {
		for _, it := range items {
			if q, ok := codec.Map(it); ok && migrateQuestion(q) {
				changed = true
			}
		}
	}

	if fam == familyCurrent {
		return changed
	}
	if !has(m, codec.SessionClosed.Alias) {
		ended := m[codec.SessionEnded.Alias]
		m[codec.SessionClosed.Alias] = ended != nil
		changed = true
	}
	closed, _ := codec.Bool(m[codec.SessionClosed.Alias])
	if closed && !hasAny(m, codec.SessionTotalQuestions.Alias, codec.SessionCorrect.Alias,
		codec.SessionIncorrect.Alias, codec.SessionPreview.Alias, codec.SessionTime.Alias) {
		deriveTotals(m)
		changed = true
	}
	return changed
}

func migrateQuestion(m map[string]any) bool {
	fam := questionFamily(m)
	if fam == familyNone || fam == familyCurrent {
		return false
	}
	changed := false
	if fam == familyVerbose {
		changed = escapeAliases(m, codec.QuestionFields)
	}
	if apply(m, questionRules, fam) {
		changed = true
	}

	if items, ok := codec.Slice(m[codec.QuestionAttempts.Alias]); ok {
		for _, it := range items {
			a, ok := codec.Map(it)
			if !ok {
				continue
			}
			if fam == familyVerbose && escapeAliases(a, codec.AttemptFields) {
				changed = true
			}
			if apply(a, attemptRules, fam) {
				changed = true
			}
		}
	}

	if !has(m, codec.QuestionFirstAction.Alias) {
		m[codec.QuestionFirstAction.Alias] = string(deriveFirstAction(m))
		changed = true
	}
	if _, ok := codec.Bool(m[legacyCorrectFlag]); ok {
		delete(m, legacyCorrectFlag)
		changed = true
	}
	return changed
}

// escapeAliases moves unknown fields of a verbose record that happen to use
// a current alias out of the way, so they survive as unknown fields.
func escapeAliases(m map[string]any, fields []codec.Field) bool {
	changed := false
	for _, f := range fields {
		v, ok := m[f.Alias]
		if !ok {
			continue
		}
		m[codec.EscapeKey(f.Alias)] = v
		delete(m, f.Alias)
		changed = true
	}
	return changed
}

// apply runs every triggered rule. A value that cannot be converted stays
// under its old name so no data is lost. Verbose records are only read
// through verbose names.
func apply(m map[string]any, rules []rule, fam family) bool {
	changed := false
	for _, r := range rules {
		if has(m, r.to.Alias) {
			continue
		}
		if r.sum {
			if applySum(m, r, fam) {
				changed = true
			}
			continue
		}
		for _, name := range r.from {
			if !inFamily(name, fam) {
				continue
			}
			v, ok := m[name]
			if !ok {
				continue
			}
			if r.conv != nil {
				if v, ok = r.conv(v); !ok {
					continue
				}
			}
			m[r.to.Alias] = v
			delete(m, name)
			changed = true
			break
		}
	}
	return changed
}

func applySum(m map[string]any, r rule, fam family) bool {
	var total int64
	var used []string
	for _, name := range r.from {
		if !inFamily(name, fam) {
			continue
		}
		v, ok := m[name]
		if !ok {
			continue
		}
		n, ok := codec.Int64(v)
		if !ok {
			return false
		}
		total += n
		used = append(used, name)
	}
	if len(used) == 0 {
		return false
	}
	for _, name := range used {
		delete(m, name)
	}
	m[r.to.Alias] = total
	return true
}

// deriveFirstAction classifies a legacy question that carries no explicit
// kind: the first attempt wins, then the legacy correctness flag, then any
// recorded preview activity.
func deriveFirstAction(m map[string]any) model.FirstAction {
	if items, ok := codec.Slice(m[codec.QuestionAttempts.Alias]); ok && len(items) > 0 {
		if first, ok := codec.Map(items[0]); ok {
			if previewed, _ := codec.Bool(first[codec.AttemptPreviewed.Alias]); previewed {
				return model.FirstActionPreview
			}
			if correct, _ := codec.Bool(first[codec.AttemptCorrect.Alias]); correct {
				return model.FirstActionCorrect
			}
			return model.FirstActionIncorrect
		}
	}
	if correct, ok := codec.Bool(m[legacyCorrectFlag]); ok {
		if correct {
			return model.FirstActionCorrect
		}
		return model.FirstActionIncorrect
	}
	if n, _ := codec.Int64(m[codec.QuestionPreviews.Alias]); n > 0 {
		return model.FirstActionPreview
	}
	return model.FirstActionUnset
}

// deriveTotals fills the frozen totals of a closed legacy session that never
// stored them, using the same first-action tally as a live close.
func deriveTotals(m map[string]any) {
	var tq, ca, ia, pa, tt int64
	items, _ := codec.Slice(m[codec.SessionQuestions.Alias])
	for _, it := range items {
		q, ok := codec.Map(it)
		if !ok {
			continue
		}
		if n, ok := codec.Int64(q[codec.QuestionTime.Alias]); ok {
			tt += n
		}
		kind, _ := codec.String(q[codec.QuestionFirstAction.Alias])
		switch model.FirstAction(kind) {
		case model.FirstActionCorrect:
			ca++
		case model.FirstActionIncorrect:
			ia++
		case model.FirstActionPreview:
			pa++
		default:
			continue
		}
		tq++
	}
	for _, kv := range []struct {
		f codec.Field
		v int64
	}{
		{codec.SessionTotalQuestions, tq},
		{codec.SessionCorrect, ca},
		{codec.SessionIncorrect, ia},
		{codec.SessionPreview, pa},
		{codec.SessionTime, tt},
	} {
		if kv.v != 0 {
			m[kv.f.Alias] = kv.v
		}
	}
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if has(m, k) {
			return true
		}
	}
	return false
}

func toString(v any) (any, bool) {
	s, ok := codec.String(v)
	return s, ok
}

func toInt(v any) (any, bool) {
	n, ok := codec.Int64(v)
	return n, ok
}

func toMillis(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	t, ok := codec.Millis(v)
	if !ok {
		return nil, false
	}
	return t.UnixMilli(), true
}

// toAnswers accepts a list of option ids or the packed letter form ("AC")
// used by the question scraper.
func toAnswers(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	if s, ok := v.(string); ok {
		var ids []string
		if strings.Contains(s, ",") {
			ids = strings.Split(s, ",")
		} else {
			for _, r := range strings.TrimSpace(s) {
				ids = append(ids, string(r))
			}
		}
		return anySlice(model.NewAnswerSet(ids...)), true
	}
	ss, ok := codec.Strings(v)
	if !ok {
		return nil, false
	}
	return anySlice(model.NewAnswerSet(ss...)), true
}

func toFirstAction(v any) (any, bool) {
	if v == nil {
		return string(model.FirstActionUnset), true
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	k, ok := model.ParseFirstAction(s)
	if !ok {
		return nil, false
	}
	return string(k), true
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
