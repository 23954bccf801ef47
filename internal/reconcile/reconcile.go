// Package reconcile classifies fee records against the personnel directory
// and fills in their payment details.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feerecon/internal/directory"
	"github.com/sells-group/feerecon/internal/model"
)

// Result is the merged output of one reconciliation.
type Result struct {
	// Records is the output sequence. Positions index into it.
	Records []*model.Record

	// Duplicates holds one group of positions per name with several profiles.
	Duplicates [][]model.Position

	// Unmatched holds the positions of records with no profile.
	Unmatched []model.Position

	// Classifications has one entry per named input record, in input order.
	Classifications []model.Classification

	// Dropped counts input records without a name.
	Dropped int

	// Skipped counts records that failed per-record processing.
	Skipped int
}

// Reconcile classifies each named record against the profiles returned by
// a single batched directory lookup. Records without a name are dropped.
// Input records are not modified.
func Reconcile(ctx context.Context, records []*model.Record, lookup directory.Lookup) (*Result, error) {
	log := zap.L().With(zap.Int("records", len(records)))

	type candidate struct {
		index  int
		record *model.Record
		name   string
	}

	res := &Result{}
	var candidates []candidate
	var names []string
	seen := make(map[string]bool)

	for i, rec := range records {
		name, err := nameOf(rec)
		if err != nil {
			res.Skipped++
			res.Classifications = append(res.Classifications, model.Classification{
				InputIndex: i,
				Outcome:    model.OutcomeSkipped,
				Error:      err.Error(),
			})
			log.Warn("reconcile: skipping record", zap.Int("index", i), zap.Error(err))
			continue
		}
		if name == "" {
			res.Dropped++
			continue
		}
		candidates = append(candidates, candidate{index: i, record: rec, name: name})
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	if res.Dropped > 0 {
		log.Info("reconcile: dropped records without a name", zap.Int("dropped", res.Dropped))
	}
	if len(candidates) == 0 {
		return nil, eris.Wrapf(model.ErrNoValidRecords, "reconcile: %d records, none named", len(records))
	}

	profiles, err := lookup.FindByNames(ctx, names)
	if err != nil {
		return nil, eris.Wrapf(model.ErrLookupFailure, "reconcile: find %d names: %v", len(names), err)
	}

	for _, c := range candidates {
		cls, err := res.emit(c.record, profiles[c.name])
		cls.InputIndex = c.index
		cls.Name = c.name
		if err != nil {
			res.Skipped++
			cls.Outcome = model.OutcomeSkipped
			cls.Error = err.Error()
			log.Warn("reconcile: skipping record",
				zap.Int("index", c.index),
				zap.String("name", c.name),
				zap.Error(err),
			)
		}
		res.Classifications = append(res.Classifications, cls)
	}

	log.Info("reconcile: complete",
		zap.Int("output", len(res.Records)),
		zap.Int("duplicate_groups", len(res.Duplicates)),
		zap.Int("unmatched", len(res.Unmatched)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// emit appends the output records for one input record. Nothing is
// appended when an error is returned.
func (r *Result) emit(rec *model.Record, profiles []model.Profile) (cls model.Classification, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reconcile: merge panicked: %v", p)
		}
	}()

	switch len(profiles) {
	case 0:
		out := merge(rec, nil)
		pos := r.push(out)
		r.Unmatched = append(r.Unmatched, pos)
		return model.Classification{Outcome: model.OutcomeUnmatched, Positions: []model.Position{pos}}, nil

	case 1:
		out := merge(rec, &profiles[0])
		pos := r.push(out)
		return model.Classification{Outcome: model.OutcomeMatched, Positions: []model.Position{pos}}, nil

	default:
		merged := make([]*model.Record, len(profiles))
		for i := range profiles {
			merged[i] = merge(rec, &profiles[i])
		}
		group := make([]model.Position, len(merged))
		for i, out := range merged {
			group[i] = r.push(out)
		}
		r.Duplicates = append(r.Duplicates, group)
		return model.Classification{Outcome: model.OutcomeDuplicate, Positions: group}, nil
	}
}

// push appends a record and returns the position it landed at.
func (r *Result) push(rec *model.Record) model.Position {
	r.Records = append(r.Records, rec)
	return model.Position(len(r.Records) - 1)
}

// merge copies rec and fills in the profile fields. Every profile field is
// overwritten: a blank profile value, or no profile at all, clears the
// record's own value so stale identifiers never reach the output. The name
// becomes the profile's canonical name when it has one; otherwise the
// record keeps its original spelling.
func merge(rec *model.Record, p *model.Profile) *model.Record {
	out := rec.Clone()

	var fields map[string]string
	if p != nil {
		fields = p.RecordFields()
	}
	for _, f := range model.ProfileFields {
		if v := fields[f]; v != "" {
			out.Set(f, v)
		} else {
			out.Set(f, nil)
		}
	}

	if p != nil && p.Name != "" {
		out.Set(model.FieldName, p.Name)
	}
	return out
}

// nameOf returns the record's normalized name. Blank names return "".
func nameOf(rec *model.Record) (string, error) {
	v, ok := rec.Get(model.FieldName)
	if !ok {
		return "", nil
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string, float64, int, int64:
		return model.NormalizeName(model.FormatValue(t)), nil
	default:
		return "", eris.Errorf("reconcile: malformed name value of type %T", v)
	}
}
