package sql

import (
	"encoding/json"
	"fmt"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
)

// --- Mapper functions ---

func fromDomainRecord(r *model.OptimizationRecord) (*StudyEntity, []ObservationEntity, error) {
	dims, err := json.Marshal(r.Dimensions)
	if err != nil {
		return nil, nil, fmt.Errorf("encode dimensions: %w", err)
	}
	study := &StudyEntity{
		Study:      r.Study,
		RunID:      r.RunID,
		Version:    r.Version,
		Dimensions: string(dims),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}

	observations := make([]ObservationEntity, 0, len(r.Observations))
	for i, o := range r.Observations {
		point, err := json.Marshal(o.Point)
		if err != nil {
			return nil, nil, fmt.Errorf("encode point %d: %w", i, err)
		}
		observations = append(observations, ObservationEntity{
			Study:      r.Study,
			Seq:        i,
			TrialName:  o.TrialName,
			Point:      string(point),
			Score:      o.Score,
			RecordedAt: o.RecordedAt.UTC(),
		})
	}
	return study, observations, nil
}

func toDomainRecord(study *StudyEntity, observations []ObservationEntity) (*model.OptimizationRecord, error) {
	r := &model.OptimizationRecord{
		Version:   study.Version,
		Study:     study.Study,
		RunID:     study.RunID,
		UpdatedAt: study.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(study.Dimensions), &r.Dimensions); err != nil {
		return nil, fmt.Errorf("decode dimensions of study '%s': %w", study.Study, err)
	}
	for _, e := range observations {
		var point []any
		if err := json.Unmarshal([]byte(e.Point), &point); err != nil {
			return nil, fmt.Errorf("decode point %d of study '%s': %w", e.Seq, study.Study, err)
		}
		r.Observations = append(r.Observations, model.Observation{
			Point:      point,
			Score:      e.Score,
			TrialName:  e.TrialName,
			RecordedAt: e.RecordedAt,
		})
	}
	return r, nil
}
