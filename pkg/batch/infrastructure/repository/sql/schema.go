package sql

import "time"

// StudyEntity is the persisted header of an optimization record.
type StudyEntity struct {
	Study      string    `gorm:"column:study;primaryKey"`
	RunID      string    `gorm:"column:run_id"`
	Version    int       `gorm:"column:version"`
	Dimensions string    `gorm:"column:dimensions"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (StudyEntity) TableName() string {
	return "sweep_study"
}

// ObservationEntity is one persisted observation. Seq preserves the history order.
type ObservationEntity struct {
	Study      string    `gorm:"column:study;primaryKey"`
	Seq        int       `gorm:"column:seq;primaryKey;autoIncrement:false"`
	TrialName  string    `gorm:"column:trial_name"`
	Point      string    `gorm:"column:point"`
	Score      float64   `gorm:"column:score"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

func (ObservationEntity) TableName() string {
	return "sweep_observation"
}
