package models

import "time"

// CadencePoint is one bucket of a repository's commit cadence.
type CadencePoint struct {
	ClassName string    `json:"className"`
	Label     string    `json:"label"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Commits   int       `json:"commits"`
}

// RepositoryCadence aggregates cadence points for a single repository.
type RepositoryCadence struct {
	RepositoryID   string         `json:"repository_id"`
	RepositoryName string         `json:"repository_name"`
	Cadence        []CadencePoint `json:"cadence"`
}
