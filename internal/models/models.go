package models

import (
	"time"

	"commitstats/internal/stats"
)

// Repository defines a version-controlled project whose commit log is analysed.
type Repository struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Path           string `yaml:"path" json:"path"`
	RevisionCount  int    `yaml:"revision_count" json:"revision_count"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ReportEntry stores the outcome of one analysis run for a repository.
type ReportEntry struct {
	ID           string        `json:"id"`
	RepositoryID string        `json:"repository_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Report       *stats.Report `json:"report,omitempty"`
	Commits      []time.Time   `json:"commits,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// OK reports whether the run produced a report.
func (e ReportEntry) OK() bool {
	return e.Report != nil && e.Error == ""
}
