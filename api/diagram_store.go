package api

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Diagram is the thin view of a stored diagram that the collaboration
// engine needs: it only ever asks whether a diagram exists. Full diagram
// content lives with the external storage collaborator.
type Diagram struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	Name      string `gorm:"not null"`
	ProjectID string `gorm:"index"`
}

// TableName overrides the gorm table name
func (Diagram) TableName() string {
	return "diagrams"
}

// DiagramStore is the external storage collaborator consumed by the
// session engine. Existence doubles as the access check: the storage
// layer owns authorization policy.
type DiagramStore interface {
	// Exists reports whether the diagram can be joined by the caller
	Exists(ctx context.Context, diagramID string) (bool, error)
}

// GormDiagramStore is the database-backed DiagramStore
type GormDiagramStore struct {
	db *gorm.DB
}

// NewGormDiagramStore creates a DiagramStore backed by the given gorm database
func NewGormDiagramStore(db *gorm.DB) *GormDiagramStore {
	return &GormDiagramStore{db: db}
}

// Exists implements DiagramStore
func (s *GormDiagramStore) Exists(ctx context.Context, diagramID string) (bool, error) {
	var diagram Diagram
	err := s.db.WithContext(ctx).Select("id").First(&diagram, "id = ?", diagramID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query diagram %s: %w", diagramID, err)
	}
	return true, nil
}
