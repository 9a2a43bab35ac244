package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Document is the denormalized head record: its Version field always points
// at the current version number. Version 1 is the original upload; saved
// versions start at 2.
type Document struct {
	ID        string `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    string `json:"user_id" gorm:"index"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	FilePath  string `json:"file_path"`
	Version   int    `json:"version" gorm:"default:1"`

	// External index reference; empty when the document was never indexed.
	RagDocumentID string `json:"rag_document_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// ModelAttribution names the model that produced a version's content.
type ModelAttribution struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Version  string `json:"version,omitempty"`
}

// ContentDiff is a size-based change descriptor, not a semantic diff. It
// populates the audit trail and is never used for merge or patch.
type ContentDiff struct {
	Additions   int    `json:"additions"`
	Deletions   int    `json:"deletions"`
	Description string `json:"description,omitempty"`
}

// NewModelAttribution wraps m for storage in the version's JSON column.
func NewModelAttribution(m ModelAttribution) datatypes.JSONType[ModelAttribution] {
	return datatypes.NewJSONType(m)
}

// NewContentDiff wraps d for storage in the version's JSON column.
func NewContentDiff(d ContentDiff) datatypes.JSONType[ContentDiff] {
	return datatypes.NewJSONType(d)
}

// DocumentVersion rows are append-only except for the IsCurrent flip. The
// Content column duplicates the on-disk file so a version survives file loss;
// the database row is the source of truth.
type DocumentVersion struct {
	ID            int64  `json:"id" gorm:"primaryKey"`
	DocumentID    string `json:"document_id" gorm:"type:uuid;uniqueIndex:idx_doc_version,priority:1;not null"`
	VersionNumber int    `json:"version_number" gorm:"uniqueIndex:idx_doc_version,priority:2"`

	FilePath  string `json:"file_path"`
	Content   string `json:"content"`
	IsCurrent bool   `json:"is_current" gorm:"index"`

	CreatedByModel datatypes.JSONType[ModelAttribution] `json:"created_by_model"`
	ChangeSummary  string                               `json:"change_summary"`
	ContentDiff    datatypes.JSONType[ContentDiff]      `json:"content_diff"`

	RagDocumentID string `json:"rag_document_id"`

	CreatedAt time.Time `json:"created_at"`

	Document Document `json:"-" gorm:"foreignKey:DocumentID;references:ID;constraint:OnDelete:CASCADE"`
}

func (DocumentVersion) TableName() string {
	return "document_versions"
}
