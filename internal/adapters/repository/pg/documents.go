package pg

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/ports"
)

// Document methods

func (r *Repository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var doc domain.Document
	if err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	return r.db.WithContext(ctx).Save(doc).Error
}

func (r *Repository) GetVersion(ctx context.Context, docID string, versionNumber int) (*domain.DocumentVersion, error) {
	var v domain.DocumentVersion
	if err := r.db.WithContext(ctx).
		First(&v, "document_id = ? AND version_number = ?", docID, versionNumber).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) ListVersions(ctx context.Context, docID string) ([]*domain.DocumentVersion, error) {
	var versions []*domain.DocumentVersion
	if err := r.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("version_number desc").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

// SaveVersion serializes concurrent savers with a row lock on the document,
// allocates the next number from the locked row, flips is_current and inserts
// the new row. Everything commits or rolls back as one unit, so there is
// always exactly one current version and numbers are never reused.
func (r *Repository) SaveVersion(ctx context.Context, docID string, build ports.VersionBuilder) (*domain.DocumentVersion, error) {
	var created *domain.DocumentVersion
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc domain.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&doc, "id = ?", docID).Error; err != nil {
			return err
		}

		next := doc.Version + 1
		v, err := build(next)
		if err != nil {
			return err
		}
		v.DocumentID = docID
		v.VersionNumber = next
		v.IsCurrent = true

		if err := tx.Model(&domain.DocumentVersion{}).
			Where("document_id = ? AND is_current = ?", docID, true).
			Update("is_current", false).Error; err != nil {
			return err
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Document{}).
			Where("id = ?", docID).
			Updates(map[string]interface{}{
				"version":    next,
				"updated_at": gorm.Expr("NOW()"),
			}).Error; err != nil {
			return err
		}

		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Repository) UpdateVersionIndexRef(ctx context.Context, versionID int64, ragDocumentID string) error {
	return r.db.WithContext(ctx).
		Model(&domain.DocumentVersion{}).
		Where("id = ?", versionID).
		Update("rag_document_id", ragDocumentID).Error
}

func (r *Repository) DeleteVersion(ctx context.Context, versionID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.DocumentVersion{}, "id = ?", versionID).Error
}
