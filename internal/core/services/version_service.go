package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/google/uuid"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/diff"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/logger"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/ports"
	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/tracing"
)

// ErrCurrentVersion rejects deletion of the version row marked current.
var ErrCurrentVersion = errors.New("cannot delete the current version")

const (
	// Indexing status polling: bounded so a stalled indexer can never block
	// a save. 30 attempts x 2s, off the request path.
	indexPollAttempts = 30
	indexPollDelay    = 2 * time.Second
)

// SaveVersionInput describes one new version of a document's content.
type SaveVersionInput struct {
	Content       []byte
	WriteMode     string // diff.ModeReplace, diff.ModeAppend, diff.ModePrepend
	Model         domain.ModelAttribution
	ChangeSummary string
}

type VersionService struct {
	repo    ports.DocumentRepository
	store   ports.FileStore
	indexer ports.Indexer
	now     func() time.Time

	indexTimeout time.Duration
}

func NewVersionService(repo ports.DocumentRepository, store ports.FileStore, indexer ports.Indexer, indexTimeout time.Duration) *VersionService {
	if indexTimeout <= 0 {
		indexTimeout = indexPollAttempts*indexPollDelay + 30*time.Second
	}
	return &VersionService{
		repo:         repo,
		store:        store,
		indexer:      indexer,
		now:          time.Now,
		indexTimeout: indexTimeout,
	}
}

// CreateDocument registers a new document at version 1 and writes its
// primary file. Indexing of the original content is best-effort.
func (s *VersionService) CreateDocument(ctx context.Context, userID, projectID, name string, content []byte) (*domain.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.CreateDocument")
	defer span.End()

	doc := &domain.Document{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProjectID: projectID,
		Name:      name,
		Version:   1,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}

	path, err := s.store.PrimaryPath(userID, doc.ID, name)
	if err != nil {
		return nil, err
	}
	doc.FilePath = path

	if err := s.store.WriteFile(path, content); err != nil {
		return nil, fmt.Errorf("write document file: %w", err)
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	go s.indexDocument(doc, content, name)

	logger.InfoContext(ctx, "document created", "document_id", doc.ID, "user_id", userID)
	return doc, nil
}

// GetDocument returns one document.
func (s *VersionService) GetDocument(ctx context.Context, docID string) (*domain.Document, error) {
	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	return doc, nil
}

// ListVersions returns all versions of a document, newest first.
func (s *VersionService) ListVersions(ctx context.Context, docID string) ([]*domain.DocumentVersion, error) {
	if _, err := s.repo.GetDocument(ctx, docID); err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	versions, err := s.repo.ListVersions(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if versions == nil {
		versions = []*domain.DocumentVersion{}
	}
	return versions, nil
}

// SaveVersion archives new content as the next version of the document.
// The version number allocation, the is_current flip and the row insert are
// one transaction; the version file write happens inside it so a path
// violation or disk fault rolls everything back. Indexing runs afterwards,
// asynchronously and best-effort.
func (s *VersionService) SaveVersion(ctx context.Context, docID string, in SaveVersionInput) (*domain.DocumentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.SaveVersion")
	defer span.End()

	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		versionSavesTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}

	oldContent := s.previousContent(ctx, doc)
	d := diff.Compute(in.WriteMode, oldContent, in.Content)

	summary := in.ChangeSummary
	if summary == "" {
		summary = d.Description
	}

	now := s.now()
	version, err := s.repo.SaveVersion(ctx, doc.ID, func(versionNumber int) (*domain.DocumentVersion, error) {
		path, err := s.store.WriteVersion(doc.UserID, doc.ID, doc.Name, versionNumber, in.Content)
		if err != nil {
			return nil, err
		}
		return &domain.DocumentVersion{
			DocumentID:     doc.ID,
			VersionNumber:  versionNumber,
			FilePath:       path,
			Content:        string(in.Content),
			IsCurrent:      true,
			CreatedByModel: domain.NewModelAttribution(in.Model),
			ChangeSummary:  summary,
			ContentDiff:    domain.NewContentDiff(d),
			CreatedAt:      now,
		}, nil
	})
	if err != nil {
		if domain.IsPathViolation(err) {
			versionSavesTotal.WithLabelValues("path_violation").Inc()
			logger.ErrorContext(ctx, "version path violation", "document_id", doc.ID, "error", err)
			return nil, err
		}
		versionSavesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save version: %w", err)
	}

	go s.indexVersion(version, in.Content)

	versionSavesTotal.WithLabelValues("ok").Inc()
	logger.InfoContext(ctx, "version saved",
		"document_id", doc.ID, "version", version.VersionNumber, "additions", d.Additions, "deletions", d.Deletions)
	return version, nil
}

// RestoreVersion re-saves version n's content as a brand new version and
// overwrites the document's primary file. History is never rewritten.
func (s *VersionService) RestoreVersion(ctx context.Context, docID string, versionNumber int) (*domain.DocumentVersion, error) {
	ctx, span := tracing.StartSpan(ctx, "versions.RestoreVersion")
	defer span.End()

	doc, err := s.repo.GetDocument(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, domain.ErrNotFound)
	}
	v, err := s.repo.GetVersion(ctx, docID, versionNumber)
	if err != nil {
		return nil, fmt.Errorf("version %d of document %s: %w", versionNumber, docID, domain.ErrNotFound)
	}

	// The file is an optimization; the database copy is the survivable
	// source of truth.
	content, err := s.store.ReadFile(v.FilePath)
	if err != nil {
		logger.WarnContext(ctx, "version file missing, using database copy",
			"document_id", docID, "version", versionNumber, "error", err)
		content = []byte(v.Content)
	}

	restored, err := s.SaveVersion(ctx, docID, SaveVersionInput{
		Content:       content,
		WriteMode:     diff.ModeReplace,
		Model:         v.CreatedByModel.Data(),
		ChangeSummary: fmt.Sprintf("Restored from version %d", versionNumber),
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.WriteFile(doc.FilePath, content); err != nil {
		logger.WarnContext(ctx, "primary file overwrite failed",
			"document_id", docID, "path", doc.FilePath, "error", err)
	}

	logger.InfoContext(ctx, "version restored",
		"document_id", docID, "from_version", versionNumber, "new_version", restored.VersionNumber)
	return restored, nil
}

// DeleteVersion removes a historical version. The current version is
// untouchable; file and index cleanup are best-effort.
func (s *VersionService) DeleteVersion(ctx context.Context, docID string, versionNumber int) error {
	ctx, span := tracing.StartSpan(ctx, "versions.DeleteVersion")
	defer span.End()

	v, err := s.repo.GetVersion(ctx, docID, versionNumber)
	if err != nil {
		return fmt.Errorf("version %d of document %s: %w", versionNumber, docID, domain.ErrNotFound)
	}
	if v.IsCurrent {
		return ErrCurrentVersion
	}

	if v.FilePath != "" {
		if err := s.store.RemoveFile(v.FilePath); err != nil {
			logger.WarnContext(ctx, "version file removal failed",
				"document_id", docID, "version", versionNumber, "error", err)
		}
	}
	if v.RagDocumentID != "" && s.indexer != nil {
		if err := s.indexer.Remove(ctx, v.RagDocumentID); err != nil {
			logger.WarnContext(ctx, "index entry removal failed",
				"document_id", docID, "version", versionNumber, "error", err)
		}
	}

	if err := s.repo.DeleteVersion(ctx, v.ID); err != nil {
		return fmt.Errorf("delete version: %w", err)
	}

	logger.InfoContext(ctx, "version deleted", "document_id", docID, "version", versionNumber)
	return nil
}

// previousContent resolves what the document held before this save: the
// current version row if one exists, otherwise the primary file.
func (s *VersionService) previousContent(ctx context.Context, doc *domain.Document) []byte {
	versions, err := s.repo.ListVersions(ctx, doc.ID)
	if err == nil {
		for _, v := range versions {
			if v.IsCurrent {
				return []byte(v.Content)
			}
		}
	}
	if doc.FilePath != "" {
		if content, err := s.store.ReadFile(doc.FilePath); err == nil {
			return content
		}
	}
	return nil
}

// indexVersion uploads the version to the indexing collaborator and polls
// until completion or the attempt budget runs out. Runs detached from the
// request; every failure is a warning plus a metric, never an error.
func (s *VersionService) indexVersion(version *domain.DocumentVersion, content []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.indexTimeout)
	defer cancel()

	filename := fmt.Sprintf("%s_v%d%s", version.DocumentID, version.VersionNumber, filepath.Ext(version.FilePath))
	ragID, ok := s.uploadAndPoll(ctx, content, filename)
	if !ok {
		return
	}
	if err := s.repo.UpdateVersionIndexRef(ctx, version.ID, ragID); err != nil {
		logger.Warn("index reference update failed", "version_id", version.ID, "error", err)
	}
}

func (s *VersionService) indexDocument(doc *domain.Document, content []byte, filename string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.indexTimeout)
	defer cancel()

	ragID, ok := s.uploadAndPoll(ctx, content, filename)
	if !ok {
		return
	}
	doc.RagDocumentID = ragID
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		logger.Warn("document index reference update failed", "document_id", doc.ID, "error", err)
	}
}

func (s *VersionService) uploadAndPoll(ctx context.Context, content []byte, filename string) (string, bool) {
	if s.indexer == nil {
		return "", false
	}

	uploadID, err := s.indexer.Upload(ctx, content, filename)
	if err != nil {
		indexingFailuresTotal.Inc()
		logger.Warn("index upload failed", "filename", filename, "error", err)
		return "", false
	}

	var ragID string
	r := retry.New(
		retry.Attempts(indexPollAttempts),
		retry.Delay(indexPollDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	err = r.Do(func() error {
		status, err := s.indexer.PollStatus(ctx, uploadID)
		if err != nil {
			return err
		}
		switch status.Status {
		case ports.IndexStatusCompleted:
			ragID = status.DocumentID
			return nil
		case ports.IndexStatusFailed:
			return retry.Unrecoverable(fmt.Errorf("indexing failed for upload %s", uploadID))
		default:
			return fmt.Errorf("upload %s still processing", uploadID)
		}
	})
	if err != nil {
		indexingFailuresTotal.Inc()
		logger.Warn("index polling gave up", "upload_id", uploadID, "error", err)
		return "", false
	}
	return ragID, true
}
