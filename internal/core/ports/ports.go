package ports

import (
	"context"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

type AgentRepository interface {
	Create(ctx context.Context, agent *domain.Agent) error
	Get(ctx context.Context, id string) (*domain.Agent, error)
	GetByDNSName(ctx context.Context, dnsName string) (*domain.Agent, error)
	List(ctx context.Context) ([]*domain.Agent, error)

	// Transition persists the mutated agent row and appends its lifecycle
	// event in a single transaction. Either both land or neither does.
	Transition(ctx context.Context, agent *domain.Agent, event *domain.LifecycleEvent) error

	// RecordHeartbeat inserts the heartbeat row and persists the agent row
	// (last_heartbeat_at, possibly state and activated_at) atomically. A
	// non-nil event is appended in the same transaction.
	RecordHeartbeat(ctx context.Context, agent *domain.Agent, hb *domain.Heartbeat, event *domain.LifecycleEvent) error

	// Delete removes the agent; events and heartbeats cascade.
	Delete(ctx context.Context, id string) error

	ListEvents(ctx context.Context, agentID string, limit int) ([]*domain.LifecycleEvent, error)
	LatestHeartbeat(ctx context.Context, agentID string) (*domain.Heartbeat, error)
}

// VersionBuilder runs inside the save-version transaction, after the
// document's version counter has been bumped to versionNumber. It writes the
// version file and returns the row to insert. An error rolls everything back.
type VersionBuilder func(versionNumber int) (*domain.DocumentVersion, error)

type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	UpdateDocument(ctx context.Context, doc *domain.Document) error

	GetVersion(ctx context.Context, docID string, versionNumber int) (*domain.DocumentVersion, error)
	ListVersions(ctx context.Context, docID string) ([]*domain.DocumentVersion, error)

	// SaveVersion atomically increments the document's version counter,
	// invokes build with the new number, clears is_current on all prior
	// versions and inserts the built row as current. Version numbers are
	// strictly increasing and never reused, even under concurrent savers.
	SaveVersion(ctx context.Context, docID string, build VersionBuilder) (*domain.DocumentVersion, error)

	// UpdateVersionIndexRef records the external index id on a version row
	// after asynchronous indexing completes.
	UpdateVersionIndexRef(ctx context.Context, versionID int64, ragDocumentID string) error

	// DeleteVersion removes a single non-current version row. The is_current
	// guard is enforced by the caller.
	DeleteVersion(ctx context.Context, versionID int64) error
}

// DeploymentClient deletes the external deployment backing an agent.
// Callers treat failures as best-effort cleanup, never as a precondition.
type DeploymentClient interface {
	DeleteDeployment(ctx context.Context, name, namespace string) error
}

// Notifier delivers an owner-facing notification. Best-effort: a failed
// notification is logged and dead-lettered but never fails the operation.
type Notifier interface {
	Notify(ctx context.Context, ownerID, title, message, severity string, sendEmail bool) error
}

const (
	IndexStatusProcessing = "processing"
	IndexStatusCompleted  = "completed"
	IndexStatusFailed     = "failed"
)

type UploadStatus struct {
	Status     string `json:"status"`
	DocumentID string `json:"document_id,omitempty"`
}

// Indexer is the external search/RAG collaborator. All calls are best-effort;
// documents stay valid even if indexing never completes.
type Indexer interface {
	Upload(ctx context.Context, content []byte, filename string) (uploadID string, err error)
	PollStatus(ctx context.Context, uploadID string) (UploadStatus, error)
	Remove(ctx context.Context, documentID string) error
}

// FileStore persists version content on disk under a configured base
// directory. Implementations must reject any path that resolves outside it.
type FileStore interface {
	// WriteVersion derives the version file path from (owner, document,
	// base name, version number) and writes content to it.
	WriteVersion(ownerID, docID, baseName string, versionNumber int, content []byte) (path string, err error)

	// PrimaryPath derives the document's primary file location.
	PrimaryPath(ownerID, docID, baseName string) (string, error)

	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte) error
	RemoveFile(path string) error
}

// EventBus fans lifecycle events and health alerts out to dashboard
// consumers (websocket hub, MQTT bridge).
type EventBus interface {
	PublishEvent(ctx context.Context, event *domain.LifecycleEvent) error
	PublishAlert(ctx context.Context, alert *domain.HealthAlert) error
	SubscribeEvents(ctx context.Context) (<-chan domain.LifecycleEvent, error)
	SubscribeAlerts(ctx context.Context) (<-chan domain.HealthAlert, error)
}
