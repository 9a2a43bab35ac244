package pg

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(dsn string) (*Repository, *gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}

	// Enable UUID extension
	db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"")

	if err := db.AutoMigrate(
		&domain.Agent{},
		&domain.LifecycleEvent{},
		&domain.Heartbeat{},
		&domain.Document{},
		&domain.DocumentVersion{},
	); err != nil {
		return nil, nil, err
	}

	return &Repository{db: db}, db, nil
}

// Agent methods

func (r *Repository) Create(ctx context.Context, agent *domain.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *Repository) GetByDNSName(ctx context.Context, dnsName string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := r.db.WithContext(ctx).First(&agent, "dns_name = ?", dnsName).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *Repository) List(ctx context.Context) ([]*domain.Agent, error) {
	var agents []*domain.Agent
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// Transition commits the agent row and its lifecycle event together, so the
// audit log can never drift from the state column.
func (r *Repository) Transition(ctx context.Context, agent *domain.Agent, event *domain.LifecycleEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(agent).Error; err != nil {
			return err
		}
		return tx.Create(event).Error
	})
}

func (r *Repository) RecordHeartbeat(ctx context.Context, agent *domain.Agent, hb *domain.Heartbeat, event *domain.LifecycleEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(hb).Error; err != nil {
			return err
		}
		if err := tx.Save(agent).Error; err != nil {
			return err
		}
		if event != nil {
			return tx.Create(event).Error
		}
		return nil
	})
}

// Delete removes the agent and, in the same transaction, its audit trail and
// heartbeat history.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("agent_id = ?", id).Delete(&domain.LifecycleEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("agent_id = ?", id).Delete(&domain.Heartbeat{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Agent{}, "id = ?", id).Error
	})
}

func (r *Repository) ListEvents(ctx context.Context, agentID string, limit int) ([]*domain.LifecycleEvent, error) {
	var events []*domain.LifecycleEvent
	if err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Repository) LatestHeartbeat(ctx context.Context, agentID string) (*domain.Heartbeat, error) {
	var hb domain.Heartbeat
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("created_at desc, id desc").
		First(&hb).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &hb, nil
}
