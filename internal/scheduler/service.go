// Package scheduler persists periodic snapshots of the live monitored set.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/buzzwatch/buzzwatch/internal/config"
	"github.com/buzzwatch/buzzwatch/internal/models"
	"github.com/buzzwatch/buzzwatch/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SnapshotSource provides the current live monitoring state, if any.
type SnapshotSource interface {
	MonitoringSnapshot() (*models.CacheEntry, bool)
}

// Service writes the active session's mention set to blob storage on a cron
// cadence, building a history of how a watched query evolved.
type Service struct {
	config  *config.Config
	source  SnapshotSource
	storage storage.Interface
	cron    *cron.Cron
}

// NewService creates a new snapshot scheduler
func NewService(cfg *config.Config, source SnapshotSource, st storage.Interface) *Service {
	return &Service{
		config:  cfg,
		source:  source,
		storage: st,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start begins the snapshot schedule. Without storage configured the
// scheduler stays idle.
func (s *Service) Start() error {
	if s.storage == nil {
		logrus.Info("Snapshot scheduler disabled - no storage configured")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.SnapshotCron, func() {
		if err := s.persistSnapshot(); err != nil {
			logrus.Errorf("Snapshot persistence failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule snapshots: %w", err)
	}

	s.cron.Start()
	logrus.Infof("Snapshot scheduler started with spec %q", s.config.SnapshotCron)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Snapshot scheduler stopped")
	}
}

func (s *Service) persistSnapshot() error {
	snapshot, ok := s.source.MonitoringSnapshot()
	if !ok {
		logrus.Debug("No active monitoring session, skipping snapshot")
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshots/%.12s-%s.json", snapshot.Fingerprint, time.Now().UTC().Format("2006-01-02-15-04-05"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.storage.Store(ctx, name, data); err != nil {
		return err
	}

	logrus.Infof("Persisted monitoring snapshot %s (%d mentions)", name, snapshot.Stats.TotalMentions)
	return nil
}
