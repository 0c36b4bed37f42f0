// Package maintenance prunes expired session output and verifies that
// archived sessions are still present in the object store.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dataagent/dataagent/internal/artifacts"
	"github.com/dataagent/dataagent/internal/storage"
	"github.com/dataagent/dataagent/internal/store"
)

type SessionReader interface {
	ListSessions(ctx context.Context, limit int) ([]store.SessionSummary, error)
	GetSession(ctx context.Context, sessionID string) (store.SessionRecord, error)
}

type Config struct {
	RetentionInterval     time.Duration
	SessionMaxAge         time.Duration
	IntegrityInterval     time.Duration
	IntegritySessionLimit int
}

type Service struct {
	BaseDir     string
	Sessions    SessionReader
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       clockwork.Clock
}

type RetentionSummary struct {
	SessionsScanned int `json:"sessions_scanned"`
	SessionsDeleted int `json:"sessions_deleted"`
	ObjectsDeleted  int `json:"objects_deleted"`
	Failures        int `json:"failures"`
}

type IntegritySummary struct {
	SessionsScanned     int `json:"sessions_scanned"`
	ArchivedSessions    int `json:"archived_sessions"`
	ObjectsChecked      int `json:"objects_checked"`
	MissingArchives     int `json:"missing_archives"`
	OperationalFailures int `json:"operational_failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	retentionTicker := s.Clock.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()
	integrityTicker := s.Clock.NewTicker(s.Config.IntegrityInterval)
	defer integrityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retentionTicker.Chan():
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
		case <-integrityTicker.Chan():
			if s.Sessions == nil || s.ObjectStore == nil {
				continue
			}
			summary, err := s.RunIntegrityCheckOnce(ctx)
			if err != nil {
				s.Logger.ErrorContext(ctx, "integrity check failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "integrity check completed", slog.Any("summary", summary))
		}
	}
}

// RunRetentionOnce removes session directories under BaseDir that were last
// modified before SessionMaxAge, together with their archived objects.
func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if strings.TrimSpace(s.BaseDir) == "" {
		return RetentionSummary{}, fmt.Errorf("base dir is required")
	}

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			retentionRunsTotal.WithLabelValues("completed").Inc()
			return RetentionSummary{}, nil
		}
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return RetentionSummary{}, fmt.Errorf("list session directories: %w", err)
	}

	cutoff := s.Clock.Now().Add(-s.Config.SessionMaxAge)
	summary := RetentionSummary{}
	failures := make([]string, 0)

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		summary.SessionsScanned++
		info, err := entry.Info()
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("session %s stat: %v", entry.Name(), err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		sessionID := entry.Name()
		if s.ObjectStore != nil {
			deleted, err := s.deleteArchive(ctx, sessionID)
			summary.ObjectsDeleted += deleted
			if err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("session %s archive: %v", sessionID, err))
				continue
			}
		}
		if err := os.RemoveAll(filepath.Join(s.BaseDir, sessionID)); err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("session %s remove: %v", sessionID, err))
			continue
		}
		summary.SessionsDeleted++
		s.Logger.DebugContext(ctx, "pruned expired session", slog.String("session_id", sessionID))
	}

	if summary.SessionsDeleted > 0 {
		sessionsPrunedTotal.Add(float64(summary.SessionsDeleted))
	}
	if summary.ObjectsDeleted > 0 {
		archiveObjectsDeletedTotal.Add(float64(summary.ObjectsDeleted))
	}
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce inspects the most recent sessions that recorded an
// archive prefix and counts those whose objects are gone. A session that
// stored a result must also have its result.parquet.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.Sessions == nil {
		return IntegritySummary{}, fmt.Errorf("session store is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	sessions, err := s.Sessions.ListSessions(ctx, s.Config.IntegritySessionLimit)
	if err != nil {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return IntegritySummary{}, fmt.Errorf("list sessions: %w", err)
	}

	summary := IntegritySummary{SessionsScanned: len(sessions)}
	failures := make([]string, 0)
	for _, session := range sessions {
		record, err := s.Sessions.GetSession(ctx, session.SessionID)
		if err != nil {
			summary.OperationalFailures++
			failures = append(failures, fmt.Sprintf("session %s: %v", session.SessionID, err))
			continue
		}
		if record.ArchivePrefix == "" {
			continue
		}
		summary.ArchivedSessions++

		objects, err := s.ObjectStore.List(ctx, record.ArchivePrefix)
		if err != nil {
			summary.OperationalFailures++
			failures = append(failures, fmt.Sprintf("session %s list archive: %v", session.SessionID, err))
			continue
		}
		summary.ObjectsChecked += len(objects)
		if len(objects) == 0 || (len(record.ResultJSON) > 0 && !containsObject(objects, path.Join(record.ArchivePrefix, artifacts.ResultFileName))) {
			summary.MissingArchives++
			s.Logger.WarnContext(ctx, "session archive incomplete",
				slog.String("session_id", session.SessionID),
				slog.String("archive_prefix", record.ArchivePrefix),
				slog.Int("objects", len(objects)),
			)
		}
	}

	if summary.MissingArchives > 0 {
		integrityMissingArchivesTotal.Add(float64(summary.MissingArchives))
	}
	if len(failures) > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("integrity check encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) deleteArchive(ctx context.Context, sessionID string) (int, error) {
	prefix, err := storage.BuildSessionPrefix(sessionID)
	if err != nil {
		return 0, err
	}
	objects, err := s.ObjectStore.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list archive: %w", err)
	}
	deleted := 0
	for _, object := range objects {
		if err := s.ObjectStore.Delete(ctx, object.Key); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", object.Key, err)
		}
		deleted++
	}
	return deleted, nil
}

func containsObject(objects []storage.ObjectInfo, key string) bool {
	for _, object := range objects {
		if object.Key == key {
			return true
		}
	}
	return false
}

func (s *Service) ensureDefaults() {
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
	if s.Config.SessionMaxAge <= 0 {
		s.Config.SessionMaxAge = 7 * 24 * time.Hour
	}
	if s.Config.IntegrityInterval <= 0 {
		s.Config.IntegrityInterval = 6 * time.Hour
	}
	if s.Config.IntegritySessionLimit <= 0 {
		s.Config.IntegritySessionLimit = 100
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Clock == nil {
		s.Clock = clockwork.NewRealClock()
	}
}
