package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"

	"github.com/joeblew999/plat-cover/internal/mapstore"
	"github.com/joeblew999/plat-cover/internal/project"
)

// ErrSessionNotFound is returned for an unknown session ID.
var ErrSessionNotFound = errors.New("session not found")

// Backend is the remote API sessions work against.
type Backend interface {
	project.TrainingSets
	mapstore.AOIUpdater
	GetProject(ctx context.Context, id int) (*project.Project, error)
}

// SessionConfig wires a SessionService.
type SessionConfig struct {
	DataDir      string
	Backend      Backend
	Fetcher      mapstore.Fetcher
	PlanetAPIKey string
	Bus          *EventBus
	Drafts       *DraftStore // optional
	Logger       *slog.Logger
}

// SessionService manages editing sessions. Session descriptors persist in
// the data directory; the map state is rebuilt on first use after a
// restart.
type SessionService struct {
	cfg   SessionConfig
	mu    sync.RWMutex
	infos map[string]SessionInfo
	live  map[string]*mapstore.Session
	now   func() time.Time
}

// NewSessionService creates a session service and loads known sessions.
func NewSessionService(cfg SessionConfig) *SessionService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus()
	}
	s := &SessionService{
		cfg:   cfg,
		infos: make(map[string]SessionInfo),
		live:  make(map[string]*mapstore.Session),
		now:   time.Now,
	}
	s.loadFromDisk()
	return s
}

// Bus returns the event bus sessions publish to.
func (s *SessionService) Bus() *EventBus { return s.cfg.Bus }

// Drafts returns the draft store, or nil when drafts are disabled.
func (s *SessionService) Drafts() *DraftStore { return s.cfg.Drafts }

// List returns all sessions, oldest first.
func (s *SessionService) List() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SessionInfo, 0, len(s.infos))
	for _, info := range s.infos {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Info returns the descriptor of a session.
func (s *SessionService) Info(id string) (SessionInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[id]
	return info, ok
}

// Create starts a session, optionally on a project.
func (s *SessionService) Create(ctx context.Context, projectID int) (SessionInfo, error) {
	info := SessionInfo{ID: uuid.NewString(), CreatedAt: s.now().UTC()}
	sess := s.newSession(info.ID)

	if projectID > 0 {
		if err := s.attachProject(ctx, sess, projectID); err != nil {
			return SessionInfo{}, err
		}
		info.ProjectID = projectID
	}

	s.mu.Lock()
	s.infos[info.ID] = info
	s.live[info.ID] = sess
	err := s.saveToDisk()
	s.mu.Unlock()
	if err != nil {
		return SessionInfo{}, err
	}

	s.cfg.Logger.InfoContext(ctx, "session created", slog.String("session", info.ID), slog.Int("project", projectID))
	s.cfg.Bus.Publish(Event{Session: info.ID, Resource: "sessions", Action: "created", ID: info.ID})
	return info, nil
}

// Get returns the live session, rebuilding it from its descriptor when the
// server restarted since it was created.
func (s *SessionService) Get(ctx context.Context, id string) (*mapstore.Session, error) {
	s.mu.RLock()
	sess, ok := s.live[id]
	info, known := s.infos[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}
	if !known {
		return nil, ErrSessionNotFound
	}

	sess = s.newSession(id)
	if info.ProjectID > 0 {
		if err := s.attachProject(ctx, sess, info.ProjectID); err != nil {
			return nil, err
		}
		if info.BasemapDate != "" {
			if err := sess.SetBasemapDate(ctx, info.BasemapDate); err != nil {
				s.cfg.Logger.WarnContext(ctx, "restoring basemap date failed", slog.String("session", id), slog.Any("error", err))
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[id]; ok {
		return existing, nil
	}
	s.live[id] = sess
	s.cfg.Logger.InfoContext(ctx, "session restored", slog.String("session", id))
	return sess, nil
}

// Delete removes a session.
func (s *SessionService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.infos[id]; !exists {
		return ErrSessionNotFound
	}
	delete(s.infos, id)
	delete(s.live, id)
	if err := s.saveToDisk(); err != nil {
		return err
	}
	s.cfg.Bus.Publish(Event{Session: id, Resource: "sessions", Action: "deleted", ID: id})
	return nil
}

// SetProject loads a project from the backend and makes it the session's
// active project.
func (s *SessionService) SetProject(ctx context.Context, id string, projectID int) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.attachProject(ctx, sess, projectID); err != nil {
		return err
	}
	return s.update(id, func(info *SessionInfo) {
		info.ProjectID = projectID
		info.BasemapDate = ""
	})
}

// Checkpoint records the session's displayed date and keeps its draft in
// step with the unsaved-changes flag: dirty polygons are stored, a clean
// state drops the draft. Draft failures are only logged.
func (s *SessionService) Checkpoint(ctx context.Context, id string, sess *mapstore.Session) {
	snap := sess.Snapshot()
	if info, ok := s.Info(id); ok && info.BasemapDate != snap.SelectedDate {
		if err := s.update(id, func(info *SessionInfo) { info.BasemapDate = snap.SelectedDate }); err != nil {
			s.cfg.Logger.WarnContext(ctx, "persisting session failed", slog.String("session", id), slog.Any("error", err))
		}
	}

	drafts := s.cfg.Drafts
	if drafts == nil || snap.ProjectID == 0 || snap.SelectedDate == "" {
		return
	}
	var err error
	if snap.Dirty {
		err = drafts.Put(ctx, snap.ProjectID, snap.SelectedDate, sess.ToGeoJSON())
	} else {
		err = drafts.Delete(ctx, snap.ProjectID, snap.SelectedDate)
	}
	if err != nil {
		s.cfg.Logger.WarnContext(ctx, "draft checkpoint failed",
			slog.String("session", id),
			slog.Int("project", snap.ProjectID),
			slog.String("date", snap.SelectedDate),
			slog.Any("error", err))
	}
}

func (s *SessionService) newSession(id string) *mapstore.Session {
	opts := mapstore.Options{
		Fetcher:      s.cfg.Fetcher,
		PlanetAPIKey: s.cfg.PlanetAPIKey,
		Notify:       s.cfg.Bus.Notifier(id),
		Logger:       s.cfg.Logger.With(slog.String("session", id)),
	}
	if s.cfg.Backend != nil {
		opts.Projects = project.NewStore(s.cfg.Backend)
		opts.AOI = s.cfg.Backend
	}
	return mapstore.NewSession(opts)
}

func (s *SessionService) attachProject(ctx context.Context, sess *mapstore.Session, projectID int) error {
	if s.cfg.Backend == nil {
		return xerrors.Newf("no backend configured for project %d", projectID)
	}
	p, err := s.cfg.Backend.GetProject(ctx, projectID)
	if err != nil {
		return xerrors.Newf("load project %d: %w", projectID, err)
	}
	return sess.SetProject(ctx, p)
}

func (s *SessionService) update(id string, fn func(*SessionInfo)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.infos[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(&info)
	s.infos[id] = info
	return s.saveToDisk()
}

// configFile returns the path to the sessions file.
func (s *SessionService) configFile() string {
	return filepath.Join(s.cfg.DataDir, "sessions.json")
}

// loadFromDisk loads session descriptors from disk.
func (s *SessionService) loadFromDisk() {
	if s.cfg.DataDir == "" {
		return
	}
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var infos map[string]SessionInfo
	if err := json.Unmarshal(data, &infos); err != nil {
		s.cfg.Logger.Warn("ignoring unreadable sessions file", slog.String("path", s.configFile()), slog.Any("error", err))
		return
	}
	if infos != nil {
		s.infos = infos
	}
}

// saveToDisk persists session descriptors. Callers hold s.mu.
func (s *SessionService) saveToDisk() error {
	if s.cfg.DataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.DataDir, 0755); err != nil {
		return xerrors.New(err)
	}

	data, err := json.MarshalIndent(s.infos, "", "  ")
	if err != nil {
		return xerrors.New(err)
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
