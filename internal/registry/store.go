package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrAppNotFound is returned when no app with the given slug exists.
	ErrAppNotFound = errors.New("app not found")

	// ErrReleaseNotFound is returned when an app has no release with the
	// given number.
	ErrReleaseNotFound = errors.New("release not found")
)

// UnavailableError reports a registry operation that failed because the
// backing database could not serve it.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("registry unavailable: failed to %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// Store provides registry operations for apps and their release history
type Store struct {
	db *gorm.DB
}

// NewStore creates a new registry store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateOrGetApp returns the app registered under slug, creating it on
// first deploy. Mutable fields (name, type, repo URL) are refreshed when
// the manifest changed since the last deploy.
func (s *Store) CreateOrGetApp(ctx context.Context, slug, repoURL, name, appType, meta string) (*App, error) {
	var app App

	err := s.db.WithContext(ctx).First(&app, "slug = ?", slug).Error
	if err == nil {
		changed := false
		if name != "" && app.Name != name {
			app.Name = name
			changed = true
		}
		if appType != "" && app.Type != appType {
			app.Type = appType
			changed = true
		}
		if repoURL != "" && app.RepoURL != repoURL {
			app.RepoURL = repoURL
			changed = true
		}
		if app.Meta != meta {
			app.Meta = meta
			changed = true
		}
		if changed {
			if err := s.db.WithContext(ctx).Save(&app).Error; err != nil {
				return nil, unavailable("update app", err)
			}
		}
		return &app, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unavailable("get app", err)
	}

	app = App{
		ID:      uuid.New(),
		Slug:    slug,
		Name:    name,
		RepoURL: repoURL,
		Type:    appType,
		Meta:    meta,
	}
	if app.Name == "" {
		app.Name = slug
	}
	if err := s.db.WithContext(ctx).Create(&app).Error; err != nil {
		return nil, unavailable("create app", err)
	}

	return &app, nil
}

// GetApp retrieves an app by slug
func (s *Store) GetApp(ctx context.Context, slug string) (*App, error) {
	var app App

	if err := s.db.WithContext(ctx).First(&app, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAppNotFound, slug)
		}
		return nil, unavailable("get app", err)
	}

	return &app, nil
}

// ListApps retrieves all registered apps ordered by slug
func (s *Store) ListApps(ctx context.Context) ([]App, error) {
	var apps []App

	if err := s.db.WithContext(ctx).Order("slug ASC").Find(&apps).Error; err != nil {
		return nil, unavailable("list apps", err)
	}

	return apps, nil
}

// RecordReleaseStart allocates the next release number for the app and
// records a pending history row. The number is read and the row inserted
// in one transaction so numbers stay strictly increasing; a failed
// release still consumes its number.
func (s *Store) RecordReleaseStart(ctx context.Context, appID uuid.UUID, commitSHA, ref string) (*Release, error) {
	release := &Release{
		ID:        uuid.New(),
		AppID:     appID,
		CommitSHA: commitSHA,
		Ref:       ref,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		if err := tx.Model(&Release{}).
			Where("app_id = ?", appID).
			Select("COALESCE(MAX(number), 0)").
			Scan(&latest).Error; err != nil {
			return fmt.Errorf("failed to read latest release number: %w", err)
		}

		release.Number = latest + 1

		if err := tx.Create(release).Error; err != nil {
			return fmt.Errorf("failed to create release: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("record release start", err)
	}

	return release, nil
}

// RecordReleaseOutcome marks a release as succeeded or failed and stamps
// its completion time. Completed rows are never rewritten afterwards.
func (s *Store) RecordReleaseOutcome(ctx context.Context, releaseID uuid.UUID, status, errorSummary string) error {
	now := time.Now()

	if err := s.db.WithContext(ctx).
		Model(&Release{}).
		Where("id = ?", releaseID).
		Updates(map[string]interface{}{
			"status":       status,
			"error":        errorSummary,
			"completed_at": now,
		}).Error; err != nil {
		return unavailable("record release outcome", err)
	}

	return nil
}

// SetCurrent records which release number the app's current pointer serves
func (s *Store) SetCurrent(ctx context.Context, appID uuid.UUID, number int) error {
	if err := s.db.WithContext(ctx).
		Model(&App{}).
		Where("id = ?", appID).
		Update("current_release", number).Error; err != nil {
		return unavailable("set current release", err)
	}

	return nil
}

// History retrieves release rows for an app, newest first. A limit of 0
// returns the full history.
func (s *Store) History(ctx context.Context, appID uuid.UUID, limit int) ([]Release, error) {
	query := s.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("number DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var releases []Release
	if err := query.Find(&releases).Error; err != nil {
		return nil, unavailable("list releases", err)
	}

	return releases, nil
}

// GetRelease retrieves a single release row by app and number
func (s *Store) GetRelease(ctx context.Context, appID uuid.UUID, number int) (*Release, error) {
	var release Release

	if err := s.db.WithContext(ctx).
		First(&release, "app_id = ? AND number = ?", appID, number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: release %d", ErrReleaseNotFound, number)
		}
		return nil, unavailable("get release", err)
	}

	return &release, nil
}
