package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Release statuses recorded in the registry.
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// App database model. One row per deployed app, keyed by slug.
type App struct {
	ID      uuid.UUID `gorm:"type:uuid;primary_key"`
	Slug    string    `gorm:"uniqueIndex;not null"`
	Name    string
	RepoURL string `gorm:"not null"`
	Type    string `gorm:"not null"`
	// Meta is the manifest's free-form metadata, serialized as JSON.
	Meta string
	// CurrentRelease is the release number the current pointer serves,
	// nil when the app has never had a successful deploy.
	CurrentRelease *int
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Relationships
	Releases []Release `gorm:"foreignKey:AppID"`
}

// Release database model. History rows are immutable once completed;
// numbers are strictly increasing per app and never reused.
type Release struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	AppID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_app_release_number"`
	Number      int       `gorm:"not null;uniqueIndex:idx_app_release_number"`
	CommitSHA   string
	Ref         string
	Status      string `gorm:"not null"`
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&App{},
		&Release{},
	)
}
