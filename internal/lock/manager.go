package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	ps "github.com/mitchellh/go-ps"
	"github.com/rs/zerolog"
)

// Holder describes the process holding a deploy lock. It is serialized
// as JSON into the lock file so other processes can report who is
// deploying.
type Holder struct {
	Slug       string    `json:"slug"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long the holder has held the lock.
func (h Holder) Age() time.Duration {
	return time.Since(h.AcquiredAt)
}

// InProgressError is returned when a deploy lock is already held by a
// live deploy and acquisition timed out.
type InProgressError struct {
	Slug   string
	Holder Holder
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("deploy already in progress for %s (pid %d on %s, held for %s)",
		e.Slug, e.Holder.PID, e.Holder.Hostname, e.Holder.Age().Round(time.Second))
}

// Manager hands out per-app deploy locks backed by lock files. The
// holder record is written to a private file and hard-linked to the
// lock path, so exactly one deploy per slug can claim it and a visible
// lock file is always fully written; stale files left by dead or wedged
// deploys are reclaimed.
type Manager struct {
	dir           string
	staleAfter    time.Duration
	retryInterval time.Duration
	logger        zerolog.Logger
}

// NewManager creates a lock manager rooted at dir.
func NewManager(dir string, staleAfter, retryInterval time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		dir:           dir,
		staleAfter:    staleAfter,
		retryInterval: retryInterval,
		logger:        logger.With().Str("component", "lock").Logger(),
	}
}

// Handle represents a held deploy lock.
type Handle struct {
	slug string
	path string
	// data is the exact holder record written at acquisition; Release
	// verifies it before removing the file.
	data     []byte
	released bool
}

// Slug returns the app slug the lock covers.
func (h *Handle) Slug() string {
	return h.slug
}

// Release removes the lock file. Releasing twice is harmless. A lock
// that was broken as stale and claimed by another deploy is left alone;
// removing it would steal the new holder's claim.
func (h *Handle) Release() error {
	if h.released {
		return nil
	}
	h.released = true

	current, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock for %s: %w", h.slug, err)
	}
	if !bytes.Equal(current, h.data) {
		return nil
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock for %s: %w", h.slug, err)
	}
	return nil
}

// Acquire blocks until the deploy lock for slug is acquired or timeout
// elapses. On timeout it returns an InProgressError naming the holder.
func (m *Manager) Acquire(ctx context.Context, slug string, timeout time.Duration) (*Handle, error) {
	deadline := time.Now().Add(timeout)

	for {
		handle, holder, err := m.TryAcquire(slug)
		if err != nil {
			return nil, err
		}
		if handle != nil {
			return handle, nil
		}

		if time.Now().Add(m.retryInterval).After(deadline) {
			return nil, &InProgressError{Slug: slug, Holder: *holder}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.retryInterval):
		}
	}
}

// TryAcquire makes a single attempt to take the lock for slug. When the
// lock is held by a live deploy it returns (nil, holder, nil); stale
// locks are broken and the claim retried.
func (m *Manager) TryAcquire(slug string) (*Handle, *Holder, error) {
	path := m.lockPath(slug)

	for {
		handle, err := m.claim(slug, path)
		if err == nil {
			return handle, nil, nil
		}
		if !os.IsExist(err) {
			return nil, nil, err
		}

		holder, readErr := m.readHolder(path)
		if readErr != nil {
			// The holder released between our attempts; try again.
			if os.IsNotExist(readErr) {
				continue
			}
			// The claim protocol writes the holder before the lock
			// becomes visible, so an unparsable file is debris from a
			// crashed writer. It is still treated as held until it
			// ages out; breaking it on sight would race a live claim.
			info, statErr := os.Stat(path)
			if statErr != nil {
				continue
			}
			if m.staleAfter > 0 && time.Since(info.ModTime()) > m.staleAfter {
				m.logger.Warn().Str("slug", slug).Err(readErr).
					Msg("Reclaiming unreadable deploy lock")
				if err := m.breakLock(path); err != nil {
					return nil, nil, fmt.Errorf("failed to reclaim lock for %s: %w", slug, err)
				}
				continue
			}
			return nil, &Holder{Slug: slug, AcquiredAt: info.ModTime()}, nil
		}

		if m.isStale(holder) {
			m.logger.Warn().
				Str("slug", slug).
				Int("pid", holder.PID).
				Str("hostname", holder.Hostname).
				Dur("age", holder.Age()).
				Msg("Reclaiming stale deploy lock")
			if err := m.breakLock(path); err != nil {
				return nil, nil, fmt.Errorf("failed to reclaim lock for %s: %w", slug, err)
			}
			continue
		}

		return nil, &holder, nil
	}
}

// claim attempts to atomically create the lock file. The holder record
// is written to a private temp file and hard-linked to the lock path:
// the link fails when the lock already exists, and a lock that is
// visible to others is always fully written. A held lock surfaces as an
// error satisfying os.IsExist.
func (m *Manager) claim(slug, path string) (*Handle, error) {
	holder := Holder{
		Slug:       slug,
		PID:        os.Getpid(),
		Hostname:   hostname(),
		AcquiredAt: time.Now(),
	}
	data, err := json.Marshal(holder)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock holder for %s: %w", slug, err)
	}

	tmp := filepath.Join(m.dir, "."+slug+"-"+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lock file for %s: %w", slug, err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if os.IsExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create lock file for %s: %w", slug, err)
	}

	return &Handle{slug: slug, path: path, data: data}, nil
}

// breakLock removes a lock file that several waiters may have observed
// as stale at once. The file is renamed to a private name first, so
// exactly one waiter wins the break; the losers find the lock gone and
// race for a fresh claim.
func (m *Manager) breakLock(path string) error {
	moved := path + "." + uuid.New().String()[:8] + ".reclaim"
	if err := os.Rename(path, moved); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(moved)
}

// ListLocks returns the holders of all currently held deploy locks,
// keyed by slug.
func (m *Manager) ListLocks() (map[string]Holder, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Holder{}, nil
		}
		return nil, fmt.Errorf("failed to list locks: %w", err)
	}

	locks := make(map[string]Holder)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), lockSuffix) {
			continue
		}
		holder, err := m.readHolder(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		locks[holder.Slug] = holder
	}
	return locks, nil
}

const lockSuffix = ".lock"

func (m *Manager) lockPath(slug string) string {
	return filepath.Join(m.dir, slug+lockSuffix)
}

func (m *Manager) readHolder(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}

	var holder Holder
	if err := json.Unmarshal(data, &holder); err != nil {
		return Holder{}, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return holder, nil
}

// isStale reports whether a lock may be reclaimed. A lock is stale when
// it outlived the configured age, or when it was taken on this host by a
// process that no longer exists.
func (m *Manager) isStale(holder Holder) bool {
	if m.staleAfter > 0 && holder.Age() > m.staleAfter {
		return true
	}

	if holder.Hostname != hostname() {
		// Liveness can only be checked for local processes.
		return false
	}

	process, err := ps.FindProcess(holder.PID)
	if err != nil {
		return false
	}
	return process == nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
