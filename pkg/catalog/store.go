package catalog

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillrouter/pkg/logger"
)

// Snapshot is an immutable view of the catalog. Queries in flight keep the
// snapshot they started with; a rebuild publishes a fresh one.
type Snapshot struct {
	skills    map[string]*SkillEntry
	names     []string
	parseErrs []*ParseError
}

// Lookup returns the skill with the given name, or nil if absent.
func (s *Snapshot) Lookup(name string) *SkillEntry {
	return s.skills[name]
}

// Skills returns all entries ordered by name. The slice is freshly allocated
// but the entries are shared and must not be mutated.
func (s *Snapshot) Skills() []*SkillEntry {
	out := make([]*SkillEntry, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.skills[name])
	}
	return out
}

// Names returns all skill names in sorted order.
func (s *Snapshot) Names() []string {
	return append([]string(nil), s.names...)
}

// Revision returns the revision counter of the named skill, or 0 when the
// skill is not in the snapshot.
func (s *Snapshot) Revision(name string) int64 {
	if skill := s.skills[name]; skill != nil {
		return skill.Revision
	}
	return 0
}

// Len returns the number of well-formed entries in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.names)
}

// ParseErrors returns the per-entry errors encountered while building this
// snapshot. Malformed entries are excluded from the snapshot, not fatal.
func (s *Snapshot) ParseErrors() []*ParseError {
	return s.parseErrs
}

// ParseErr aggregates all parse errors, or nil when the load was clean.
func (s *Snapshot) ParseErr() error {
	var result *multierror.Error
	for _, perr := range s.parseErrs {
		result = multierror.Append(result, perr)
	}
	return result.ErrorOrNil()
}

// Store owns the published catalog snapshot and the per-skill revision
// counters that outlive individual snapshots.
type Store struct {
	dirs    []string
	allowed []glob.Glob

	snap atomic.Pointer[Snapshot]

	mu     sync.Mutex // guards revs, hashes and snapshot publication
	revs   map[string]int64
	hashes map[string]string
}

// Option configures a Store.
type Option func(*Store) error

// WithDirs sets the corpus root directories to scan for skill bundles.
// On name collisions the first occurrence wins and the later bundle is
// reported as a parse error.
func WithDirs(dirs ...string) Option {
	return func(s *Store) error {
		if len(dirs) == 0 {
			return errors.New("at least one catalog directory must be specified")
		}
		s.dirs = dirs
		return nil
	}
}

// WithDefaultDirs scans the repo-local skills directory first, then the
// user-global one.
func WithDefaultDirs() Option {
	return func(s *Store) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		s.dirs = []string{
			"./skills",
			filepath.Join(homeDir, ".skillrouter", "skills"),
		}
		return nil
	}
}

// WithAllowlist restricts the catalog to skills whose names match one of the
// given glob patterns. An empty allowlist admits everything.
func WithAllowlist(patterns ...string) Option {
	return func(s *Store) error {
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern)
			if err != nil {
				return errors.Wrapf(err, "invalid allowlist pattern %q", pattern)
			}
			s.allowed = append(s.allowed, g)
		}
		return nil
	}
}

// NewStore creates a catalog store. The store is empty until Load is called.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		revs:   make(map[string]int64),
		hashes: make(map[string]string),
	}

	if len(opts) == 0 {
		if err := WithDefaultDirs()(s); err != nil {
			return nil, err
		}
	} else {
		for _, opt := range opts {
			if err := opt(s); err != nil {
				return nil, err
			}
		}
	}
	if len(s.dirs) == 0 {
		if err := WithDefaultDirs()(s); err != nil {
			return nil, err
		}
	}

	s.snap.Store(&Snapshot{skills: map[string]*SkillEntry{}})
	return s, nil
}

// Snapshot returns the currently published snapshot. Safe for concurrent
// readers; never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Load builds a fresh snapshot from the configured directories and publishes
// it atomically. Skills whose content changed since the previous load get
// their revision counter bumped, which invalidates cached "already loaded"
// session state for them.
//
// Malformed bundles become ParseErrors on the snapshot, not errors: a bad
// entry must not take down the rest of the catalog. Load itself fails only
// on transient filesystem trouble worth retrying: a configured directory
// that exists but cannot be read, or a SKILL.md that vanished between the
// existence check and the parse (an editor replacing the bundle mid-scan).
// A directory that simply does not exist is skipped.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	log := logger.G(ctx)

	snap := &Snapshot{skills: make(map[string]*SkillEntry)}
	hashes := make(map[string]string)

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				log.WithField("dir", dir).Debug("skipping missing catalog directory")
				continue
			}
			return nil, errors.Wrapf(err, "failed to read catalog directory %s", dir)
		}

		for _, dirEntry := range entries {
			bundleDir := filepath.Join(dir, dirEntry.Name())
			info, err := os.Stat(bundleDir)
			if err != nil || !info.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(bundleDir, SkillFileName)); err != nil {
				continue
			}

			skill, hash, err := parseSkillDir(bundleDir)
			if err != nil {
				// The SKILL.md existed a moment ago; failing to read it now
				// means the bundle is being rewritten under us. Retry-worthy.
				if isSkillFileRace(err) {
					return nil, errors.Wrapf(err, "failed to read %s", filepath.Join(bundleDir, SkillFileName))
				}
				perr := &ParseError{Path: filepath.Join(bundleDir, SkillFileName), Err: err}
				snap.parseErrs = append(snap.parseErrs, perr)
				log.WithError(perr).Warn("skipping malformed skill bundle")
				continue
			}
			if !s.allowedName(skill.Name) {
				continue
			}
			if _, exists := snap.skills[skill.Name]; exists {
				perr := &ParseError{
					Path: filepath.Join(bundleDir, SkillFileName),
					Name: skill.Name,
					Err:  errors.Errorf("duplicate skill name %q", skill.Name),
				}
				snap.parseErrs = append(snap.parseErrs, perr)
				log.WithError(perr).Warn("skipping duplicate skill bundle")
				continue
			}

			snap.skills[skill.Name] = skill
			hashes[skill.Name] = hash
		}
	}

	s.mu.Lock()
	for name, hash := range hashes {
		rev, known := s.revs[name]
		if !known {
			rev = 1
		} else if s.hashes[name] != hash {
			rev++
		}
		s.revs[name] = rev
		s.hashes[name] = hash
		snap.skills[name].Revision = rev
	}
	snap.names = make([]string, 0, len(snap.skills))
	for name := range snap.skills {
		snap.names = append(snap.names, name)
	}
	sort.Strings(snap.names)
	s.snap.Store(snap)
	s.mu.Unlock()

	log.WithField("skills", len(snap.names)).Debug("catalog snapshot published")
	return snap, nil
}

// Invalidate bumps the revision counter for a skill and republishes the
// snapshot with the new revision, forcing planners to reload its documents
// even for sessions that already hold them.
func (s *Store) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snap.Load()
	skill := old.skills[name]
	if skill == nil {
		return
	}

	s.revs[name]++

	bumped := *skill
	bumped.Revision = s.revs[name]

	next := &Snapshot{
		skills:    make(map[string]*SkillEntry, len(old.skills)),
		names:     old.names,
		parseErrs: old.parseErrs,
	}
	for n, sk := range old.skills {
		next.skills[n] = sk
	}
	next.skills[name] = &bumped
	s.snap.Store(next)
}

// isSkillFileRace reports whether the error is a filesystem failure on the
// bundle's SKILL.md itself, as opposed to a parse failure or a broken
// reference file.
func isSkillFileRace(err error) bool {
	var pathErr *os.PathError
	if !stderrors.As(err, &pathErr) {
		return false
	}
	return filepath.Base(pathErr.Path) == SkillFileName
}

func (s *Store) allowedName(name string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	for _, g := range s.allowed {
		if g.Match(name) {
			return true
		}
	}
	return false
}
