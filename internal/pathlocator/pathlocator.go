// Package pathlocator resolves every on-disk path AavionDB touches
// (spec.md C2) and sanitizes brain slugs. Grounded on the teacher's
// cmd/bd/setup/utils.go directory helpers and internal/config.go's
// root-discovery walk.
package pathlocator

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// ReservedSlug is the one brain slug no caller may use for a user brain.
const ReservedSlug = "system"

var slugDisallowed = regexp.MustCompile(`[^a-z0-9._-]`)

// Locator resolves directories under a single root.
type Locator struct {
	Root string
}

// New returns a Locator anchored at root. root is created (and its
// standard subtree) by EnsureDefaultDirectories, never implicitly here.
func New(root string) *Locator {
	return &Locator{Root: root}
}

func (l *Locator) SystemDir() string         { return filepath.Join(l.Root, "system") }
func (l *Locator) SystemStorageDir() string  { return filepath.Join(l.SystemDir(), "storage") }
func (l *Locator) SystemBrainPath() string   { return filepath.Join(l.SystemStorageDir(), "system.brain") }
func (l *Locator) SystemLogsDir() string     { return filepath.Join(l.SystemStorageDir(), "logs") }
func (l *Locator) SystemLogFile() string     { return filepath.Join(l.SystemLogsDir(), "aaviondb.log") }
func (l *Locator) SystemModulesDir() string  { return filepath.Join(l.SystemDir(), "modules") }

func (l *Locator) UserDir() string           { return filepath.Join(l.Root, "user") }
func (l *Locator) UserStorageDir() string    { return filepath.Join(l.UserDir(), "storage") }
func (l *Locator) UserCacheDir() string      { return filepath.Join(l.UserDir(), "cache") }
func (l *Locator) UserBackupsDir() string    { return filepath.Join(l.UserDir(), "backups") }
func (l *Locator) UserExportsDir() string    { return filepath.Join(l.UserDir(), "exports") }
func (l *Locator) UserPresetExportDir() string {
	return filepath.Join(l.UserDir(), "presets", "export")
}
func (l *Locator) UserModulesDir() string { return filepath.Join(l.UserDir(), "modules") }

// UserBrainPath returns the path to a sanitized brain slug's file.
func (l *Locator) UserBrainPath(slug string) string {
	return filepath.Join(l.UserStorageDir(), SanitizeSlug(slug)+".brain")
}

// EnsureDefaultDirectories creates every standard directory with
// permissive (owner-writable) permissions if missing.
func (l *Locator) EnsureDefaultDirectories() error {
	dirs := []string{
		l.SystemStorageDir(), l.SystemLogsDir(), l.SystemModulesDir(),
		l.UserStorageDir(), l.UserCacheDir(), l.UserBackupsDir(),
		l.UserExportsDir(), l.UserPresetExportDir(), l.UserModulesDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return aerr.Wrap(aerr.KindStorageFailure, err, "create directory %s", d)
		}
	}
	return nil
}

// SanitizeSlug lowercases s, replaces any character outside
// [a-z0-9._-] with '-', strips leading/trailing '-_.', and substitutes
// "default" for an empty result. The literal "system" is never
// substituted away — callers that must reject it do so explicitly via
// IsReserved.
func SanitizeSlug(s string) string {
	s = strings.ToLower(s)
	s = slugDisallowed.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_.")
	if s == "" {
		return "default"
	}
	return s
}

// IsReserved reports whether slug (after sanitization) is the reserved
// "system" slug.
func IsReserved(slug string) bool {
	return SanitizeSlug(slug) == ReservedSlug
}
