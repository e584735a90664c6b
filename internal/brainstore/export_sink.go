package brainstore

import (
	"os"
	"path/filepath"

	"github.com/dominikletica/aaviondb/internal/aerr"
)

// SaveExportFile writes rendered export content under the user exports
// directory (spec.md §6.1 "<root>/user/exports/…"), honoring an
// explicit relative/absolute path override when given.
func (s *Store) SaveExportFile(brainSlug, path, content string) (string, error) {
	dest := path
	if dest == "" {
		dest = filepath.Join(s.loc.UserExportsDir(), s.now().Format("20060102_150405")+".export")
	} else if !filepath.IsAbs(dest) {
		dest = filepath.Join(s.loc.UserExportsDir(), dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", aerr.Wrap(aerr.KindStorageFailure, err, "create exports directory")
	}
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return "", aerr.Wrap(aerr.KindStorageFailure, err, "write export file")
	}
	return dest, nil
}
