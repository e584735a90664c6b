package brainstore

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/pathlocator"
)

// BackupResult is returned by BackupBrain.
type BackupResult struct {
	Path       string `json:"path"`
	Bytes      int64  `json:"bytes"`
	Compressed bool   `json:"compressed"`
}

// BackupBrain copies slug's brain file into the backups directory,
// named "<slug>[--<label>]-YYYYmmdd_HHMMSS.brain[.gz]" (spec.md §4.4).
func (s *Store) BackupBrain(brainSlug, label string, compress bool) (*BackupResult, error) {
	bs, err := s.resolveSlugOrActive(brainSlug)
	if err != nil {
		return nil, err
	}
	srcPath := s.loc.UserBrainPath(bs)
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "read brain file for backup")
	}
	stamp := s.now().Format("20060102_150405")
	name := bs
	if label != "" {
		name += "--" + label
	}
	name += "-" + stamp + ".brain"
	if compress {
		name += ".gz"
	}
	destPath := filepath.Join(s.loc.UserBackupsDir(), name)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "create backups directory")
	}

	f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "create backup file")
	}
	defer f.Close()

	var written int64
	if compress {
		gw := gzip.NewWriter(f)
		n, err := gw.Write(raw)
		if err != nil {
			return nil, aerr.Wrap(aerr.KindStorageFailure, err, "write compressed backup")
		}
		if err := gw.Close(); err != nil {
			return nil, aerr.Wrap(aerr.KindStorageFailure, err, "close gzip writer")
		}
		written = int64(n)
	} else {
		n, err := f.Write(raw)
		if err != nil {
			return nil, aerr.Wrap(aerr.KindStorageFailure, err, "write backup")
		}
		written = int64(n)
	}

	s.bus.Emit("brain.backup.created", map[string]any{"slug": bs, "path": destPath})
	return &BackupResult{Path: destPath, Bytes: written, Compressed: compress}, nil
}

// BackupInfo describes one backup file on disk.
type BackupInfo struct {
	Path       string    `json:"path"`
	Slug       string    `json:"slug"`
	Label      string    `json:"label,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Compressed bool      `json:"compressed"`
	Bytes      int64     `json:"bytes"`
}

var backupNamePattern = func(name string) (slug, label string, ts time.Time, compressed bool, ok bool) {
	compressed = strings.HasSuffix(name, ".gz")
	trimmed := strings.TrimSuffix(name, ".gz")
	trimmed = strings.TrimSuffix(trimmed, ".brain")
	idx := strings.LastIndex(trimmed, "-")
	if idx < 0 {
		return "", "", time.Time{}, false, false
	}
	head, stamp := trimmed[:idx], trimmed[idx+1:]
	parsed, err := time.Parse("20060102_150405", stamp)
	if err != nil {
		return "", "", time.Time{}, false, false
	}
	if parts := strings.SplitN(head, "--", 2); len(parts) == 2 {
		return parts[0], parts[1], parsed, compressed, true
	}
	return head, "", parsed, compressed, true
}

// ListBackups lists every backup, optionally filtered to slug.
func (s *Store) ListBackups(slug string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.loc.UserBackupsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "list backups")
	}
	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		bslug, label, ts, compressed, ok := backupNamePattern(e.Name())
		if !ok {
			continue
		}
		if slug != "" && bslug != pathlocator.SanitizeSlug(slug) {
			continue
		}
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, BackupInfo{
			Path: filepath.Join(s.loc.UserBackupsDir(), e.Name()), Slug: bslug, Label: label,
			Timestamp: ts, Compressed: compressed, Bytes: size,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// PruneBackupsOptions configures PruneBackups.
type PruneBackupsOptions struct {
	Keep          int
	OlderThanDays int
	DryRun        bool
}

// PruneBackups removes old backups for slug, keeping the newest `Keep`
// and/or deleting anything older than OlderThanDays.
func (s *Store) PruneBackups(slug string, opts PruneBackupsOptions) ([]string, error) {
	backups, err := s.ListBackups(slug)
	if err != nil {
		return nil, err
	}
	// backups is sorted newest-first; a backup is deleted if it falls
	// outside the newest `Keep` OR is older than the cutoff — whichever
	// criterion is active.
	var toDelete []string
	cutoff := s.now().AddDate(0, 0, -opts.OlderThanDays)
	for i, b := range backups {
		exceedsKeep := opts.Keep > 0 && i >= opts.Keep
		tooOld := opts.OlderThanDays > 0 && b.Timestamp.Before(cutoff)
		if exceedsKeep || tooOld {
			toDelete = append(toDelete, b.Path)
		}
	}
	if !opts.DryRun {
		for _, p := range toDelete {
			os.Remove(p)
		}
	}
	return toDelete, nil
}

// RestoreBrain copies a backup file back into place, optionally under a
// different slug, and optionally activates it.
func (s *Store) RestoreBrain(backupPath, targetSlug string, activate, overwrite bool) (string, error) {
	raw, err := os.ReadFile(backupPath)
	if err != nil {
		return "", aerr.Wrap(aerr.KindStorageFailure, err, "read backup file")
	}
	if strings.HasSuffix(backupPath, ".gz") {
		raw, err = decompressGzip(raw)
		if err != nil {
			return "", aerr.Wrap(aerr.KindStorageFailure, err, "decompress backup")
		}
	}
	if targetSlug == "" {
		bslug, _, _, _, ok := backupNamePattern(filepath.Base(backupPath))
		if !ok {
			return "", aerr.New(aerr.KindInvalidParameter, "cannot infer target slug from backup filename")
		}
		targetSlug = bslug
	}
	targetSlug = pathlocator.SanitizeSlug(targetSlug)
	destPath := s.loc.UserBrainPath(targetSlug)
	if !overwrite {
		if _, err := os.Stat(destPath); err == nil {
			return "", aerr.New(aerr.KindInvalidParameter, "brain %q already exists; overwrite not set", targetSlug)
		}
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", aerr.Wrap(aerr.KindStorageFailure, err, "create storage directory")
	}
	if err := os.WriteFile(destPath, raw, 0o600); err != nil {
		return "", aerr.Wrap(aerr.KindStorageFailure, err, "write restored brain")
	}
	if activate {
		if err := s.SetActiveBrain(targetSlug); err != nil {
			return "", err
		}
	}
	s.bus.Emit("brain.backup.restored", map[string]any{"slug": targetSlug, "source": backupPath})
	return targetSlug, nil
}

func decompressGzip(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
