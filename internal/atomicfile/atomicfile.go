// Package atomicfile implements the atomic file writer (spec.md C3):
// temp-file write + exclusive lock + rename + re-read verification +
// single retry. Grounded on the teacher's cmd/bd/setup/utils.go
// atomicWriteFile (temp file in the same directory, rename-over-target)
// combined with the gofrs/flock exclusive-lock section the teacher uses
// around its own sync checkpoint writes (cmd/bd/sync.go).
package atomicfile

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/dominikletica/aaviondb/internal/aerr"
	"github.com/dominikletica/aaviondb/internal/codec"
	"github.com/dominikletica/aaviondb/internal/eventbus"
)

// WriteResult records the outcome of a successful Write, per spec §4.3
// step 7 ("last_write").
type WriteResult struct {
	Path      string
	Hash      string
	Attempts  int
	Timestamp time.Time
}

// Writer performs verified atomic writes and remembers the last
// success/failure for reporting (brainReport/integrityReport). It
// emits brain.write.completed/retry/integrity_failed (spec.md §4.14)
// on a caller-supplied bus.
type Writer struct {
	lastWrite   *WriteResult
	lastFailure *FailureInfo
	bus         *eventbus.Bus
}

// FailureInfo records the reason the most recent write attempt failed
// verification, per spec §4.3.
type FailureInfo struct {
	Path      string
	Reason    string
	Timestamp time.Time
}

// Reason constants from spec §4.3.
const (
	ReasonReadFailed        = "read_failed"
	ReasonHashMismatch      = "hash_mismatch"
	ReasonContentMismatch   = "content_mismatch"
	ReasonCanonicalMismatch = "canonical_mismatch"
	ReasonJSONDecodeError   = "json_decode_error"
)

// NewWriter constructs a Writer that emits its write-outcome events on
// bus. A nil bus is replaced with a no-op bus so callers that don't
// care about events (tests, the cache store) can still pass nil.
func NewWriter(bus *eventbus.Bus) *Writer {
	if bus == nil {
		bus = eventbus.New(nil)
	}
	return &Writer{bus: bus}
}

func (w *Writer) LastWrite() *WriteResult     { return w.lastWrite }
func (w *Writer) LastFailure() *FailureInfo   { return w.lastFailure }

// Write persists canonical bytes to path following the protocol in
// spec.md §4.3: ensure parent dir, write to a unique temp file under an
// exclusive lock, rename over the target, then re-read and verify byte
// content, hash, and canonical re-encode stability. On any verification
// failure it retries exactly once; a second failure returns
// IntegrityFailure.
func (w *Writer) Write(path string, canonical []byte) error {
	hash := codec.HashBytes(canonical)
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if err := w.attemptWrite(path, canonical, hash); err != nil {
			lastErr = err
			reason := reasonFromErr(err)
			w.lastFailure = &FailureInfo{Path: path, Reason: reason, Timestamp: time.Now()}
			w.bus.Emit("brain.write.integrity_failed", map[string]any{"path": path, "reason": reason, "attempt": attempt})
			if attempt < 2 {
				w.bus.Emit("brain.write.retry", map[string]any{"path": path, "reason": reason, "attempt": attempt})
			}
			continue
		}
		w.lastWrite = &WriteResult{Path: path, Hash: hash, Attempts: attempt, Timestamp: time.Now()}
		w.lastFailure = nil
		w.bus.Emit("brain.write.completed", map[string]any{"path": path, "hash": hash, "attempts": attempt})
		return nil
	}
	return aerr.Wrap(aerr.KindIntegrityFailure, lastErr, "atomic write failed verification twice for %s", path).
		WithReason(reasonFromErr(lastErr))
}

func reasonFromErr(err error) string {
	var e *aerr.Error
	if as, ok := err.(*aerr.Error); ok {
		e = as
	}
	if e != nil && e.Reason != "" {
		return e.Reason
	}
	return ReasonReadFailed
}

func (w *Writer) attemptWrite(path string, canonical []byte, hash string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "ensure parent dir for %s", path).WithReason(ReasonReadFailed)
	}

	tmp, err := os.CreateTemp(dir, ".aaviondb-*.tmp")
	if err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "create temp file in %s", dir).WithReason(ReasonReadFailed)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed away

	lock := flock.New(tmpPath + ".lock")
	if err := lock.Lock(); err != nil {
		tmp.Close()
		return aerr.Wrap(aerr.KindStorageFailure, err, "acquire exclusive lock for %s", path).WithReason(ReasonReadFailed)
	}
	defer func() {
		lock.Unlock()
		os.Remove(tmpPath + ".lock")
	}()

	if _, err := tmp.Write(canonical); err != nil {
		tmp.Close()
		return aerr.Wrap(aerr.KindStorageFailure, err, "write temp file").WithReason(ReasonReadFailed)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return aerr.Wrap(aerr.KindStorageFailure, err, "flush temp file").WithReason(ReasonReadFailed)
	}
	if err := tmp.Close(); err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "close temp file").WithReason(ReasonReadFailed)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "chmod temp file").WithReason(ReasonReadFailed)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "rename temp file over %s", path).WithReason(ReasonReadFailed)
	}

	return w.verify(path, canonical, hash)
}

// verify re-reads path and checks (a) byte content, (b) hash, and
// (c) decode+re-encode stability, per spec §4.3 step 5.
func (w *Writer) verify(path string, canonical []byte, hash string) error {
	readBack, err := os.ReadFile(path)
	if err != nil {
		return aerr.Wrap(aerr.KindStorageFailure, err, "re-read %s after write", path).WithReason(ReasonReadFailed)
	}
	if string(readBack) != string(canonical) {
		return aerr.New(aerr.KindIntegrityFailure, "content mismatch after write to %s", path).WithReason(ReasonContentMismatch)
	}
	if codec.HashBytes(readBack) != hash {
		return aerr.New(aerr.KindIntegrityFailure, "hash mismatch after write to %s", path).WithReason(ReasonHashMismatch)
	}
	decoded, err := codec.Decode(readBack)
	if err != nil {
		return aerr.Wrap(aerr.KindIntegrityFailure, err, "decode written content of %s", path).WithReason(ReasonJSONDecodeError)
	}
	reencoded, err := codec.Encode(decoded)
	if err != nil {
		return aerr.Wrap(aerr.KindIntegrityFailure, err, "re-encode written content of %s", path).WithReason(ReasonCanonicalMismatch)
	}
	if string(reencoded) != string(canonical) {
		return aerr.New(aerr.KindIntegrityFailure, "canonical re-encode mismatch for %s", path).WithReason(ReasonCanonicalMismatch)
	}
	return nil
}

// ReadAndDecode reads path and decodes it as a canonical JSON value. It
// is the read-side counterpart used by the brain store to load brains.
func ReadAndDecode(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindStorageFailure, err, "read %s", path)
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, aerr.Wrap(aerr.KindInvalidJSON, err, "decode %s", path)
	}
	return v, nil
}
