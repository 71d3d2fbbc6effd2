// Package quarantine implements the staging area a push session writes
// incoming pack/loose objects into before they are visible to the rest of
// the repository: a scratch objects directory linked back to the main
// object database via info/alternates, migrated into place atomically on
// success or discarded wholesale on failure.
package quarantine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/zlib"

	"github.com/grafana/git-receive-pack/cancel"
	"github.com/grafana/git-receive-pack/oid"
)

// streamChunkSize is the granularity at which StreamPack re-checks the
// cancellation flag while copying.
const streamChunkSize = 1 << 20

// State is the quarantine's position in its four-state lifecycle.
type State int

const (
	// StateNew is never observed externally; New always returns a
	// quarantine already in StateActive, since creating the on-disk
	// scaffolding is what makes a quarantine exist at all.
	StateNew State = iota
	StateActive
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrAlreadyFinalized is returned by Commit or Abort when the quarantine
// has already left StateActive.
var ErrAlreadyFinalized = errors.New("quarantine: already committed or aborted")

// Quarantine is a scoped resource holding the main objects directory, a
// temporary objects directory inside it, and the state machine
// governing whether the temporary directory's contents ever become
// visible to the main store.
type Quarantine struct {
	mainObjectsDir string
	tmpDir         string

	// Fsync enables an fsync of the main objects directory after each
	// entry migrated during Commit, for callers that want the migration
	// durable before it is visible.
	Fsync bool

	mu    sync.Mutex
	state State
}

// New creates the quarantine's on-disk scaffolding — a
// quarantine/tmp-<sessionID> directory inside mainObjectsDir, containing
// an info/alternates file that points back to mainObjectsDir so delta
// base lookups during indexing resolve against existing objects — and
// returns it in StateActive.
func New(mainObjectsDir, sessionID string) (*Quarantine, error) {
	tmpDir := filepath.Join(mainObjectsDir, "quarantine", "tmp-"+sessionID)

	if err := os.MkdirAll(filepath.Join(tmpDir, "info"), 0o755); err != nil {
		return nil, fmt.Errorf("quarantine: creating scaffolding: %w", err)
	}

	alternatesPath := filepath.Join(tmpDir, "info", "alternates")
	if err := os.WriteFile(alternatesPath, []byte(mainObjectsDir+"\n"), 0o644); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("quarantine: writing alternates: %w", err)
	}

	return &Quarantine{
		mainObjectsDir: mainObjectsDir,
		tmpDir:         tmpDir,
		state:          StateActive,
	}, nil
}

// State reports the quarantine's current lifecycle state.
func (q *Quarantine) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// ObjectsDir is the scratch directory hook invocations and the pack
// ingestor should treat as GIT_OBJECT_DIRECTORY.
func (q *Quarantine) ObjectsDir() string { return q.tmpDir }

// AlternatesPath is the absolute path to the alternates file inside the
// scratch directory.
func (q *Quarantine) AlternatesPath() string {
	return filepath.Join(q.tmpDir, "info", "alternates")
}

// Env returns the GIT_OBJECT_DIRECTORY / GIT_ALTERNATE_OBJECT_DIRECTORIES
// pair a spawned hook or helper process needs to see the quarantine's
// pending objects layered over the real ODB.
func (q *Quarantine) Env() []string {
	return []string{
		"GIT_OBJECT_DIRECTORY=" + q.tmpDir,
		"GIT_ALTERNATE_OBJECT_DIRECTORIES=" + q.mainObjectsDir,
	}
}

// PackHeaderSize is the fixed length of a pack file's header: the "PACK"
// magic, a 4-byte big-endian version, and a 4-byte big-endian object
// count.
const PackHeaderSize = 12

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// ErrBadPackHeader is returned when the first PackHeaderSize bytes of a
// pack stream do not begin with the "PACK" magic.
var ErrBadPackHeader = errors.New("quarantine: bad pack header")

// ParsePackHeader reads the object count out of a pack file's 12-byte
// header, validating the "PACK" magic.
func ParsePackHeader(header []byte) (version, objectCount uint32, err error) {
	if len(header) < PackHeaderSize {
		return 0, 0, fmt.Errorf("%w: short header", ErrBadPackHeader)
	}
	if [4]byte(header[:4]) != packMagic {
		return 0, 0, fmt.Errorf("%w: bad magic", ErrBadPackHeader)
	}
	version = binary.BigEndian.Uint32(header[4:8])
	objectCount = binary.BigEndian.Uint32(header[8:12])
	return version, objectCount, nil
}

// Strategy is the ingestion path chosen for an incoming pack.
type Strategy int

const (
	// StrategyUnpack inflates each object in the pack individually into a
	// loose object file, used for small pushes.
	StrategyUnpack Strategy = iota
	// StrategyIndex streams the pack bytes verbatim into the quarantine's
	// pack/ subdirectory for the external indexer to index in place, used
	// when the object count exceeds the configured limit.
	StrategyIndex
)

// SelectStrategy picks the ingestion path from transfer.unpackLimit:
// packs with more objects than unpackLimit are indexed in place rather
// than unpacked into loose objects. unpackLimit == 0 disables
// unpack-objects entirely (always index).
func SelectStrategy(objectCount, unpackLimit uint32) Strategy {
	if unpackLimit == 0 || objectCount > unpackLimit {
		return StrategyIndex
	}
	return StrategyUnpack
}

// StreamPack writes r verbatim into the quarantine's pack/ subdirectory
// for later indexing by the external index-pack collaborator, returning
// the path it was written to. The copy proceeds in streamChunkSize
// chunks, re-checking flag between each one so a cancellation mid-read
// of a large pack is noticed within about a MiB rather than only at the
// surrounding phase boundary; flag == nil is treated as cancel.Noop.
func (q *Quarantine) StreamPack(r io.Reader, flag cancel.Flag) (string, error) {
	if flag == nil {
		flag = cancel.Noop
	}

	q.mu.Lock()
	active := q.state == StateActive
	q.mu.Unlock()
	if !active {
		return "", ErrAlreadyFinalized
	}

	dir := filepath.Join(q.tmpDir, "pack")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("quarantine: creating pack dir: %w", err)
	}

	path := filepath.Join(dir, "incoming.pack")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("quarantine: creating pack file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, streamChunkSize)
	for {
		if flag.IsRequested() {
			return "", cancel.ErrCancelled
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("quarantine: writing pack file: %w", werr)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return "", fmt.Errorf("quarantine: writing pack file: %w", readErr)
		}
	}

	return path, nil
}

// looseObjectPath mirrors git's fan-out layout: the first two hex
// characters of the OID name a subdirectory, the rest name the file.
func looseObjectPath(root string, id oid.OID) string {
	hex := id.String()
	return filepath.Join(root, hex[:2], hex[2:])
}

// WriteLooseObject inflates a zlib-compressed object body (as found
// verbatim in an unpack-path pack entry) and writes it as a loose object
// file named by id, using renameio so the file only ever appears
// complete (a crash mid-write leaves no half-written object visible).
func (q *Quarantine) WriteLooseObject(id oid.OID, compressed io.Reader) error {
	q.mu.Lock()
	active := q.state == StateActive
	q.mu.Unlock()
	if !active {
		return ErrAlreadyFinalized
	}

	path := looseObjectPath(q.tmpDir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("quarantine: creating loose object dir: %w", err)
	}

	zr, err := zlib.NewReader(compressed)
	if err != nil {
		return fmt.Errorf("quarantine: inflating object %s: %w", id, err)
	}
	defer zr.Close()

	pf, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("quarantine: opening loose object %s: %w", id, err)
	}
	defer pf.Cleanup()

	if _, err := io.Copy(pf, zr); err != nil {
		return fmt.Errorf("quarantine: writing loose object %s: %w", id, err)
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("quarantine: finalizing loose object %s: %w", id, err)
	}

	return nil
}

// Commit migrates every top-level entry of the quarantine except info/
// up one level into the main objects directory, then removes the now
// empty quarantine directory. Each entry is moved with a single
// same-filesystem rename so it either fully appears or not at all; if
// Fsync is set, the main objects directory is fsynced after each move.
func (q *Quarantine) Commit() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != StateActive {
		return ErrAlreadyFinalized
	}

	entries, err := os.ReadDir(q.tmpDir)
	if err != nil {
		return fmt.Errorf("quarantine: reading scratch dir: %w", err)
	}

	for _, entry := range entries {
		if entry.Name() == "info" {
			continue
		}

		src := filepath.Join(q.tmpDir, entry.Name())
		dst := filepath.Join(q.mainObjectsDir, entry.Name())

		if err := migrateEntry(src, dst); err != nil {
			return fmt.Errorf("quarantine: migrating %s: %w", entry.Name(), err)
		}

		if q.Fsync {
			if err := fsyncDir(q.mainObjectsDir); err != nil {
				return fmt.Errorf("quarantine: fsyncing objects dir: %w", err)
			}
		}
	}

	if err := os.RemoveAll(q.tmpDir); err != nil {
		return fmt.Errorf("quarantine: removing scratch dir: %w", err)
	}

	q.state = StateCommitted
	return nil
}

// migrateEntry renames src to dst, merging into an existing directory of
// the same name one child at a time (git's fan-out directories like
// "3f" commonly already exist in the main store).
func migrateEntry(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !os.IsExist(err) && !errors.Is(err, syscall.ENOTEMPTY) {
		return err
	}

	info, statErr := os.Stat(src)
	if statErr != nil {
		return statErr
	}
	if !info.IsDir() {
		return os.Rename(src, dst)
	}

	children, readErr := os.ReadDir(src)
	if readErr != nil {
		return readErr
	}
	for _, child := range children {
		if err := migrateEntry(filepath.Join(src, child.Name()), filepath.Join(dst, child.Name())); err != nil {
			return err
		}
	}
	return os.Remove(src)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Abort discards the quarantine's scratch directory and all of its
// contents, leaving the main objects directory untouched.
func (q *Quarantine) Abort() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != StateActive {
		return ErrAlreadyFinalized
	}

	if err := os.RemoveAll(q.tmpDir); err != nil {
		return fmt.Errorf("quarantine: removing scratch dir: %w", err)
	}
	// Also drop the quarantine/ parent; os.Remove leaves it in place while
	// another session's scratch directory is still inside.
	_ = os.Remove(filepath.Dir(q.tmpDir))

	q.state = StateAborted
	return nil
}

// Close implements the guaranteed-cleanup-on-drop requirement: if the
// quarantine is still Active, it is aborted; otherwise Close is a no-op.
// Callers defer Close immediately after New so every exit path —
// including early returns and panics recovered higher up — leaves no
// quarantine residue unless Commit was explicitly reached.
func (q *Quarantine) Close() error {
	q.mu.Lock()
	active := q.state == StateActive
	q.mu.Unlock()

	if !active {
		return nil
	}
	return q.Abort()
}
