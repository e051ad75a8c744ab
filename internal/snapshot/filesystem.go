package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"twcc/internal/twcc"
)

// FileSystemStore keeps snapshots as files, one directory per user:
//
//	<root>/
//	  <userID>/
//	    <stamp>-<id>.jsonl[.age]   (one file per snapshot, never rewritten)
//	    .lock                      (present while a run holds the claim)
type FileSystemStore struct {
	root   string
	cipher twcc.Cipher
	idgen  twcc.IDGenerator
}

// NewFileSystemStore creates a store rooted at root. The directory is
// created if needed.
func NewFileSystemStore(root string, cipher twcc.Cipher, idgen twcc.IDGenerator) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if cipher == nil {
		cipher = twcc.PlainCipher{}
	}
	return &FileSystemStore{root: root, cipher: cipher, idgen: idgen}, nil
}

func (s *FileSystemStore) userDir(userID string) string {
	return filepath.Join(s.root, userID)
}

// entries lists the user's snapshot files, oldest first.
func (s *FileSystemStore) entries(userID string) ([]entry, error) {
	des, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}
	var out []entry
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		e, ok := parseSnapshotName(de.Name())
		if !ok {
			continue
		}
		if info, err := de.Info(); err == nil {
			e.size = info.Size()
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}

// LoadLatest reads the newest snapshot file for userID.
func (s *FileSystemStore) LoadLatest(ctx context.Context, userID string) (*twcc.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.entries(userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: user %s", twcc.ErrNotFound, userID)
	}

	latest := entries[len(entries)-1]
	key := filepath.Join(userID, latest.name)
	c, err := openerFor(latest, s.cipher)
	if err != nil {
		return nil, &twcc.CorruptSnapshotError{UserID: userID, Key: key, Err: err}
	}

	f, err := os.Open(filepath.Join(s.root, key))
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return open(userID, key, f, c)
}

// Save writes the snapshot under a new, unique name.
func (s *FileSystemStore) Save(ctx context.Context, snap *twcc.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := s.userDir(snap.UserID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create user directory: %w", err)
	}
	entries, err := s.entries(snap.UserID)
	if err != nil {
		return "", err
	}

	data, err := seal(snap, s.cipher)
	if err != nil {
		return "", err
	}
	name := snapshotName(nextStamp(entries, snap.CapturedAt), s.idgen.New(), s.cipher.Suffix())
	destPath := filepath.Join(dir, name)
	if err := writeFile(destPath, data); err != nil {
		return "", err
	}
	return filepath.Join(snap.UserID, name), nil
}

// List returns the user's snapshots, oldest first.
func (s *FileSystemStore) List(ctx context.Context, userID string) ([]twcc.SnapshotInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.entries(userID)
	if err != nil {
		return nil, err
	}
	return infos(userID, entries, func(name string) string { return filepath.Join(userID, name) }), nil
}

// Claim creates the user's lock file exclusively.
func (s *FileSystemStore) Claim(ctx context.Context, userID string) (twcc.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create user directory: %w", err)
	}
	path := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s (remove it if no run is active)", twcc.ErrRunInProgress, path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	host, _ := os.Hostname()
	fmt.Fprintf(f, "pid=%d\nhost=%s\nsince=%s\n", os.Getpid(), host, time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	return &fileClaim{path: path}, nil
}

type fileClaim struct {
	path     string
	released bool
}

func (c *fileClaim) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// writeFile publishes data at destPath, which must not exist yet. The temp
// file is hard-linked into place, so readers never observe a partial
// snapshot and an existing file is never replaced.
func writeFile(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer os.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Link(tmpPath, destPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("snapshot %s already exists: %w", filepath.Base(destPath), fs.ErrExist)
		}
		return fmt.Errorf("failed to link temp file into place: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// Compile-time check that FileSystemStore implements twcc.SnapshotStore
var _ twcc.SnapshotStore = (*FileSystemStore)(nil)
