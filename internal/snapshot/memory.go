package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"

	"twcc/internal/twcc"
)

// MemoryStore is an in-memory implementation of twcc.SnapshotStore.
// Snapshots are kept in their encoded form so reads go through the same
// codec as the durable stores. This implementation is safe for concurrent use.
type MemoryStore struct {
	cipher twcc.Cipher
	idgen  twcc.IDGenerator

	mu      sync.RWMutex
	objects map[string]map[string][]byte // userID -> name -> encoded snapshot
	claims  map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cipher twcc.Cipher, idgen twcc.IDGenerator) *MemoryStore {
	if cipher == nil {
		cipher = twcc.PlainCipher{}
	}
	return &MemoryStore{
		cipher:  cipher,
		idgen:   idgen,
		objects: make(map[string]map[string][]byte),
		claims:  make(map[string]bool),
	}
}

// entries must be called with mu held.
func (m *MemoryStore) entries(userID string) []entry {
	var out []entry
	for name, data := range m.objects[userID] {
		e, ok := parseSnapshotName(name)
		if !ok {
			continue
		}
		e.size = int64(len(data))
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func (m *MemoryStore) LoadLatest(ctx context.Context, userID string) (*twcc.Snapshot, error) {
	m.mu.RLock()
	entries := m.entries(userID)
	var latest entry
	var data []byte
	if len(entries) > 0 {
		latest = entries[len(entries)-1]
		data = m.objects[userID][latest.name]
	}
	m.mu.RUnlock()

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: user %s", twcc.ErrNotFound, userID)
	}
	key := path.Join(userID, latest.name)
	c, err := openerFor(latest, m.cipher)
	if err != nil {
		return nil, &twcc.CorruptSnapshotError{UserID: userID, Key: key, Err: err}
	}
	return open(userID, key, bytes.NewReader(data), c)
}

func (m *MemoryStore) Save(ctx context.Context, snap *twcc.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := seal(snap, m.cipher)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := snapshotName(nextStamp(m.entries(snap.UserID), snap.CapturedAt), m.idgen.New(), m.cipher.Suffix())
	if m.objects[snap.UserID] == nil {
		m.objects[snap.UserID] = make(map[string][]byte)
	}
	if _, exists := m.objects[snap.UserID][name]; exists {
		return "", fmt.Errorf("snapshot %s already exists", name)
	}
	m.objects[snap.UserID][name] = data
	return path.Join(snap.UserID, name), nil
}

func (m *MemoryStore) List(ctx context.Context, userID string) ([]twcc.SnapshotInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return infos(userID, m.entries(userID), func(name string) string { return path.Join(userID, name) }), nil
}

func (m *MemoryStore) Claim(ctx context.Context, userID string) (twcc.Claim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claims[userID] {
		return nil, fmt.Errorf("%w: user %s", twcc.ErrRunInProgress, userID)
	}
	m.claims[userID] = true
	return &memoryClaim{m: m, userID: userID}, nil
}

// PutRaw stores data under name as if it had been saved. Tests use it to
// plant damaged snapshots.
func (m *MemoryStore) PutRaw(userID, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[userID] == nil {
		m.objects[userID] = make(map[string][]byte)
	}
	m.objects[userID][name] = data
}

type memoryClaim struct {
	m      *MemoryStore
	userID string
	once   sync.Once
}

func (c *memoryClaim) Release() error {
	c.once.Do(func() {
		c.m.mu.Lock()
		delete(c.m.claims, c.userID)
		c.m.mu.Unlock()
	})
	return nil
}

// Compile-time check that MemoryStore implements twcc.SnapshotStore
var _ twcc.SnapshotStore = (*MemoryStore)(nil)
