package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"membergate/pkg/platform/sentinel"
)

const maxAttempts = 10

// Memory is an in-process Store using optimistic versioning: each transaction
// records the version of every document it reads, buffers its writes, and
// commits only if none of the read versions changed. A failed validation
// re-runs the transaction body.
type Memory struct {
	mu   sync.Mutex
	docs map[string]memoryDoc
}

type memoryDoc struct {
	body    []byte
	version uint64
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memoryDoc)}
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memoryTx{
			store:  m,
			reads:  make(map[string]uint64),
			writes: make(map[string]memoryWrite),
		}
		if err := fn(tx); err != nil {
			return err
		}
		if m.commit(tx) {
			return nil
		}
	}
	return ErrContention
}

// commit validates the read set and applies buffered writes atomically.
func (m *Memory) commit(tx *memoryTx) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, seen := range tx.reads {
		if m.docs[key].version != seen {
			return false
		}
	}
	for key, w := range tx.writes {
		if w.delete {
			delete(m.docs, key)
			continue
		}
		m.docs[key] = memoryDoc{body: w.body, version: m.docs[key].version + 1}
	}
	return true
}

func (m *Memory) snapshot(key string) (memoryDoc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	return doc, ok
}

type memoryWrite struct {
	body   []byte
	delete bool
}

type memoryTx struct {
	store  *Memory
	reads  map[string]uint64 // version observed; 0 means absent
	writes map[string]memoryWrite
}

func docKey(collection, key string) string {
	return collection + "/" + key
}

func (t *memoryTx) Get(collection, key string, out any) error {
	dk := docKey(collection, key)
	if w, ok := t.writes[dk]; ok {
		if w.delete {
			return sentinel.ErrNotFound
		}
		return json.Unmarshal(w.body, out)
	}

	doc, ok := t.store.snapshot(dk)
	if _, seen := t.reads[dk]; !seen {
		t.reads[dk] = doc.version
	}
	if !ok {
		return sentinel.ErrNotFound
	}
	return json.Unmarshal(doc.body, out)
}

func (t *memoryTx) Put(collection, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, key, err)
	}
	t.writes[docKey(collection, key)] = memoryWrite{body: body}
	return nil
}

func (t *memoryTx) Create(collection, key string, doc any) error {
	dk := docKey(collection, key)
	if w, ok := t.writes[dk]; ok && !w.delete {
		return sentinel.ErrConflict
	}

	existing, ok := t.store.snapshot(dk)
	if _, seen := t.reads[dk]; !seen {
		// Record the absence so a concurrent create invalidates this
		// transaction at commit time.
		t.reads[dk] = existing.version
	}
	if ok {
		return sentinel.ErrConflict
	}
	return t.Put(collection, key, doc)
}

func (t *memoryTx) Delete(collection, key string) error {
	t.writes[docKey(collection, key)] = memoryWrite{delete: true}
	return nil
}
