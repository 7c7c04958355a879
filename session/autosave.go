package session

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxedit/voxedit"
)

// DefaultAutosaveKeep is how many autosaves are retained per session when
// the config doesn't say.
const DefaultAutosaveKeep = 5

// Autosaver persists compressed snapshots to an embedded Badger store,
// pruning the oldest once the retained count exceeds its bound.  Keys are
// "<session id>-<seq>" with a zero-padded sequence, so a prefix scan walks
// one session's saves oldest first.
type Autosaver struct {
	db   *badger.DB
	keep int
}

func openAutosaver(path string, keep int) (*Autosaver, error) {
	if keep <= 0 {
		keep = DefaultAutosaveKeep
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0744); err != nil {
			return nil, fmt.Errorf("can't make directory at %s: %v", path, err)
		}
	}
	opts := badger.DefaultOptions(path)
	opts.NumVersionsToKeep = 1
	opts.SyncWrites = false
	opts.ValueThreshold = 100
	opts.Logger = nil

	voxedit.TimeInfof("Opening autosave badger @ path %s\n", path)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Autosaver{db: db, keep: keep}, nil
}

func autosaveKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s-%016d", sessionID, seq))
}

func (a *Autosaver) put(sessionID string, seq uint64, data []byte) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(autosaveKey(sessionID, seq), data)
	})
	if err != nil {
		return err
	}
	return a.prune(sessionID)
}

// prune deletes a session's oldest autosaves beyond the retention bound.
func (a *Autosaver) prune(sessionID string) error {
	prefix := []byte(sessionID + "-")
	var keys [][]byte
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) <= a.keep {
		return nil
	}
	return a.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys[:len(keys)-a.keep] {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (a *Autosaver) get(key string) ([]byte, error) {
	var data []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("no autosave under key %q", key)
	}
	return data, err
}

// Close syncs and closes the underlying store.
func (a *Autosaver) Close() error {
	return a.db.Close()
}

// AutosaveInfo describes one retained autosave.
type AutosaveInfo struct {
	Key   string
	Bytes uint64
}

// Autosave writes a compressed snapshot into the autosave store and prunes
// old ones.  Background-safe, intended for a caller-driven timer.
func (s *Session) Autosave() error {
	if s.saver == nil {
		return fmt.Errorf("session %s has no autosave store configured", s.id)
	}
	tlog := voxedit.NewTimeLog()
	s.editMu.Lock()
	data, err := s.snapshotBytes()
	seq := atomic.AddUint64(&s.autosaveSeq, 1)
	s.editMu.Unlock()
	if err != nil {
		return fmt.Errorf("can't snapshot session %s for autosave: %v", s.id, err)
	}
	if err := s.saver.put(s.id, seq, data); err != nil {
		return fmt.Errorf("can't store autosave for session %s: %v", s.id, err)
	}
	tlog.Infof("Autosaved session %s (%s)", s.id, humanize.Bytes(uint64(len(data))))
	return nil
}

// Autosaves lists this session's retained autosaves, oldest first.
// Background-safe.
func (s *Session) Autosaves() ([]AutosaveInfo, error) {
	if s.saver == nil {
		return nil, fmt.Errorf("session %s has no autosave store configured", s.id)
	}
	prefix := []byte(s.id + "-")
	var infos []AutosaveInfo
	err := s.saver.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			infos = append(infos, AutosaveInfo{
				Key:   string(item.KeyCopy(nil)),
				Bytes: uint64(item.EstimatedSize()),
			})
		}
		return nil
	})
	return infos, err
}

// AutosaveBytes returns a retained autosave's snapshot bytes, suitable for
// ReadSnapshot.  Background-safe.
func (s *Session) AutosaveBytes(key string) ([]byte, error) {
	if s.saver == nil {
		return nil, fmt.Errorf("session %s has no autosave store configured", s.id)
	}
	return s.saver.get(key)
}

// RunAutosaves saves on the given cadence until the done channel closes.
// Intended to run on its own goroutine.
func (s *Session) RunAutosaves(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Autosave(); err != nil {
				voxedit.Errorf("autosave: %v\n", err)
			}
		case <-done:
			return
		}
	}
}
