package session

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/janelia-flyem/protolog"

	"github.com/janelia-flyem/voxedit/voxedit"
)

const journalMsgTypeID uint16 = 1 // message type for JSON action records

// JournalRecord is one JSON entry in a session's append-only action journal:
// a committed, cancelled, undone, or redone operation.
type JournalRecord struct {
	Seq         uint64
	TimeUnix    int64
	Op          string // "commit", "cancel", "undo", or "redo"
	Description string
	BBoxMin     [3]int32
	BBoxMax     [3]int32
}

// Journal appends action records to a protolog file, one file per session.
type Journal struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func openJournal(dir, sessionID string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0744); err != nil {
		return nil, fmt.Errorf("can't make journal directory at %s: %v", dir, err)
	}
	fname := path.Join(dir, sessionID+".plog")
	f, err := os.OpenFile(fname, os.O_APPEND|os.O_CREATE|os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f, path: fname}, nil
}

// Path returns the journal file's location.
func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) logAction(seq uint64, op, desc string, touched voxedit.Extents3d) error {
	rec := JournalRecord{
		Seq:         seq,
		TimeUnix:    time.Now().Unix(),
		Op:          op,
		Description: desc,
	}
	if !touched.Empty() {
		rec.BBoxMin = touched.MinPoint
		rec.BBoxMax = touched.MaxPoint
	}
	jsondata, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	j.mu.Lock()
	w := protolog.NewTypedWriter(journalMsgTypeID, j.f)
	_, err = w.Write(jsondata)
	j.mu.Unlock()
	return err
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// StreamJournal writes this session's journal as a JSON array.
// Background-safe.
func (s *Session) StreamJournal(w io.Writer) error {
	if s.journal == nil {
		return fmt.Errorf("session %s has no journal configured", s.id)
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()
	return StreamJournalFile(w, s.journal.path)
}

// StreamJournalFile streams the action records of a journal file to the
// writer as a JSON array.
func StreamJournalFile(w io.Writer, fname string) error {
	f, err := os.Open(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	r := protolog.NewReader(f)
	if _, err := w.Write([]byte("[")); err != nil {
		return err
	}
	numRecords := 0
	for {
		typeID, jsondata, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading journal %s: %v", fname, err)
		}
		if typeID != journalMsgTypeID {
			voxedit.Criticalf("unknown message type %d in journal %s\n", typeID, fname)
			continue
		}
		if numRecords != 0 {
			if _, err := w.Write([]byte(",")); err != nil {
				return err
			}
		}
		if _, err := w.Write(jsondata); err != nil {
			return err
		}
		numRecords++
	}
	_, err = w.Write([]byte("]"))
	return err
}
