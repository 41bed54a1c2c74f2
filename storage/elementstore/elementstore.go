// Package elementstore specialises a Record File to hold the
// variable-length element backing for arrays, strings, sets, and
// dictionaries (§4.2).
package elementstore

import (
	"fmt"
	"os"

	"typedtables/logger"
	"typedtables/models"
	"typedtables/storage/recordfile"
)

// Store is one Element Store: a Record File whose record size is a
// single element's natural width. Exactly one Store exists per element
// type across the whole database (§4.2).
type Store struct {
	rf          *recordfile.File
	elementSize int64
}

// Open creates or opens the element store at path for an element of the
// given fixed width.
func Open(path string, elementSize int64, growthFactor int64, create bool) (*Store, error) {
	var rf *recordfile.File
	var err error
	if create {
		rf, err = recordfile.Create(path, elementSize, growthFactor)
	} else {
		rf, err = recordfile.Open(path, elementSize, growthFactor)
	}
	if err != nil {
		return nil, err
	}
	return &Store{rf: rf, elementSize: elementSize}, nil
}

// Close releases the underlying Record File.
func (s *Store) Close() error { return s.rf.Close() }

// InsertRun appends elements contiguously and returns the starting
// index. An empty run is represented by (start=0, length=0) and consumes
// no space (§4.2).
func (s *Store) InsertRun(elements [][]byte) (models.Run, error) {
	if len(elements) == 0 {
		return models.Run{}, nil
	}

	start, err := s.rf.Append(elements[0])
	if err != nil {
		return models.Run{}, fmt.Errorf("elementstore: insert_run: %w", err)
	}
	for _, e := range elements[1:] {
		if _, err := s.rf.Append(e); err != nil {
			return models.Run{}, fmt.Errorf("elementstore: insert_run: %w", err)
		}
	}
	return models.Run{Start: uint32(start), Length: uint32(len(elements))}, nil
}

// ReadRun returns the raw elements of run, in order.
func (s *Store) ReadRun(run models.Run) ([][]byte, error) {
	if run.Length == 0 {
		return nil, nil
	}
	out := make([][]byte, 0, run.Length)
	for i := uint32(0); i < run.Length; i++ {
		b, err := s.rf.Read(uint64(run.Start) + uint64(i))
		if err != nil {
			return nil, fmt.Errorf("elementstore: read_run: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// Count returns the number of elements currently stored, live or
// otherwise; element stores have no tombstone concept of their own —
// garbage accumulates until compaction relays out reachable runs (§3.3,
// §4.9).
func (s *Store) Count() uint64 { return s.rf.Count() }

// Registry tracks the set of Element Stores open for a data directory,
// keyed by element type name, so every array/string/set/dictionary field
// sharing an element type shares one underlying file (§4.2: "One store
// per element type exists across the whole database").
type Registry struct {
	dir    string
	growth int64
	stores map[string]*Store
	widths map[string]int64
}

// NewRegistry returns an empty element-store registry rooted at dir.
func NewRegistry(dir string, growthFactor int64) *Registry {
	return &Registry{dir: dir, growth: growthFactor, stores: make(map[string]*Store), widths: make(map[string]int64)}
}

// StoreFor returns the Store for elementType, opening or creating its
// backing file on first use.
func (r *Registry) StoreFor(elementType string, width int64) (*Store, error) {
	if s, ok := r.stores[elementType]; ok {
		return s, nil
	}

	path := fmt.Sprintf("%s/%s.bin", r.dir, elementType)
	create := !fileExists(path)
	s, err := Open(path, width, r.growth, create)
	if err != nil {
		return nil, err
	}
	r.stores[elementType] = s
	r.widths[elementType] = width
	logger.TraceIf("element", "opened element store %q width=%d create=%v", elementType, width, create)
	return s, nil
}

// CloseAll closes every open store.
func (r *Registry) CloseAll() error {
	var firstErr error
	for _, s := range r.stores {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
