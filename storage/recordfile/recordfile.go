// Package recordfile implements the Record File: an append-only,
// tombstone-capable, memory-mapped file of fixed-size records (§4.1,
// §6.1).
package recordfile

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"typedtables/logger"
	"typedtables/models"
)

const (
	headerSize      = 8
	initialFileSize = 4096
	tombstoneByte   = 0xFF
)

// File is one memory-mapped, fixed-record-size binary file (§4.1).
// Growth unmaps, truncates, and remaps; callers must not retain slices
// returned by Read across any mutating call (§5 "Suspension / blocking").
type File struct {
	f          *os.File
	data       []byte
	recordSize int64
	growth     int64
	closed     bool
}

// Create makes a new, empty Record File at path, sized to the fixed
// initial 4096 bytes, and writes the 8-byte zero count header (§4.1).
// growthFactor is kept for later growth.
func Create(path string, recordSize int64, growthFactor int64) (*File, error) {
	if recordSize <= 0 {
		return nil, fmt.Errorf("recordfile: record size must be positive, got %d", recordSize)
	}
	if growthFactor < 2 {
		growthFactor = 2
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recordfile: creating %q: %w", path, err)
	}
	if err := f.Truncate(initialFileSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("recordfile: sizing %q: %w", path, err)
	}

	rf := &File{f: f, recordSize: recordSize, growth: growthFactor}
	if err := rf.mmap(initialFileSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	binary.LittleEndian.PutUint64(rf.data[0:headerSize], 0)
	if err := rf.sync(); err != nil {
		rf.Close()
		return nil, err
	}
	logger.TraceIf("record", "created %q record_size=%d", path, recordSize)
	return rf, nil
}

// Open maps an existing Record File, validating that its on-disk size is
// consistent with recordSize (§4.1).
func Open(path string, recordSize int64, growthFactor int64) (*File, error) {
	if growthFactor < 2 {
		growthFactor = 2
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recordfile: opening %q: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("recordfile: stat %q: %w", path, err)
	}
	size := stat.Size()
	if size < headerSize {
		f.Close()
		return nil, fmt.Errorf("recordfile: %q is smaller than the count header", path)
	}

	rf := &File{f: f, recordSize: recordSize, growth: growthFactor}
	if err := rf.mmap(size); err != nil {
		f.Close()
		return nil, err
	}

	capacity := rf.capacityFor(size)
	if rf.count() > capacity {
		rf.munmap()
		f.Close()
		return nil, fmt.Errorf("recordfile: %q count %d exceeds capacity %d for record_size %d", path, rf.count(), capacity, recordSize)
	}
	return rf, nil
}

func (rf *File) mmap(size int64) error {
	data, err := unix.Mmap(int(rf.f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("recordfile: mmap: %w", err)
	}
	rf.data = data
	return nil
}

func (rf *File) munmap() {
	if rf.data != nil {
		unix.Munmap(rf.data)
		rf.data = nil
	}
}

func (rf *File) sync() error {
	return unix.Msync(rf.data, unix.MS_SYNC)
}

func (rf *File) capacityFor(size int64) uint64 {
	return uint64((size - headerSize) / rf.recordSize)
}

// Count returns the file's count header value: every record ever
// appended, tombstoned ones included.
func (rf *File) Count() uint64 {
	return binary.LittleEndian.Uint64(rf.data[0:headerSize])
}

func (rf *File) count() uint64 { return rf.Count() }

// Capacity returns how many records currently fit without growth.
func (rf *File) Capacity() uint64 {
	return rf.capacityFor(int64(len(rf.data)))
}

func (rf *File) offsetOf(index uint64) int64 {
	return headerSize + int64(index)*rf.recordSize
}

// Append writes record (which must be exactly RecordSize() bytes) at the
// tail, growing the file first if count == capacity, then flushes the
// data region before the updated count header (§4.1, §5 Ordering).
func (rf *File) Append(record []byte) (uint64, error) {
	if rf.closed {
		return 0, models.ErrClosed
	}
	if int64(len(record)) != rf.recordSize {
		return 0, fmt.Errorf("recordfile: append: record is %d bytes, want %d", len(record), rf.recordSize)
	}

	count := rf.count()
	if count == rf.Capacity() {
		if err := rf.grow(); err != nil {
			return 0, err
		}
	}

	off := rf.offsetOf(count)
	copy(rf.data[off:off+rf.recordSize], record)
	if err := rf.sync(); err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(rf.data[0:headerSize], count+1)
	if err := rf.sync(); err != nil {
		return 0, err
	}
	return count, nil
}

// grow multiplies the file's size by its growth factor (at least enough
// for one more record), unmapping, truncating, and remapping (§4.1, §5).
func (rf *File) grow() error {
	current := int64(len(rf.data))
	next := current * rf.growth
	if next < headerSize+rf.recordSize {
		next = headerSize + rf.recordSize
	}

	rf.munmap()
	if err := rf.f.Truncate(next); err != nil {
		return fmt.Errorf("recordfile: growing to %d bytes: %w", next, err)
	}
	if err := rf.mmap(next); err != nil {
		return err
	}
	logger.TraceIf("record", "grew %s from %d to %d bytes", rf.f.Name(), current, next)
	return nil
}

// Read returns a copy of the record at index. index must be < Count().
func (rf *File) Read(index uint64) ([]byte, error) {
	if rf.closed {
		return nil, models.ErrClosed
	}
	if index >= rf.count() {
		return nil, fmt.Errorf("recordfile: read: index %d >= count %d", index, rf.count())
	}
	off := rf.offsetOf(index)
	out := make([]byte, rf.recordSize)
	copy(out, rf.data[off:off+rf.recordSize])
	return out, nil
}

// Overwrite replaces the record at index in place.
func (rf *File) Overwrite(index uint64, record []byte) error {
	if index >= rf.count() {
		return fmt.Errorf("recordfile: overwrite: index %d >= count %d", index, rf.count())
	}
	if int64(len(record)) != rf.recordSize {
		return fmt.Errorf("recordfile: overwrite: record is %d bytes, want %d", len(record), rf.recordSize)
	}
	off := rf.offsetOf(index)
	copy(rf.data[off:off+rf.recordSize], record)
	return rf.sync()
}

// Tombstone marks the record at index as deleted by overwriting it with
// record_size bytes of 0xFF (§3.3, §4.1). The count header is never
// decremented.
func (rf *File) Tombstone(index uint64) error {
	if index >= rf.count() {
		return fmt.Errorf("recordfile: tombstone: index %d >= count %d", index, rf.count())
	}
	off := rf.offsetOf(index)
	region := rf.data[off : off+rf.recordSize]
	for i := range region {
		region[i] = tombstoneByte
	}
	return rf.sync()
}

// IsTombstoned reports whether the record at index is entirely 0xFF.
func (rf *File) IsTombstoned(index uint64) bool {
	if index >= rf.count() {
		return false
	}
	off := rf.offsetOf(index)
	region := rf.data[off : off+rf.recordSize]
	for _, b := range region {
		if b != tombstoneByte {
			return false
		}
	}
	return true
}

// LiveRecord pairs a record's index with its bytes, as yielded by
// IterLive.
type LiveRecord struct {
	Index uint64
	Bytes []byte
}

// IterLive yields every record whose index is < Count() and which is not
// tombstoned, in ascending index order.
func (rf *File) IterLive(yield func(LiveRecord) bool) {
	count := rf.count()
	for i := uint64(0); i < count; i++ {
		if rf.IsTombstoned(i) {
			continue
		}
		b, err := rf.Read(i)
		if err != nil {
			return
		}
		if !yield(LiveRecord{Index: i, Bytes: b}) {
			return
		}
	}
}

// RecordSize returns the fixed size, in bytes, of every record.
func (rf *File) RecordSize() int64 { return rf.recordSize }

// ShrinkToFit truncates the file to exactly headerSize+count*recordSize,
// dropping any capacity doubling-growth left unused. Compaction output is
// sized exactly for the records it holds (§4.9).
func (rf *File) ShrinkToFit() error {
	if rf.closed {
		return models.ErrClosed
	}
	exact := headerSize + int64(rf.count())*rf.recordSize
	if exact == int64(len(rf.data)) {
		return nil
	}
	rf.munmap()
	if err := rf.f.Truncate(exact); err != nil {
		return fmt.Errorf("recordfile: shrinking to %d bytes: %w", exact, err)
	}
	return rf.mmap(exact)
}

// Path returns the underlying file's path.
func (rf *File) Path() string { return rf.f.Name() }

// Close unmaps and closes the underlying file.
func (rf *File) Close() error {
	if rf.closed {
		return nil
	}
	if rf.data != nil {
		if err := rf.sync(); err != nil {
			logger.Warn("recordfile: sync on close of %s: %v", rf.f.Name(), err)
		}
		rf.munmap()
	}
	rf.closed = true
	return rf.f.Close()
}
