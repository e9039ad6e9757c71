// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

const (
	// sequenceFile is the ticket file. Its size is the number of
	// sequence numbers handed out so far.
	sequenceFile = ".sequence"

	recordExt = ".json"
	zstdExt   = ".zst"
	tmpExt    = ".tmp"
)

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil)
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
)

// Store persists records as one file per record in a directory.
//
// Write may be called concurrently from any number of goroutines and
// processes sharing the directory. ReadAll expects all writers to have
// finished.
type Store struct {
	dir      string
	compress bool
}

// Option configures a Store.
type Option func(*Store)

// WithCompression stores records zstd compressed.
// Read handles both forms regardless of this option.
func WithCompression() Option {
	return func(s *Store) {
		s.compress = true
	}
}

// New returns a store in dir. The directory must exist before Write.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Entry is a record read from a store.
type Entry struct {
	// Location is the file the record was read from.
	Location string

	// Seq is the sequence number assigned when the record was written.
	// A record with a higher Seq was written later.
	Seq int64

	Record Record
}

// Write persists r and returns its location.
func (s *Store) Write(ctx context.Context, r Record) (string, error) {
	err := r.Validate()
	if err != nil {
		return "", err
	}
	buf, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	ext := recordExt
	if s.compress {
		enc, err := zstdEncoder()
		if err != nil {
			return "", err
		}
		buf = enc.EncodeAll(buf, nil)
		ext += zstdExt
	}
	seq, err := s.nextSeq()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%012d-%s%s", seq, uuid.NewString(), ext)
	fname := filepath.Join(s.dir, name)
	// readers never see a partial record under a record name.
	tmp := filepath.Join(s.dir, "."+name+tmpExt)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", err
	}
	_, err = f.Write(buf)
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	err = os.Rename(tmp, fname)
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	return fname, nil
}

// nextSeq allocates a sequence number without taking a lock.
// An O_APPEND write is atomic with respect to the file offset, so the
// offset after appending one byte is unique to this writer and grows
// with every allocation.
func (s *Store) nextSeq() (int64, error) {
	f, err := os.OpenFile(filepath.Join(s.dir, sequenceFile), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	_, err = f.Write([]byte{'.'})
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	return off, nil
}

// Read reads the record stored at location.
// It returns an error wrapping ErrDecode if the content is not a valid,
// complete record.
func (s *Store) Read(location string) (Record, error) {
	buf, err := os.ReadFile(location)
	if err != nil {
		return Record{}, err
	}
	if strings.HasSuffix(location, zstdExt) {
		dec, err := zstdDecoder()
		if err != nil {
			return Record{}, err
		}
		buf, err = dec.DecodeAll(buf, nil)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %s: %w", ErrDecode, location, err)
		}
	}
	var r Record
	err = json.Unmarshal(buf, &r)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: %w", ErrDecode, location, err)
	}
	err = r.Validate()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %s: %w", ErrDecode, location, err)
	}
	return r, nil
}

// ReadAll lists the records currently in the store.
//
// A listing failure is returned as error. The returned sequence reads
// the listed records lazily, and yields a non-nil error for a record
// that could not be read; iteration may continue past such errors.
// Records written after ReadAll returns are not included.
// The order of the sequence is unspecified; use Entry.Seq.
func (s *Store) ReadAll(ctx context.Context) (iter.Seq2[Entry, error], error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, ent := range dirents {
		if ent.IsDir() || !isRecordName(ent.Name()) {
			continue
		}
		names = append(names, ent.Name())
	}
	return func(yield func(Entry, error) bool) {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			ent := Entry{Location: filepath.Join(s.dir, name)}
			seq, err := parseSeq(name)
			if err != nil {
				if !yield(ent, err) {
					return
				}
				continue
			}
			ent.Seq = seq
			ent.Record, err = s.Read(ent.Location)
			if !yield(ent, err) {
				return
			}
		}
	}, nil
}

// Clear removes all records, leftover temporary files and the ticket
// file from the store, leaving other files in place.
// It must not run concurrently with Write.
func (s *Store) Clear(ctx context.Context) error {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, ent := range dirents {
		name := ent.Name()
		if ent.IsDir() {
			continue
		}
		if !isRecordName(name) && name != sequenceFile && !isTmpName(name) {
			continue
		}
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := os.Remove(filepath.Join(s.dir, name))
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		})
	}
	return eg.Wait()
}

func isTmpName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tmpExt)
}

func isRecordName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, recordExt) || strings.HasSuffix(name, recordExt+zstdExt)
}

func parseSeq(name string) (int64, error) {
	s, _, ok := strings.Cut(name, "-")
	if !ok {
		return 0, fmt.Errorf("%w: no sequence number in %q", ErrDecode, name)
	}
	seq, err := strconv.ParseInt(s, 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("%w: bad sequence number in %q", ErrDecode, name)
	}
	return seq, nil
}
