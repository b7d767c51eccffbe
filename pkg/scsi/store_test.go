/*
Copyright 2023 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package scsi

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/net/context"
)

var errInjected = errors.New("injected failure")

// memStore is a BackingStore over a byte slice. limit caps every transfer
// to that many bytes when non-zero.
type memStore struct {
	mu       sync.Mutex
	data     []byte
	limit    int
	readErr  error
	writeErr error
	syncErr  error
	syncs    int
	advises  int
}

func newMemStore(size int) *memStore {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return &memStore{data: data}
}

func (m *memStore) Open(path string) error { return nil }
func (m *memStore) Close() error           { return nil }
func (m *memStore) Init(opts string) error { return nil }
func (m *memStore) Size() uint64           { return uint64(len(m.data)) }

func (m *memStore) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	if m.limit > 0 && len(buf) > m.limit {
		return copy(buf, m.data[offset:offset+int64(m.limit)]), io.EOF
	}
	return copy(buf, m.data[offset:]), nil
}

func (m *memStore) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if m.limit > 0 && len(buf) > m.limit {
		return copy(m.data[offset:], buf[:m.limit]), io.ErrShortWrite
	}
	return copy(m.data[offset:], buf), nil
}

func (m *memStore) DataSync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return m.syncErr
}

func (m *memStore) DataAdvise(offset, length int64, advise uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advises++
	return nil
}

// limitedWriter accepts at most n bytes.
type limitedWriter struct {
	bytes.Buffer
	n int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.n - w.Len()
	if len(p) > room {
		w.Buffer.Write(p[:room])
		return room, io.ErrShortBuffer
	}
	return w.Buffer.Write(p)
}

func newTestLU(t *testing.T, bs *memStore, readOnly bool) *LogicalUnit {
	t.Helper()
	serial := uuid.FromStringOrNil("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	lu, err := NewLogicalUnit(bs, 512, readOnly, serial)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	return lu
}

func execute(t *testing.T, lu *LogicalUnit, bs *memStore, cdb []byte, in []byte, out io.Writer) error {
	t.Helper()
	cmd, err := ParseCommand(cdb)
	if err != nil {
		t.Fatalf("failed to parse cdb % x: %v", cdb, err)
	}
	return lu.Execute(context.Background(), cmd, bytes.NewReader(in), out, bs)
}

func asExecuteError(t *testing.T, err error) *ExecuteError {
	t.Helper()
	var e *ExecuteError
	if !errors.As(err, &e) {
		t.Fatalf("Expected an ExecuteError, but got %v", err)
	}
	return e
}
