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

package virtio

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReader(t *testing.T) {
	chain := NewDescriptorChain(0, [][]byte{{1, 2, 3}, {}, {4}, {5, 6}}, nil)
	r := chain.Reader
	if r.AvailableBytes() != 6 {
		t.Errorf("Expected 6 available bytes, but got %d", r.AvailableBytes())
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, buf); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if diff := cmp.Diff([]byte{5, 6}, rest); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	if r.BytesRead() != 6 || r.AvailableBytes() != 0 {
		t.Errorf("Expected the reader to be drained, read %d, available %d", r.BytesRead(), r.AvailableBytes())
	}
}

func TestWriterSplitAt(t *testing.T) {
	tests := map[string]struct {
		vecs   []int
		split  int
		header int
		data   int
	}{
		"split inside a buffer": {vecs: []int{4, 8}, split: 6, header: 6, data: 6},
		"split on a boundary":   {vecs: []int{6, 6}, split: 6, header: 6, data: 6},
		"split past the end":    {vecs: []int{3}, split: 6, header: 3, data: 0},
		"no buffers":            {vecs: nil, split: 6, header: 0, data: 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var vecs [][]byte
			for _, n := range tt.vecs {
				vecs = append(vecs, make([]byte, n))
			}
			w := NewDescriptorChain(0, nil, vecs).Writer
			data := w.SplitAt(tt.split)
			if w.AvailableBytes() != tt.header || data.AvailableBytes() != tt.data {
				t.Fatalf("Expected %d/%d bytes, but got %d/%d", tt.header, tt.data, w.AvailableBytes(), data.AvailableBytes())
			}

			n, err := data.Write(bytes.Repeat([]byte{0xdd}, tt.data))
			if err != nil || n != tt.data {
				t.Errorf("Expected a full data write, but got %d, %v", n, err)
			}
			n, err = w.Write(bytes.Repeat([]byte{0xaa}, tt.header))
			if err != nil || n != tt.header {
				t.Errorf("Expected a full header write, but got %d, %v", n, err)
			}
			if _, err := w.Write([]byte{0}); err != ErrShortBuffer {
				t.Errorf("Expected ErrShortBuffer, but got %v", err)
			}

			var all []byte
			for _, v := range vecs {
				all = append(all, v...)
			}
			want := append(bytes.Repeat([]byte{0xaa}, tt.header), bytes.Repeat([]byte{0xdd}, tt.data)...)
			if len(want) == 0 {
				want = nil
			}
			if diff := cmp.Diff(want, all); diff != "" {
				t.Errorf("buffer mismatch (-want +got):\n%s", diff)
			}
			if w.BytesWritten()+data.BytesWritten() != tt.header+tt.data {
				t.Errorf("Expected %d bytes written, but got %d", tt.header+tt.data, w.BytesWritten()+data.BytesWritten())
			}
		})
	}
}

func TestMemQueue(t *testing.T) {
	q := NewMemQueue(2, 3)
	irq := NewMemInterrupt()

	first, err := q.Submit([][]byte{{1}}, [][]byte{make([]byte, 4)})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if _, err := q.Submit(nil, nil); err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if _, err := q.Submit(nil, nil); err == nil {
		t.Errorf("Expected error submitting to a full queue")
	}

	// both submissions coalesce into one kick
	<-q.Event()
	select {
	case <-q.Event():
		t.Errorf("Expected a single pending kick")
	default:
	}

	var chains []*DescriptorChain
	for {
		chain, ok := q.Pop()
		if !ok {
			break
		}
		chains = append(chains, chain)
	}
	if len(chains) != 2 {
		t.Fatalf("Expected 2 chains, but got %d", len(chains))
	}
	for _, chain := range chains {
		q.AddUsed(chain, 4)
		q.TriggerInterrupt(irq)
	}
	if got := <-first; got != (UsedElem{ID: 0, Len: 4}) {
		t.Errorf("unexpected completion %+v", got)
	}
	if irq.Signals(3) != 2 {
		t.Errorf("Expected 2 interrupts, but got %d", irq.Signals(3))
	}
	if diff := cmp.Diff([]UsedElem{{0, 4}, {1, 4}}, q.Used()); diff != "" {
		t.Errorf("used ring mismatch (-want +got):\n%s", diff)
	}

	q.Close()
	if _, ok := <-q.Event(); ok {
		t.Errorf("Expected the kick event to be closed")
	}
	if _, err := q.Submit(nil, nil); err == nil {
		t.Errorf("Expected error submitting to a closed queue")
	}
}
