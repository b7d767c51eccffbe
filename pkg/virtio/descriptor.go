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
	"errors"
	"io"
)

var ErrShortBuffer = errors.New("out of descriptor chain buffer space")

// DescriptorChain is one request popped from a queue: the driver readable
// buffers followed by the device writable ones.
type DescriptorChain struct {
	Index  uint16
	Reader *Reader
	Writer *Writer
}

func NewDescriptorChain(index uint16, readable, writable [][]byte) *DescriptorChain {
	return &DescriptorChain{
		Index:  index,
		Reader: &Reader{iovec{vecs: readable}},
		Writer: &Writer{iovec{vecs: writable}},
	}
}

// iovec walks a list of buffers as one contiguous stream.
type iovec struct {
	vecs      [][]byte
	vecoffset int
	offset    int
	done      int
}

func (v *iovec) available() int {
	n := 0
	for i := v.vecoffset; i < len(v.vecs); i++ {
		n += len(v.vecs[i])
	}
	return n - v.offset
}

// next returns the unconsumed part of the current buffer.
func (v *iovec) next() []byte {
	for v.vecoffset < len(v.vecs) {
		if v.offset < len(v.vecs[v.vecoffset]) {
			return v.vecs[v.vecoffset][v.offset:]
		}
		v.vecoffset++
		v.offset = 0
	}
	return nil
}

func (v *iovec) advance(n int) {
	v.offset += n
	v.done += n
}

// Reader is an io.Reader over the driver readable part of a chain.
type Reader struct {
	iovec
}

func (r *Reader) Read(b []byte) (int, error) {
	boff := 0
	for boff < len(b) {
		vec := r.next()
		if vec == nil {
			if boff == 0 {
				return 0, io.EOF
			}
			break
		}
		read := copy(b[boff:], vec)
		boff += read
		r.advance(read)
	}
	return boff, nil
}

func (r *Reader) BytesRead() int {
	return r.done
}

func (r *Reader) AvailableBytes() int {
	return r.available()
}

// Writer is an io.Writer over the device writable part of a chain.
type Writer struct {
	iovec
}

func (w *Writer) Write(b []byte) (int, error) {
	boff := 0
	for boff < len(b) {
		vec := w.next()
		if vec == nil {
			return boff, ErrShortBuffer
		}
		wrote := copy(vec, b[boff:])
		boff += wrote
		w.advance(wrote)
	}
	return boff, nil
}

func (w *Writer) BytesWritten() int {
	return w.done
}

func (w *Writer) AvailableBytes() int {
	return w.available()
}

// SplitAt limits w to its next offset bytes and returns a Writer for the
// remainder of the buffers.
func (w *Writer) SplitAt(offset int) *Writer {
	var head, tail [][]byte
	remain := offset
	for i := w.vecoffset; i < len(w.vecs); i++ {
		vec := w.vecs[i]
		if i == w.vecoffset {
			vec = vec[w.offset:]
		}
		switch {
		case remain >= len(vec):
			head = append(head, vec)
			remain -= len(vec)
		case remain > 0:
			head = append(head, vec[:remain])
			tail = append(tail, vec[remain:])
			remain = 0
		default:
			tail = append(tail, vec)
		}
	}
	w.vecs = head
	w.vecoffset = 0
	w.offset = 0
	return &Writer{iovec{vecs: tail}}
}
