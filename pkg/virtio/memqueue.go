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
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// UsedElem is an entry of the used ring.
type UsedElem struct {
	ID  uint16
	Len uint32
}

// MemQueue is an in-process virtqueue. Chains are submitted by a local
// driver instead of a guest, which makes the device reachable from the
// control API and from tests.
type MemQueue struct {
	mutex   sync.Mutex
	size    int
	vector  uint16
	next    uint16
	avail   []*DescriptorChain
	used    []UsedElem
	pending map[uint16]chan UsedElem
	kick    chan struct{}
	closed  bool
}

func NewMemQueue(size int, vector uint16) *MemQueue {
	return &MemQueue{
		size:    size,
		vector:  vector,
		pending: make(map[uint16]chan UsedElem),
		// one buffered slot coalesces kicks that arrive while the device
		// is still draining
		kick: make(chan struct{}, 1),
	}
}

// Submit queues a chain built from readable and writable buffers and kicks
// the device. The returned channel receives the used element once the
// device is done with the chain.
func (q *MemQueue) Submit(readable, writable [][]byte) (<-chan UsedElem, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return nil, fmt.Errorf("queue is closed")
	}
	if len(q.pending) >= q.size {
		return nil, fmt.Errorf("queue is full: %d chains in flight", len(q.pending))
	}
	for {
		if _, busy := q.pending[q.next]; !busy {
			break
		}
		q.next++
	}
	chain := NewDescriptorChain(q.next, readable, writable)
	q.next++
	done := make(chan UsedElem, 1)
	q.pending[chain.Index] = done
	q.avail = append(q.avail, chain)
	q.notify()
	return done, nil
}

func (q *MemQueue) notify() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *MemQueue) Pop() (*DescriptorChain, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.avail) == 0 {
		return nil, false
	}
	chain := q.avail[0]
	q.avail[0] = nil
	q.avail = q.avail[1:]
	return chain, true
}

func (q *MemQueue) AddUsed(chain *DescriptorChain, length uint32) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	elem := UsedElem{ID: chain.Index, Len: length}
	q.used = append(q.used, elem)
	done, ok := q.pending[chain.Index]
	if !ok {
		log.Warnf("chain %d returned to the used ring twice", chain.Index)
		return
	}
	delete(q.pending, chain.Index)
	done <- elem
}

func (q *MemQueue) TriggerInterrupt(irq Interrupt) bool {
	if irq == nil {
		return false
	}
	irq.SignalUsedQueue(q.vector)
	return true
}

func (q *MemQueue) Event() <-chan struct{} {
	return q.kick
}

// Used returns a copy of the used ring in completion order.
func (q *MemQueue) Used() []UsedElem {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return append([]UsedElem(nil), q.used...)
}

// Close removes the queue. The device sees its kick event closed.
func (q *MemQueue) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.kick)
}

// MemInterrupt records used queue notifications.
type MemInterrupt struct {
	mutex     sync.Mutex
	signals   map[uint16]int
	resample  chan struct{}
	resampled int
}

func NewMemInterrupt() *MemInterrupt {
	return &MemInterrupt{
		signals:  make(map[uint16]int),
		resample: make(chan struct{}, 1),
	}
}

func (i *MemInterrupt) SignalUsedQueue(vector uint16) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.signals[vector]++
}

func (i *MemInterrupt) ResampleEvent() <-chan struct{} {
	return i.resample
}

func (i *MemInterrupt) DoInterruptResample() {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.resampled++
}

// Resample asks the device to re-assert the interrupt.
func (i *MemInterrupt) Resample() {
	select {
	case i.resample <- struct{}{}:
	default:
	}
}

func (i *MemInterrupt) Signals(vector uint16) int {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.signals[vector]
}

func (i *MemInterrupt) Resampled() int {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	return i.resampled
}
