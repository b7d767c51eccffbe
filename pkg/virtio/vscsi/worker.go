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

package vscsi

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
	"github.com/gostor/vscsi/pkg/virtio"
)

var ErrQueueClosed = errors.New("queue kick event closed")

type worker struct {
	// mutex serializes queue access between the drain loop and the
	// completing tasks
	mutex sync.Mutex
	queue virtio.Queue
	irq   virtio.Interrupt
	lu    *scsi.LogicalUnit
	bs    api.BackingStore
	// tasks outlive run when a kill interrupts them
	tasks errgroup.Group
}

// run serves the request queue until ctx is cancelled or the queue goes
// away. Interrupt resample requests are handled in between.
func (w *worker) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := make(chan error, 1)
	go func() {
		handler <- w.handleQueue(ctx)
	}()

	resample := w.irq.ResampleEvent()
	for {
		select {
		case err := <-handler:
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "queue handler exited unexpectedly")
		case _, ok := <-resample:
			if !ok {
				cancel()
				<-handler
				return errors.New("failed to resample an irq value: resample event closed")
			}
			w.irq.DoInterruptResample()
		case <-ctx.Done():
			<-handler
			return nil
		}
	}
}

// handleQueue drains the queue on every kick and runs one task per chain.
// It does not wait for the tasks, see drained.
func (w *worker) handleQueue(ctx context.Context) error {
	kick := w.queue.Event()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-kick:
			if !ok {
				return ErrQueueClosed
			}
		}

		n := 0
		for {
			w.mutex.Lock()
			chain, ok := w.queue.Pop()
			w.mutex.Unlock()
			if !ok {
				break
			}
			n++
			w.tasks.Go(func() error {
				w.processChain(ctx, chain)
				return nil
			})
		}
		log.Debugf("dispatched %d chains", n)
	}
}

// drained is closed once every task has returned.
func (w *worker) drained() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		w.tasks.Wait()
		close(done)
	}()
	return done
}

func (w *worker) processChain(ctx context.Context, chain *virtio.DescriptorChain) {
	length := processRequest(ctx, chain, w.lu, w.bs)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if ctx.Err() != nil {
		log.Debugf("worker stopped, chain %d is not returned", chain.Index)
		return
	}
	w.queue.AddUsed(chain, length)
	w.queue.TriggerInterrupt(w.irq)
}
