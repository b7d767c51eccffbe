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

// Package vscsi implements the device side of a virtio-scsi controller with
// a single logical unit.
package vscsi

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
	"github.com/gostor/vscsi/pkg/virtio"
)

const (
	DefaultQueueSize uint16 = 256
	// control, event and one request queue
	MinimumNumQueues = 3
	// index of the first request queue
	RequestQueueIndex = 2
)

// DrainTimeout bounds how long a stopping worker waits for commands still
// in the backing store.
var DrainTimeout = 100 * time.Millisecond

type Options struct {
	// Features are the base feature bits offered to the driver
	Features  uint64
	QueueSize uint16
	BlockSize uint32
	ReadOnly  bool
	Serial    uuid.UUID
	// Storage and Path describe the backing store for reporting
	Storage string
	Path    string
}

type Device struct {
	mutex         sync.Mutex
	availFeatures uint64
	ackedFeatures uint64
	queueSizes    []uint16
	segMax        uint32
	senseSize     uint32
	cdbSize       uint32
	storage       string
	path          string

	lu *scsi.LogicalUnit
	bs api.BackingStore
	// size of the backing store in bytes, read once before a worker owns it
	size uint64
	// bsTaken is set once a worker owns the backing store
	bsTaken bool

	cancel    context.CancelFunc
	done      chan struct{}
	workerErr error
}

func NewDevice(bs api.BackingStore, opts Options) (*Device, error) {
	if bs == nil {
		return nil, errors.New("no backing store")
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = api.DefaultBlockSize
	}
	lu, err := scsi.NewLogicalUnit(bs, opts.BlockSize, opts.ReadOnly, opts.Serial)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the logical unit")
	}
	queueSizes := make([]uint16, MinimumNumQueues)
	for i := range queueSizes {
		queueSizes[i] = opts.QueueSize
	}
	return &Device{
		availFeatures: opts.Features,
		queueSizes:    queueSizes,
		segMax:        segMax(opts.QueueSize),
		senseSize:     SenseSize,
		cdbSize:       CdbSize,
		storage:       opts.Storage,
		path:          opts.Path,
		lu:            lu,
		bs:            bs,
		size:          bs.Size(),
	}, nil
}

func (d *Device) DeviceType() uint32 {
	return virtio.DeviceTypeSCSI
}

func (d *Device) Features() uint64 {
	return d.availFeatures
}

// AckFeatures records the features the driver accepted. Bits the device
// never offered are dropped.
func (d *Device) AckFeatures(value uint64) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if unrequested := value &^ d.availFeatures; unrequested != 0 {
		log.Warnf("virtio-scsi got unknown feature ack: 0x%x", unrequested)
	}
	d.ackedFeatures |= value & d.availFeatures
}

func (d *Device) AckedFeatures() uint64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.ackedFeatures
}

func (d *Device) QueueMaxSizes() []uint16 {
	return append([]uint16(nil), d.queueSizes...)
}

func (d *Device) ConfigSpace() api.ConfigSpace {
	return api.ConfigSpace{
		// request queues only
		NumQueues:     uint32(len(d.queueSizes) - 2),
		SegMax:        d.segMax,
		MaxSectors:    MaxSectors,
		CmdPerLun:     MaxCmdPerLun,
		EventInfoSize: EventInfoSize,
		SenseSize:     d.senseSize,
		CdbSize:       d.cdbSize,
		MaxChannel:    MaxChannel,
		MaxTarget:     MaxTarget,
		MaxLun:        MaxLun,
	}
}

// ReadConfig copies the config space starting at offset into data.
func (d *Device) ReadConfig(offset uint64, data []byte) {
	copyConfig(data, MarshalConfigSpace(d.ConfigSpace()), offset)
}

// WriteConfig ignores driver writes, the config space is read only.
func (d *Device) WriteConfig(offset uint64, data []byte) {
	log.Warnf("virtio-scsi: ignoring config write of %d bytes at offset %d", len(data), offset)
}

func (d *Device) LogicalUnit() api.LogicalUnitInfo {
	info := d.lu.Info()
	info.Storage = d.storage
	info.Path = d.path
	if done := d.Done(); done != nil {
		select {
		case <-done:
		default:
			info.Active = true
		}
	}
	return info
}

// Reconfigure changes the block size and write protection of the logical
// unit. The backing store is not touched, it may already be closed.
func (d *Device) Reconfigure(blockSize uint32, readOnly bool) error {
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return errors.Errorf("invalid block size %d", blockSize)
	}
	d.lu.Reconfigure(d.size/uint64(blockSize), blockSize, readOnly)
	return nil
}

// Activate starts the worker serving the request queue. The backing store
// is handed to the worker, so a device can only be activated once.
func (d *Device) Activate(irq virtio.Interrupt, queues map[int]virtio.Queue) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.bsTaken {
		return errors.New("failed to take a disk image: already in use")
	}
	queue, ok := queues[RequestQueueIndex]
	if !ok {
		return errors.New("request queue should be present")
	}
	if irq == nil {
		return errors.New("no interrupt for the request queue")
	}
	d.bsTaken = true

	w := &worker{
		queue: queue,
		irq:   irq,
		lu:    d.lu,
		bs:    d.bs,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	log.WithFields(log.Fields{
		"queues":     len(queues),
		"queue_size": d.queueSizes[RequestQueueIndex],
		"max_lba":    d.lu.Info().MaxLBA,
	}).Info("virtio-scsi device activated")

	go func() {
		defer close(done)
		err := w.run(ctx)
		drained := w.drained()
		select {
		case <-drained:
			closeStore(d.bs)
		case <-time.After(DrainTimeout):
			log.Warnf("virtio-scsi worker stopped with commands in flight, closing the backing store once they return")
			go func() {
				<-drained
				closeStore(d.bs)
			}()
		}
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Error("virtio-scsi worker failed")
		} else {
			log.Debug("virtio-scsi worker exited")
		}
		d.mutex.Lock()
		d.workerErr = err
		d.mutex.Unlock()
	}()
	return nil
}

func closeStore(bs api.BackingStore) {
	if err := bs.Close(); err != nil {
		log.Warnf("failed to close the backing store: %v", err)
	}
}

// Done is closed once the worker has exited. It is nil before activation.
func (d *Device) Done() <-chan struct{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.done
}

// Stop kills the worker and waits for it. It returns the error the worker
// failed with, if any.
func (d *Device) Stop() error {
	d.mutex.Lock()
	cancel, done := d.cancel, d.done
	d.mutex.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done

	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.workerErr
}

// Reset stops the device, it reports whether a worker was running.
func (d *Device) Reset() bool {
	running := d.LogicalUnit().Active
	if err := d.Stop(); err != nil {
		log.Errorf("virtio-scsi worker error on reset: %v", err)
	}
	return running
}
