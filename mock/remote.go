/*
Copyright 2016 The GoStor Authors All rights reserved.

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

// Package mock embeds a virtio-scsi device on top of an in-memory remote
// backing store, the way a volume manager would.
package mock

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
	"github.com/gostor/vscsi/pkg/scsi/backingstore/remote"
	"github.com/gostor/vscsi/pkg/virtio/vscsi"
)

// Stats counts the I/O that reached the volume.
type Stats struct {
	ReadIOPS   int64
	WriteIOPS  int64
	ReadBytes  int64
	WriteBytes int64
	Syncs      int64
}

type remoteBs struct {
	Volume     string
	Size       int64
	SectorSize int

	isUp bool
	rw   api.RemoteBackingStore

	mutex    sync.RWMutex
	data     []byte
	lhbsName string
	loopback *vscsi.Loopback
	stats    Stats
}

var _ api.RemoteBackingStore = (*remoteBs)(nil)

func (r *remoteBs) ReadAt(data []byte, offset int64) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if offset >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(data, r.data[offset:])
	atomic.AddInt64(&r.stats.ReadIOPS, 1)
	atomic.AddInt64(&r.stats.ReadBytes, int64(n))
	if n < len(data) {
		return n, io.EOF
	}
	return n, nil
}

func (r *remoteBs) WriteAt(data []byte, offset int64) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if offset >= int64(len(r.data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(r.data[offset:], data)
	atomic.AddInt64(&r.stats.WriteIOPS, 1)
	atomic.AddInt64(&r.stats.WriteBytes, int64(n))
	if n < len(data) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (r *remoteBs) Sync() (int, error) {
	atomic.AddInt64(&r.stats.Syncs, 1)
	return 0, nil
}

// Startup exports the volume as the logical unit of a new device.
func (r *remoteBs) Startup(name string, size, sectorSize int64) error {
	if r.isUp {
		return fmt.Errorf("Volume %s is already up", r.Volume)
	}
	r.Volume = name
	r.Size = size
	r.SectorSize = int(sectorSize)
	r.data = make([]byte, size)
	r.rw = r
	r.lhbsName = "RemBs:" + name

	remote.Size = uint64(size)
	scsi.AddRemoteBackingStore(r.lhbsName, r.rw)
	if err := r.startDevice(); err != nil {
		scsi.RemoveRemoteBackingStore(r.lhbsName)
		return err
	}
	r.isUp = true
	return nil
}

func (r *remoteBs) startDevice() error {
	bs, err := scsi.OpenBackingStore(remote.RemoteBackingStorage, r.lhbsName, "")
	if err != nil {
		return err
	}
	dev, err := vscsi.NewDevice(bs, vscsi.Options{
		BlockSize: uint32(r.SectorSize),
		Serial:    uuid.NewV5(uuid.NamespaceOID, r.Volume),
		Storage:   remote.RemoteBackingStorage,
		Path:      r.lhbsName,
	})
	if err != nil {
		return err
	}
	r.loopback, err = vscsi.NewLoopback(dev)
	if err != nil {
		return err
	}
	logrus.Infof("virtio-scsi device created for volume %s", r.Volume)
	return nil
}

// Shutdown stops the device
func (r *remoteBs) Shutdown() error {
	if !r.isUp {
		return fmt.Errorf("Failed to stop device, volume %q is not up", r.Volume)
	}
	err := r.loopback.Close()
	scsi.RemoveRemoteBackingStore(r.lhbsName)
	r.loopback = nil
	r.Volume = ""
	r.isUp = false
	if err != nil {
		return fmt.Errorf("Failed to stop device, err: %v", err)
	}
	return nil
}

// State provides info whether the device is up or down
func (r *remoteBs) State() string {
	if r.isUp {
		return "Up"
	}
	return "Down"
}

// Stats get the I/O counters of the volume
func (r *remoteBs) Stats() Stats {
	if !r.isUp {
		return Stats{}
	}
	return Stats{
		ReadIOPS:   atomic.LoadInt64(&r.stats.ReadIOPS),
		WriteIOPS:  atomic.LoadInt64(&r.stats.WriteIOPS),
		ReadBytes:  atomic.LoadInt64(&r.stats.ReadBytes),
		WriteBytes: atomic.LoadInt64(&r.stats.WriteBytes),
		Syncs:      atomic.LoadInt64(&r.stats.Syncs),
	}
}

// SetReadOnly changes the write protection of the exported unit
func (r *remoteBs) SetReadOnly(readOnly bool) error {
	if !r.isUp {
		return fmt.Errorf("Volume is not up")
	}
	return r.loopback.Reconfigure(uint32(r.SectorSize), readOnly)
}
