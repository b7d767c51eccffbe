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
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/virtio"
)

// LUN0 addresses the logical unit of the device.
var LUN0 = [8]byte{1, 0, 0, 0, 0, 0, 0, 0}

// Loopback drives a device through in-process queues, standing in for a
// guest driver.
type Loopback struct {
	dev     *Device
	request *virtio.MemQueue
	irq     *virtio.MemInterrupt
	tag     uint64
}

// NewLoopback activates dev on memory queues.
func NewLoopback(dev *Device) (*Loopback, error) {
	sizes := dev.QueueMaxSizes()
	queues := make(map[int]virtio.Queue, len(sizes))
	var request *virtio.MemQueue
	for i, size := range sizes {
		q := virtio.NewMemQueue(int(size), uint16(i))
		if i == RequestQueueIndex {
			request = q
		}
		queues[i] = q
	}
	irq := virtio.NewMemInterrupt()
	if err := dev.Activate(irq, queues); err != nil {
		return nil, errors.Wrap(err, "failed to activate the loopback device")
	}
	return &Loopback{dev: dev, request: request, irq: irq}, nil
}

// Submit sends one command to the device and waits for its completion.
func (l *Loopback) Submit(ctx context.Context, req api.CommandRequest) (*api.CommandResponse, error) {
	if len(req.CDB) > CdbSize {
		return nil, errors.Errorf("bad parameter: cdb of %d bytes exceeds %d", len(req.CDB), CdbSize)
	}
	// one command never moves more than max_sectors blocks
	limit := uint64(MaxSectors) * uint64(l.dev.LogicalUnit().BlockSize)
	if uint64(req.DataInLength) > limit {
		return nil, errors.Errorf("bad parameter: data in length %d exceeds %d", req.DataInLength, limit)
	}
	if uint64(len(req.Data)) > limit {
		return nil, errors.Errorf("bad parameter: %d bytes of data exceed %d", len(req.Data), limit)
	}
	hdr := CmdReq{
		Lun: req.Lun,
		Tag: atomic.AddUint64(&l.tag, 1),
	}
	copy(hdr.Cdb[:], req.CDB)
	hdrData, _ := hdr.MarshalBinary()

	readable := [][]byte{hdrData}
	if len(req.Data) > 0 {
		readable = append(readable, req.Data)
	}
	respData := make([]byte, CmdRespSize)
	writable := [][]byte{respData}
	var dataIn []byte
	if req.DataInLength > 0 {
		dataIn = make([]byte, req.DataInLength)
		writable = append(writable, dataIn)
	}

	done, err := l.request.Submit(readable, writable)
	if err != nil {
		return nil, err
	}
	var used virtio.UsedElem
	select {
	case used = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.dev.Done():
		return nil, errors.New("virtio-scsi worker is not running")
	}

	var resp CmdResp
	if err := resp.UnmarshalBinary(respData); err != nil {
		return nil, err
	}
	out := &api.CommandResponse{
		Response:        resp.Response,
		Status:          resp.Status,
		StatusQualifier: resp.StatusQualifier,
		Resid:           resp.Resid,
		Used:            used.Len,
	}
	if resp.SenseLen > 0 && resp.SenseLen <= SenseSize {
		out.Sense = append([]byte(nil), resp.Sense[:resp.SenseLen]...)
	}
	if used.Len > CmdRespSize {
		out.Data = dataIn[:used.Len-CmdRespSize]
	}
	return out, nil
}

func (l *Loopback) Device() *Device {
	return l.dev
}

func (l *Loopback) ConfigSpace() api.ConfigSpace {
	return l.dev.ConfigSpace()
}

func (l *Loopback) LogicalUnit() api.LogicalUnitInfo {
	return l.dev.LogicalUnit()
}

func (l *Loopback) Reconfigure(blockSize uint32, readOnly bool) error {
	return l.dev.Reconfigure(blockSize, readOnly)
}

// Reset stops the device. Later submissions fail.
func (l *Loopback) Reset() bool {
	return l.dev.Reset()
}

// Close stops the device and removes its queues.
func (l *Loopback) Close() error {
	err := l.dev.Stop()
	l.request.Close()
	return err
}
