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
package api

import (
	"io"

	"golang.org/x/net/context"
)

type SCSICommandType byte

var (
	TEST_UNIT_READY SCSICommandType = 0x00
	REQUEST_SENSE   SCSICommandType = 0x03
	READ_6          SCSICommandType = 0x08
	WRITE_6         SCSICommandType = 0x0a
	INQUIRY         SCSICommandType = 0x12
	MODE_SENSE      SCSICommandType = 0x1a
	READ_CAPACITY   SCSICommandType = 0x25
	READ_10         SCSICommandType = 0x28
	WRITE_10        SCSICommandType = 0x2a
	READ_16         SCSICommandType = 0x88
	REPORT_LUNS     SCSICommandType = 0xa0
)

var (
	SAM_STAT_GOOD            byte = 0x00
	SAM_STAT_CHECK_CONDITION byte = 0x02
)

// virtio-scsi response codes
var (
	VIRTIO_SCSI_S_OK         byte = 0
	VIRTIO_SCSI_S_BAD_TARGET byte = 3
)

type SCSIDeviceType byte

var (
	TYPE_DISK   SCSIDeviceType = 0x00
	TYPE_NO_LUN SCSIDeviceType = 0x7f
)

var (
	DefaultBlockShift uint   = 9
	DefaultBlockSize  uint32 = 1 << DefaultBlockShift
)

// BackingStore is the storage object a logical unit is exported from.
// Read and Write report the number of bytes transferred; a short transfer
// is returned together with a non-nil error.
type BackingStore interface {
	Open(path string) error
	Close() error
	Init(opts string) error
	Size() uint64
	Read(ctx context.Context, buf []byte, offset int64) (int, error)
	Write(ctx context.Context, buf []byte, offset int64) (int, error)
	DataSync(ctx context.Context) error
	DataAdvise(offset, length int64, advise uint32) error
}

type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

type RemoteBackingStore interface {
	ReaderWriterAt
	Sync() (int, error)
}

// ConfigSpace is the guest visible virtio-scsi configuration.
type ConfigSpace struct {
	NumQueues     uint32 `json:"num_queues"`
	SegMax        uint32 `json:"seg_max"`
	MaxSectors    uint32 `json:"max_sectors"`
	CmdPerLun     uint32 `json:"cmd_per_lun"`
	EventInfoSize uint32 `json:"event_info_size"`
	SenseSize     uint32 `json:"sense_size"`
	CdbSize       uint32 `json:"cdb_size"`
	MaxChannel    uint16 `json:"max_channel"`
	MaxTarget     uint16 `json:"max_target"`
	MaxLun        uint32 `json:"max_lun"`
}

type LogicalUnitInfo struct {
	Serial    string `json:"serial"`
	Storage   string `json:"storage"`
	Path      string `json:"path"`
	MaxLBA    uint64 `json:"max_lba"`
	BlockSize uint32 `json:"block_size"`
	ReadOnly  bool   `json:"read_only"`
	Active    bool   `json:"active"`
}

// CommandRequest carries one SCSI command through the loopback queue.
type CommandRequest struct {
	Lun [8]byte `json:"lun"`
	CDB []byte  `json:"cdb"`
	// Data is the data-out payload.
	Data []byte `json:"data,omitempty"`
	// DataInLength is the size of the device writable data-in buffer.
	DataInLength uint32 `json:"data_in_length"`
}

type CommandResponse struct {
	Response        byte   `json:"response"`
	Status          byte   `json:"status"`
	StatusQualifier uint16 `json:"status_qualifier"`
	Resid           uint32 `json:"resid"`
	Sense           []byte `json:"sense,omitempty"`
	Data            []byte `json:"data,omitempty"`
	// Used is the length reported in the used ring.
	Used uint32 `json:"used"`
}

type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
}
