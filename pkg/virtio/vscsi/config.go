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
	"encoding/binary"

	"github.com/gostor/vscsi/pkg/api"
)

const (
	// ConfigSize is the size of virtio_scsi_config
	ConfigSize = 36

	// EventInfoSize is the size of virtio_scsi_event
	EventInfoSize = 16

	MaxSectors   = 0xffff
	MaxCmdPerLun = 128
	MaxChannel   = 0
	MaxTarget    = 255
	MaxLun       = 16383

	// IOV_MAX on linux
	iovMax = 1024
)

// segMax is the number of data segments a single request may carry, two
// descriptors are taken by the request and response headers.
func segMax(queueSize uint16) uint32 {
	n := uint32(0)
	if queueSize > 2 {
		n = uint32(queueSize) - 2
	}
	if n > iovMax {
		n = iovMax
	}
	return n
}

// MarshalConfigSpace encodes cs as the little endian virtio_scsi_config
// layout.
func MarshalConfigSpace(cs api.ConfigSpace) []byte {
	data := make([]byte, ConfigSize)
	binary.LittleEndian.PutUint32(data[0:4], cs.NumQueues)
	binary.LittleEndian.PutUint32(data[4:8], cs.SegMax)
	binary.LittleEndian.PutUint32(data[8:12], cs.MaxSectors)
	binary.LittleEndian.PutUint32(data[12:16], cs.CmdPerLun)
	binary.LittleEndian.PutUint32(data[16:20], cs.EventInfoSize)
	binary.LittleEndian.PutUint32(data[20:24], cs.SenseSize)
	binary.LittleEndian.PutUint32(data[24:28], cs.CdbSize)
	binary.LittleEndian.PutUint16(data[28:30], cs.MaxChannel)
	binary.LittleEndian.PutUint16(data[30:32], cs.MaxTarget)
	binary.LittleEndian.PutUint32(data[32:36], cs.MaxLun)
	return data
}

// copyConfig copies the part of src at offset that overlaps dst.
func copyConfig(dst []byte, src []byte, offset uint64) int {
	if offset >= uint64(len(src)) {
		return 0
	}
	return copy(dst, src[offset:])
}
