/*
Copyright 2015 The GoStor Authors All rights reserved.

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
	"context"
	"fmt"
	"io"
	"sync"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/vscsi/pkg/api"
)

// LogicalUnit is LUN 0 of the virtio-scsi target. Commands run under the
// read lock, Reconfigure takes the write lock.
type LogicalUnit struct {
	mutex sync.RWMutex
	// MaxLBA is the number of addressable blocks
	MaxLBA    uint64
	BlockSize uint32
	ReadOnly  bool
	Serial    uuid.UUID
}

// NewLogicalUnit sizes a logical unit from its backing store. A nil serial
// gets a fresh random identity.
func NewLogicalUnit(bs api.BackingStore, blockSize uint32, readOnly bool, serial uuid.UUID) (*LogicalUnit, error) {
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	if uuid.Equal(serial, uuid.Nil) {
		serial = uuid.NewV4()
	}
	lu := &LogicalUnit{
		BlockSize: blockSize,
		ReadOnly:  readOnly,
		Serial:    serial,
	}
	if bs != nil {
		lu.MaxLBA = bs.Size() / uint64(blockSize)
	}
	log.Debugf("logical unit %s: %d blocks of %d bytes, read only %v", serial, lu.MaxLBA, blockSize, readOnly)
	return lu, nil
}

// Execute runs cmd with the data-out payload in r and the data-in buffer
// in w. The returned error, if any, is an *ExecuteError.
func (lu *LogicalUnit) Execute(ctx context.Context, cmd Command, r io.Reader, w io.Writer, bs api.BackingStore) error {
	lu.mutex.RLock()
	defer lu.mutex.RUnlock()
	return cmd.execute(ctx, r, w, lu, bs)
}

// Reconfigure replaces the geometry of the unit once no command is in
// flight.
func (lu *LogicalUnit) Reconfigure(maxLBA uint64, blockSize uint32, readOnly bool) {
	lu.mutex.Lock()
	defer lu.mutex.Unlock()
	lu.MaxLBA = maxLBA
	lu.BlockSize = blockSize
	lu.ReadOnly = readOnly
}

func (lu *LogicalUnit) Info() api.LogicalUnitInfo {
	lu.mutex.RLock()
	defer lu.mutex.RUnlock()
	return api.LogicalUnitInfo{
		Serial:    lu.Serial.String(),
		MaxLBA:    lu.MaxLBA,
		BlockSize: lu.BlockSize,
		ReadOnly:  lu.ReadOnly,
	}
}

// checkRange fails when the transfer would run past the last block.
func (lu *LogicalUnit) checkRange(lba uint64, blocks uint32) error {
	end := lba + uint64(blocks)
	if end < lba || end > lu.MaxLBA {
		return LbaOutOfRangeError(blocks, lba, lu.MaxLBA)
	}
	return nil
}
