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
	"io"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/util"
)

const (
	CDB_GROUP0 = 6  /*  6-byte commands */
	CDB_GROUP1 = 10 /* 10-byte commands */
	CDB_GROUP5 = 12 /* 12-byte commands */
)

// Command is a decoded and validated CDB. The set of implementations is
// closed, see ParseCommand.
type Command interface {
	// Opcode returns the operation code the command was decoded from.
	Opcode() api.SCSICommandType
	execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error
}

type TestUnitReady struct{}

type RequestSense struct {
	// Desc selects descriptor format sense data
	Desc     bool
	AllocLen uint8
}

type Read6 struct {
	LBA uint32
	// Length in blocks, a zero transfer length in the CDB reads 256 blocks
	Length uint16
}

type Inquiry struct {
	EVPD     bool
	PageCode uint8
	AllocLen uint16
}

type ReadCapacity10 struct{}

type Read10 struct {
	LBA    uint32
	Length uint16
	// DPO asks the device not to retain the data in its caches
	DPO bool
	FUA bool
}

type Write10 struct {
	LBA    uint32
	Length uint16
	DPO    bool
	// FUA forces the data to stable storage before completion
	FUA bool
}

type ReportLuns struct {
	SelectReport uint8
	AllocLen     uint32
}

func (TestUnitReady) Opcode() api.SCSICommandType  { return api.TEST_UNIT_READY }
func (RequestSense) Opcode() api.SCSICommandType   { return api.REQUEST_SENSE }
func (Read6) Opcode() api.SCSICommandType          { return api.READ_6 }
func (Inquiry) Opcode() api.SCSICommandType        { return api.INQUIRY }
func (ReadCapacity10) Opcode() api.SCSICommandType { return api.READ_CAPACITY }
func (Read10) Opcode() api.SCSICommandType         { return api.READ_10 }
func (Write10) Opcode() api.SCSICommandType        { return api.WRITE_10 }
func (ReportLuns) Opcode() api.SCSICommandType     { return api.REPORT_LUNS }

// cdbLength returns the fixed size of the CDB for a supported opcode.
func cdbLength(opcode api.SCSICommandType) (int, bool) {
	switch opcode {
	case api.TEST_UNIT_READY, api.REQUEST_SENSE, api.READ_6, api.INQUIRY:
		return CDB_GROUP0, true
	case api.READ_CAPACITY, api.READ_10, api.WRITE_10:
		return CDB_GROUP1, true
	case api.REPORT_LUNS:
		return CDB_GROUP5, true
	}
	return 0, false
}

// ParseCommand decodes the fixed region of a CDB. Bytes past the command's
// own length are ignored. Failures are returned as *ExecuteError.
func ParseCommand(cdb []byte) (Command, error) {
	if len(cdb) == 0 {
		return nil, ReadCommandError()
	}
	opcode := api.SCSICommandType(cdb[0])
	length, ok := cdbLength(opcode)
	if !ok {
		return nil, UnsupportedError(cdb[0])
	}
	if len(cdb) < length {
		return nil, ReadCommandError()
	}
	scb := cdb[:length]

	switch opcode {
	case api.TEST_UNIT_READY:
		return TestUnitReady{}, nil
	case api.REQUEST_SENSE:
		return RequestSense{
			Desc:     scb[1]&0x01 != 0,
			AllocLen: scb[4],
		}, nil
	case api.READ_6:
		if scb[1]&0xe0 != 0 {
			return nil, InvalidFieldError()
		}
		lba := uint32(scb[1]&0x1f)<<16 | uint32(util.GetUnalignedUint16(scb[2:4]))
		blocks := uint16(scb[4])
		if blocks == 0 {
			blocks = 256
		}
		return Read6{LBA: lba, Length: blocks}, nil
	case api.INQUIRY:
		// CmdDt is obsolete
		if scb[1]&0x02 != 0 {
			return nil, InvalidFieldError()
		}
		cmd := Inquiry{
			EVPD:     scb[1]&0x01 != 0,
			PageCode: scb[2],
			AllocLen: util.GetUnalignedUint16(scb[3:5]),
		}
		if !cmd.EVPD && cmd.PageCode != 0 {
			return nil, InvalidFieldError()
		}
		return cmd, nil
	case api.READ_CAPACITY:
		return ReadCapacity10{}, nil
	case api.READ_10:
		if scb[1]&0xe0 != 0 {
			return nil, InvalidFieldError()
		}
		return Read10{
			LBA:    util.GetUnalignedUint32(scb[2:6]),
			Length: util.GetUnalignedUint16(scb[7:9]),
			DPO:    scb[1]&0x10 != 0,
			FUA:    scb[1]&0x08 != 0,
		}, nil
	case api.WRITE_10:
		if scb[1]&0xe0 != 0 {
			return nil, InvalidFieldError()
		}
		return Write10{
			LBA:    util.GetUnalignedUint32(scb[2:6]),
			Length: util.GetUnalignedUint16(scb[7:9]),
			DPO:    scb[1]&0x10 != 0,
			FUA:    scb[1]&0x08 != 0,
		}, nil
	case api.REPORT_LUNS:
		cmd := ReportLuns{
			SelectReport: scb[2],
			AllocLen:     util.GetUnalignedUint32(scb[6:10]),
		}
		if cmd.SelectReport > 0x02 {
			return nil, InvalidFieldError()
		}
		return cmd, nil
	}
	return nil, UnsupportedError(cdb[0])
}
