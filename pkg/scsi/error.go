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

package scsi

import "fmt"

var (
	NO_SENSE        byte = 0x00
	MEDIUM_ERROR    byte = 0x03
	ILLEGAL_REQUEST byte = 0x05
	DATA_PROTECT    byte = 0x07
)

// SCSISubError packs the additional sense code in the high byte and the
// qualifier in the low byte.
type SCSISubError uint16

var (
	NO_ADDITIONAL_SENSE SCSISubError = 0x0000

	// Key 3: Medium Errors
	ASC_WRITE_ERROR      SCSISubError = 0x0c00
	ASC_UNRECOVERED_READ SCSISubError = 0x1100

	// Key 5: Illegal Request
	ASC_INVALID_OP_CODE      SCSISubError = 0x2000
	ASC_LBA_OUT_OF_RANGE     SCSISubError = 0x2100
	ASC_INVALID_FIELD_IN_CDB SCSISubError = 0x2400

	// Key 7: Data Protect
	ASC_WRITE_PROTECT SCSISubError = 0x2700
)

type ExecuteErrorKind int

const (
	ErrInvalidField ExecuteErrorKind = iota
	ErrLbaOutOfRange
	ErrRead
	ErrReadCommand
	ErrReadIo
	ErrReadOnly
	ErrUnsupported
	ErrWrite
	ErrWriteIo
)

// ExecuteError is the outcome of a command that did not complete with GOOD
// status.
type ExecuteError struct {
	Kind ExecuteErrorKind
	// Opcode of an unsupported command
	Opcode byte
	// Length, Sector and MaxLBA of an out of range transfer, in blocks
	Length uint32
	Sector uint64
	MaxLBA uint64
	// Resid is the number of bytes left untransferred by a failed I/O
	Resid int
	Err   error
}

func InvalidFieldError() *ExecuteError {
	return &ExecuteError{Kind: ErrInvalidField}
}

func ReadCommandError() *ExecuteError {
	return &ExecuteError{Kind: ErrReadCommand}
}

func ReadOnlyError() *ExecuteError {
	return &ExecuteError{Kind: ErrReadOnly}
}

func LbaOutOfRangeError(length uint32, sector, maxLBA uint64) *ExecuteError {
	return &ExecuteError{Kind: ErrLbaOutOfRange, Length: length, Sector: sector, MaxLBA: maxLBA}
}

func UnsupportedError(opcode byte) *ExecuteError {
	return &ExecuteError{Kind: ErrUnsupported, Opcode: opcode}
}

func ReadError(err error) *ExecuteError {
	return &ExecuteError{Kind: ErrRead, Err: err}
}

func WriteError(err error) *ExecuteError {
	return &ExecuteError{Kind: ErrWrite, Err: err}
}

func ReadIoError(resid int, err error) *ExecuteError {
	return &ExecuteError{Kind: ErrReadIo, Resid: resid, Err: err}
}

func WriteIoError(resid int, err error) *ExecuteError {
	return &ExecuteError{Kind: ErrWriteIo, Resid: resid, Err: err}
}

func (e *ExecuteError) Error() string {
	switch e.Kind {
	case ErrInvalidField:
		return "invalid cdb field"
	case ErrLbaOutOfRange:
		return fmt.Sprintf("%d blocks from sector %d exceeds end of this device %d", e.Length, e.Sector, e.MaxLBA)
	case ErrRead:
		return fmt.Sprintf("failed to read message: %v", e.Err)
	case ErrReadCommand:
		return "failed to read command from cdb"
	case ErrReadIo:
		return fmt.Sprintf("io error %d bytes remained to be read: %v", e.Resid, e.Err)
	case ErrReadOnly:
		return "writing to a read only device"
	case ErrUnsupported:
		return fmt.Sprintf("unsupported scsi command: 0x%02x", e.Opcode)
	case ErrWrite:
		return fmt.Sprintf("failed to write message: %v", e.Err)
	case ErrWriteIo:
		return fmt.Sprintf("io error %d bytes remained to be written: %v", e.Resid, e.Err)
	}
	return fmt.Sprintf("unknown execute error %d", e.Kind)
}

func (e *ExecuteError) Unwrap() error {
	return e.Err
}

// IsIo reports whether the error is a partial completion of a storage
// transfer. These are answered with a residual count instead of sense data.
func (e *ExecuteError) IsIo() bool {
	return e.Kind == ErrReadIo || e.Kind == ErrWriteIo
}

// Sense returns the sense data the error is reported with. The asc and ascq
// assignments follow table 28 of SPC-3. I/O errors carry no sense.
func (e *ExecuteError) Sense() (Sense, bool) {
	switch e.Kind {
	case ErrRead, ErrReadCommand:
		return NewSense(MEDIUM_ERROR, ASC_UNRECOVERED_READ), true
	case ErrWrite:
		return NewSense(MEDIUM_ERROR, ASC_WRITE_ERROR), true
	case ErrInvalidField:
		return NewSense(ILLEGAL_REQUEST, ASC_INVALID_FIELD_IN_CDB), true
	case ErrUnsupported:
		return NewSense(ILLEGAL_REQUEST, ASC_INVALID_OP_CODE), true
	case ErrLbaOutOfRange:
		return NewSense(ILLEGAL_REQUEST, ASC_LBA_OUT_OF_RANGE), true
	case ErrReadOnly:
		return NewSense(DATA_PROTECT, ASC_WRITE_PROTECT), true
	}
	return Sense{}, false
}
