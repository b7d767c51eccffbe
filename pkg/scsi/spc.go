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

// SCSI primary command processing
package scsi

import (
	"bytes"
	"context"
	"io"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/util"
)

var (
	SCSIVendorID   = "GOSTOR"
	SCSIProductID  = "VIRTIO-SCSI"
	SCSIProductRev = "0001"
)

/*
 * Code Set
 *
 *  1 - Designator fild contains binary values
 *  2 - Designator field contains ASCII printable chars
 *  3 - Designaotor field contains UTF-8
 */
type CodeSet byte

var (
	INQ_CODE_BIN   CodeSet = 1
	INQ_CODE_ASCII CodeSet = 2
	INQ_CODE_UTF8  CodeSet = 3
)

/*
 * Designator type - SPC-4 Reference
 *
 * 0 - Vendor specific - 7.6.3.3
 * 1 - T10 vendor ID - 7.6.3.4
 * 2 - EUI-64 - 7.6.3.5
 * 3 - NAA - 7.6.3.6
 */
const (
	DESG_VENDOR = iota
	DESG_T10
	DESG_EUI64
	DESG_NAA
)

// Vital product data pages
const (
	VPD_SUPPORTED_PAGES    byte = 0x00
	VPD_UNIT_SERIAL_NUMBER byte = 0x80
	VPD_DEVICE_ID          byte = 0x83
	VPD_BLOCK_LIMITS       byte = 0xb0
	VPD_BLOCK_DEV_CHARS    byte = 0xb1
	VPD_LB_PROVISIONING    byte = 0xb2
)

var supportedVPDPages = []byte{
	VPD_SUPPORTED_PAGES,
	VPD_UNIT_SERIAL_NUMBER,
	VPD_DEVICE_ID,
	VPD_BLOCK_LIMITS,
	VPD_BLOCK_DEV_CHARS,
	VPD_LB_PROVISIONING,
}

// NAA IEEE company id used for the logical unit designator
var naaOUI = []byte{0x00, 0x14, 0x05}

func (c TestUnitReady) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	return nil
}

// Nothing is ever pending, so the answer is always NO SENSE.
func (c RequestSense) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	data, length := BuildSenseData(NewSense(NO_SENSE, NO_ADDITIONAL_SENSE), !c.Desc)
	return writeData(w, data[:length], int(c.AllocLen))
}

func (c Inquiry) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	var data []byte
	if !c.EVPD {
		data = standardInquiry()
	} else {
		var ok bool
		if data, ok = vpdPage(c.PageCode, lu); !ok {
			return InvalidFieldError()
		}
	}
	return writeData(w, data, int(c.AllocLen))
}

func (c ReportLuns) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	if c.AllocLen < 16 {
		return InvalidFieldError()
	}
	buf := &bytes.Buffer{}
	// LUN list length, one entry
	buf.Write(util.MarshalUint32(8))
	// Skip through to byte 8, Reserved
	buf.Write(make([]byte, 4))
	// LUN 0
	buf.Write(make([]byte, 8))
	return writeData(w, buf.Bytes(), int(c.AllocLen))
}

func standardInquiry() []byte {
	buf := &bytes.Buffer{}
	// peripheral qualifier 0, direct access block device
	buf.WriteByte(byte(api.TYPE_DISK))
	// not removable
	buf.WriteByte(0x00)
	// SPC-3
	buf.WriteByte(0x05)
	// response data format 2
	buf.WriteByte(0x02)
	// additional length, patched below
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	buf.WriteByte(0x00)
	// CmdQue
	buf.WriteByte(0x02)
	buf.Write(util.FixedString(SCSIVendorID, 8))
	buf.Write(util.FixedString(SCSIProductID, 16))
	buf.Write(util.FixedString(SCSIProductRev, 4))
	data := buf.Bytes()
	data[4] = byte(len(data) - 5)
	return data
}

func vpdPage(code byte, lu *LogicalUnit) ([]byte, bool) {
	var payload []byte
	switch code {
	case VPD_SUPPORTED_PAGES:
		payload = supportedVPDPages
	case VPD_UNIT_SERIAL_NUMBER:
		payload = []byte(lu.Serial.String())
	case VPD_DEVICE_ID:
		payload = deviceIdentification(lu)
	case VPD_BLOCK_LIMITS:
		payload = make([]byte, 0x3c)
		// maximum transfer length in blocks
		copy(payload[4:8], util.MarshalUint32(0xffff))
	case VPD_BLOCK_DEV_CHARS:
		payload = make([]byte, 0x3c)
		// medium rotation rate: non-rotating medium
		copy(payload[0:2], util.MarshalUint16(0x0001))
	case VPD_LB_PROVISIONING:
		payload = make([]byte, 4)
	default:
		return nil, false
	}
	data := make([]byte, 4, 4+len(payload))
	data[0] = byte(api.TYPE_DISK)
	data[1] = code
	copy(data[2:4], util.MarshalUint16(uint16(len(payload))))
	return append(data, payload...), true
}

// deviceIdentification builds a T10 vendor id designator followed by an NAA
// registered extended designator, both derived from the unit serial.
func deviceIdentification(lu *LogicalUnit) []byte {
	buf := &bytes.Buffer{}
	serial := lu.Serial.String()

	t10 := append(util.FixedString(SCSIVendorID, 8), serial...)
	buf.WriteByte(byte(INQ_CODE_ASCII))
	buf.WriteByte(byte(DESG_T10))
	buf.WriteByte(0x00)
	buf.WriteByte(byte(len(t10)))
	buf.Write(t10)

	id := lu.Serial.Bytes()
	naa := make([]byte, 16)
	naa[0] = 0x60 | naaOUI[0]>>4
	naa[1] = naaOUI[0]<<4 | naaOUI[1]>>4
	naa[2] = naaOUI[1]<<4 | naaOUI[2]>>4
	naa[3] = naaOUI[2]<<4 | id[0]&0x0f
	copy(naa[4:], id[1:13])
	buf.WriteByte(byte(INQ_CODE_BIN))
	buf.WriteByte(byte(DESG_NAA))
	buf.WriteByte(0x00)
	buf.WriteByte(byte(len(naa)))
	buf.Write(naa)
	return buf.Bytes()
}
