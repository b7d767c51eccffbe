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

import "fmt"

var (
	// Response codes of sense data, current errors only
	SENSE_FIXED_CURRENT      byte = 0x70
	SENSE_DESCRIPTOR_CURRENT byte = 0x72

	FixedSenseLength      uint32 = 18
	DescriptorSenseLength uint32 = 8
)

// Sense describes an error or exception condition reported with
// CHECK CONDITION.
type Sense struct {
	Key  byte
	ASC  byte
	ASCQ byte
}

func NewSense(key byte, asc SCSISubError) Sense {
	return Sense{
		Key:  key,
		ASC:  byte(asc >> 8),
		ASCQ: byte(asc),
	}
}

func (s Sense) String() string {
	return fmt.Sprintf("key 0x%02x, asc 0x%02x, ascq 0x%02x", s.Key, s.ASC, s.ASCQ)
}

// BuildSenseData serializes the sense in fixed format (SPC-3 4.5.3) or in
// descriptor format (SPC-3 4.5.2) and returns the bytes together with the
// effective sense length.
func BuildSenseData(sense Sense, fixed bool) ([]byte, uint32) {
	if fixed {
		buf := make([]byte, FixedSenseLength)
		// current, not deferred
		buf[0] = SENSE_FIXED_CURRENT
		buf[2] = sense.Key
		// additional sense length, counted from byte 8
		buf[7] = byte(FixedSenseLength - 8)
		buf[12] = sense.ASC
		buf[13] = sense.ASCQ
		return buf, FixedSenseLength
	}
	buf := make([]byte, DescriptorSenseLength)
	buf[0] = SENSE_DESCRIPTOR_CURRENT
	buf[1] = sense.Key
	buf[2] = sense.ASC
	buf[3] = sense.ASCQ
	// buf[7] is the additional sense length, no descriptors follow
	return buf, DescriptorSenseLength
}

// DecodeSense recovers the sense triple from fixed or descriptor format
// sense data.
func DecodeSense(data []byte) (Sense, error) {
	if len(data) == 0 {
		return Sense{}, fmt.Errorf("empty sense data")
	}
	switch data[0] & 0x7f {
	case 0x70, 0x71:
		if len(data) < 14 {
			return Sense{}, fmt.Errorf("fixed sense data too short: %d bytes", len(data))
		}
		return Sense{Key: data[2] & 0x0f, ASC: data[12], ASCQ: data[13]}, nil
	case 0x72, 0x73:
		if len(data) < 4 {
			return Sense{}, fmt.Errorf("descriptor sense data too short: %d bytes", len(data))
		}
		return Sense{Key: data[1] & 0x0f, ASC: data[2], ASCQ: data[3]}, nil
	}
	return Sense{}, fmt.Errorf("unknown sense response code 0x%02x", data[0])
}
