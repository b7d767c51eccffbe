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

// Package util provides some basic util functions.
package util

import (
	"bytes"
	"encoding/binary"
)

func GetUnalignedUint16(u8 []uint8) uint16 {
	return binary.BigEndian.Uint16(u8)
}

func GetUnalignedUint32(u8 []uint8) uint32 {
	return binary.BigEndian.Uint32(u8)
}

func MarshalUint16(i uint16) []byte {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, i)
	return data
}

func MarshalUint32(i uint32) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, i)
	return data
}

// FixedString pads str with spaces, or truncates it, to exactly length bytes.
// SCSI identification strings are left aligned and space filled.
func FixedString(str string, length int) []byte {
	p := []byte(str)
	if len(p) >= length {
		return p[:length]
	}
	return append(p, bytes.Repeat([]byte{' '}, length-len(p))...)
}

// POSIX_FADV_NOREUSE is the advice the file store gives after each transfer.
const POSIX_FADV_NOREUSE = 5
