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

// SCSI primary command processing test
package scsi

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Test SPCReportLuns function
func TestSPCReportLuns(t *testing.T) {
	bs := newMemStore(512)
	lu := newTestLU(t, bs, false)

	cdb := []byte{0xa0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(cdb[6:10], 16)
	out := &bytes.Buffer{}
	if err := execute(t, lu, bs, cdb, nil, out); err != nil {
		t.Errorf("Expected not error, but got %v", err)
	}
	want := []byte{0, 0, 0, 8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if diff := cmp.Diff(want, out.Bytes()); diff != "" {
		t.Errorf("report luns mismatch (-want +got):\n%s", diff)
	}

	binary.BigEndian.PutUint32(cdb[6:10], 10)
	e := asExecuteError(t, execute(t, lu, bs, cdb, nil, &bytes.Buffer{}))
	if e.Kind != ErrInvalidField {
		t.Errorf("Expected invalid field error, but got %v", e)
	}
}

func TestSPCTestUnit(t *testing.T) {
	bs := newMemStore(512)
	lu := newTestLU(t, bs, true)
	out := &bytes.Buffer{}
	if err := execute(t, lu, bs, []byte{0x00, 0, 0, 0, 0, 0}, nil, out); err != nil {
		t.Errorf("Expected not error, but got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no payload, but got %d bytes", out.Len())
	}
}

func TestSPCRequestSense(t *testing.T) {
	tests := map[string]struct {
		cdb  []byte
		want []byte
	}{
		"fixed": {
			cdb:  []byte{0x03, 0, 0, 0, 252, 0},
			want: []byte{0x70, 0, 0, 0, 0, 0, 0, 10, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		"descriptor": {
			cdb:  []byte{0x03, 0x01, 0, 0, 252, 0},
			want: []byte{0x72, 0, 0, 0, 0, 0, 0, 0},
		},
		"truncated": {
			cdb:  []byte{0x03, 0, 0, 0, 8, 0},
			want: []byte{0x70, 0, 0, 0, 0, 0, 0, 10},
		},
		"zero allocation": {
			cdb:  []byte{0x03, 0, 0, 0, 0, 0},
			want: nil,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			bs := newMemStore(512)
			lu := newTestLU(t, bs, false)
			out := &bytes.Buffer{}
			if err := execute(t, lu, bs, tt.cdb, nil, out); err != nil {
				t.Fatalf("Expected not error, but got %v", err)
			}
			if !bytes.Equal(tt.want, out.Bytes()) {
				t.Errorf("Expected % x, but got % x", tt.want, out.Bytes())
			}
		})
	}
}

func TestSPCInquiry(t *testing.T) {
	bs := newMemStore(512)
	lu := newTestLU(t, bs, false)

	out := &bytes.Buffer{}
	if err := execute(t, lu, bs, []byte{0x12, 0, 0, 0, 0xff, 0}, nil, out); err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	data := out.Bytes()
	if len(data) != 36 {
		t.Fatalf("Expected 36 bytes of standard inquiry data, but got %d", len(data))
	}
	if diff := cmp.Diff([]byte{0x00, 0x00, 0x05, 0x02, 31, 0, 0, 0x02}, data[:8]); diff != "" {
		t.Errorf("inquiry header mismatch (-want +got):\n%s", diff)
	}
	if got := string(data[8:16]); got != "GOSTOR  " {
		t.Errorf("Expected vendor %q, but got %q", "GOSTOR  ", got)
	}
	if got := string(data[32:36]); got != "0001" {
		t.Errorf("Expected revision %q, but got %q", "0001", got)
	}

	out.Reset()
	if err := execute(t, lu, bs, []byte{0x12, 0, 0, 0, 5, 0}, nil, out); err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if out.Len() != 5 {
		t.Errorf("Expected inquiry data truncated to 5 bytes, but got %d", out.Len())
	}

	e := asExecuteError(t, execute(t, lu, bs, []byte{0x12, 0, 0, 0, 0xff, 0}, nil, &limitedWriter{n: 10}))
	if e.Kind != ErrWrite {
		t.Errorf("Expected write error for a short data-in buffer, but got %v", e)
	}
}

func TestSPCInquiryVPD(t *testing.T) {
	bs := newMemStore(512)
	lu := newTestLU(t, bs, false)
	inquiry := func(page byte) ([]byte, error) {
		out := &bytes.Buffer{}
		err := execute(t, lu, bs, []byte{0x12, 0x01, page, 0x01, 0x00, 0}, nil, out)
		return out.Bytes(), err
	}

	tests := map[string]struct {
		page   byte
		length int
		check  func(t *testing.T, payload []byte)
	}{
		"supported pages": {
			page:   0x00,
			length: 6,
			check: func(t *testing.T, payload []byte) {
				if diff := cmp.Diff([]byte{0x00, 0x80, 0x83, 0xb0, 0xb1, 0xb2}, payload); diff != "" {
					t.Errorf("supported pages mismatch (-want +got):\n%s", diff)
				}
			},
		},
		"unit serial number": {
			page:   0x80,
			length: 36,
			check: func(t *testing.T, payload []byte) {
				if got := string(payload); got != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
					t.Errorf("unexpected serial %q", got)
				}
			},
		},
		"device identification": {
			page:   0x83,
			length: 4 + 8 + 36 + 4 + 16,
			check: func(t *testing.T, payload []byte) {
				if diff := cmp.Diff([]byte{0x02, 0x01, 0x00, 44}, payload[:4]); diff != "" {
					t.Errorf("t10 designator header mismatch (-want +got):\n%s", diff)
				}
				naa := payload[48:]
				if diff := cmp.Diff([]byte{0x01, 0x03, 0x00, 16, 0x60, 0x01, 0x40, 0x5b, 0xa7}, naa[:9]); diff != "" {
					t.Errorf("naa designator mismatch (-want +got):\n%s", diff)
				}
			},
		},
		"block limits": {
			page:   0xb0,
			length: 0x3c,
			check: func(t *testing.T, payload []byte) {
				if got := binary.BigEndian.Uint32(payload[4:8]); got != 0xffff {
					t.Errorf("Expected max transfer length 0xffff, but got 0x%x", got)
				}
			},
		},
		"block device characteristics": {
			page:   0xb1,
			length: 0x3c,
			check: func(t *testing.T, payload []byte) {
				if got := binary.BigEndian.Uint16(payload[0:2]); got != 1 {
					t.Errorf("Expected non-rotating medium, but got %d", got)
				}
			},
		},
		"logical block provisioning": {
			page:   0xb2,
			length: 4,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := inquiry(tt.page)
			if err != nil {
				t.Fatalf("Expected not error, but got %v", err)
			}
			if data[1] != tt.page {
				t.Errorf("Expected page code 0x%02x, but got 0x%02x", tt.page, data[1])
			}
			if got := int(binary.BigEndian.Uint16(data[2:4])); got != tt.length || len(data) != 4+tt.length {
				t.Fatalf("Expected page length %d, but got %d (%d bytes)", tt.length, got, len(data))
			}
			if tt.check != nil {
				tt.check(t, data[4:])
			}
		})
	}

	if _, err := inquiry(0x99); err == nil {
		t.Errorf("Expected error for an unknown vpd page")
	} else if e := asExecuteError(t, err); e.Kind != ErrInvalidField {
		t.Errorf("Expected invalid field error, but got %v", e)
	}
}
