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

package mock

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/virtio/vscsi"
)

func TestStartStop(t *testing.T) {
	cases := map[string]struct {
		count         int
		shutdownAgain bool
		expectErr     bool
	}{
		"DeviceStartStop": {
			count:     3,
			expectErr: false,
		},
		"DeviceStop": {
			count:         1,
			expectErr:     true,
			shutdownAgain: true,
		},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < tt.count; i++ {
				bs := &remoteBs{}
				err := bs.Startup("store1", 1<<20, 512)
				if err != nil {
					t.Fatalf("Failed to start the device, err: %v", err)
				}
				if bs.State() != "Up" {
					t.Fatalf("Expected the volume to be up, but got %s", bs.State())
				}

				expectErr := false
				err = bs.Shutdown()
				if err != nil {
					expectErr = true
				}

				if tt.shutdownAgain {
					err = bs.Shutdown()
					if err != nil {
						expectErr = true
					}
				}

				if tt.expectErr != expectErr {
					t.Fatalf("Startup test failed, err: %v", err)
				}
			}
		})
	}
}

func TestVolumeIO(t *testing.T) {
	bs := &remoteBs{}
	if err := bs.Startup("store2", 1<<20, 512); err != nil {
		t.Fatalf("Failed to start the device, err: %v", err)
	}
	defer bs.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := bytes.Repeat([]byte{0x5a}, 1024)
	resp, err := bs.loopback.Submit(ctx, api.CommandRequest{
		Lun:  vscsi.LUN0,
		CDB:  []byte{0x2a, 0x08, 0, 0, 0, 4, 0, 0, 2, 0},
		Data: payload,
	})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if resp.Status != api.SAM_STAT_GOOD {
		t.Fatalf("Expected GOOD, but got 0x%x", resp.Status)
	}
	if !bytes.Equal(bs.data[4*512:6*512], payload) {
		t.Errorf("Expected the payload to reach the volume")
	}

	resp, err = bs.loopback.Submit(ctx, api.CommandRequest{
		Lun:          vscsi.LUN0,
		CDB:          []byte{0x28, 0, 0, 0, 0, 4, 0, 0, 2, 0},
		DataInLength: 1024,
	})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if !bytes.Equal(resp.Data, payload) {
		t.Errorf("Expected to read back the payload")
	}

	stats := bs.Stats()
	if stats.WriteIOPS != 1 || stats.ReadIOPS != 1 || stats.Syncs != 1 || stats.WriteBytes != 1024 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := bs.SetReadOnly(true); err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	resp, err = bs.loopback.Submit(ctx, api.CommandRequest{
		Lun:  vscsi.LUN0,
		CDB:  []byte{0x2a, 0, 0, 0, 0, 4, 0, 0, 1, 0},
		Data: payload[:512],
	})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if resp.Status != api.SAM_STAT_CHECK_CONDITION {
		t.Errorf("Expected a write protected unit, but got 0x%x", resp.Status)
	}
}
