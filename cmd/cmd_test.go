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

package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/config"
	"github.com/gostor/vscsi/pkg/scsi"
)

func TestCheckResponse(t *testing.T) {
	sense, length := scsi.BuildSenseData(scsi.Sense{Key: scsi.DATA_PROTECT, ASC: 0x27}, true)
	tests := map[string]struct {
		resp api.CommandResponse
		err  string
	}{
		"good": {
			resp: api.CommandResponse{Status: api.SAM_STAT_GOOD},
		},
		"bad target": {
			resp: api.CommandResponse{Response: api.VIRTIO_SCSI_S_BAD_TARGET},
			err:  "virtio-scsi response 3",
		},
		"write protected": {
			resp: api.CommandResponse{Status: api.SAM_STAT_CHECK_CONDITION, Sense: sense[:length]},
			err:  "check condition: key 0x07, asc 0x27, ascq 0x00",
		},
		"busy": {
			resp: api.CommandResponse{Status: 0x08},
			err:  "scsi status 0x08",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := checkResponse(&tt.resp)
			if tt.err == "" {
				if err != nil {
					t.Errorf("Expected not error, but got %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.err {
				t.Errorf("Expected %q, but got %v", tt.err, err)
			}
		})
	}
}

func TestRWCDB(t *testing.T) {
	want := []byte{0x2a, 0x08, 0x00, 0x01, 0x02, 0x03, 0x00, 0x00, 0x10, 0x00}
	if diff := cmp.Diff(want, rwCDB(api.WRITE_10, 0x010203, 16, true)); diff != "" {
		t.Errorf("cdb mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.json")
	if err := (&config.Config{
		Storage:   "file",
		Path:      "/var/tmp/disk.img",
		BlockSize: 512,
		QueueSize: 256,
	}).Save(file); err != nil {
		t.Fatal(err)
	}

	cmd := newDaemonCommand()
	if err := cmd.ParseFlags([]string{"--config", file, "--storage", "null", "--path", "65536", "-H", "tcp://127.0.0.1:0"}); err != nil {
		t.Fatal(err)
	}
	opts := daemonOptions{
		configFile: file,
		storage:    "null",
		path:       "65536",
		hosts:      []string{"tcp://127.0.0.1:0"},
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if cfg.Storage != "null" || cfg.Path != "65536" || cfg.ReadOnly {
		t.Errorf("unexpected config %+v", cfg)
	}
	if diff := cmp.Diff([]string{"tcp://127.0.0.1:0"}, cfg.Hosts); diff != "" {
		t.Errorf("hosts mismatch (-want +got):\n%s", diff)
	}

	dev, err := newDevice(cfg)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if lu := dev.LogicalUnit(); lu.MaxLBA != 128 || lu.Storage != "null" {
		t.Errorf("unexpected logical unit %+v", lu)
	}

	cfg.Storage = "nosuch"
	if _, err := newDevice(cfg); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected an unknown backing store error, but got %v", err)
	}
}

func TestSetLogLevel(t *testing.T) {
	for _, level := range []string{"info", "warn", "debug", "error"} {
		if err := setLogLevel(level); err != nil {
			t.Errorf("Expected level %s to be accepted, but got %v", level, err)
		}
	}
	if err := setLogLevel("loud"); err == nil {
		t.Errorf("Expected error for an unknown level")
	}
}
