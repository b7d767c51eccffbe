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

package apiserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
	_ "github.com/gostor/vscsi/pkg/scsi/backingstore"
	"github.com/gostor/vscsi/pkg/virtio/vscsi"
)

func newTestServer(t *testing.T) (*httptest.Server, *vscsi.Loopback) {
	t.Helper()
	bs, err := scsi.OpenBackingStore("null", "1048576", "")
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	dev, err := vscsi.NewDevice(bs, vscsi.Options{Storage: "null", Path: "1048576"})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	l, err := vscsi.NewLoopback(dev)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	s, err := New(&Config{Version: "1.0"})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	s.InitRouters(l)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		l.Close()
	})
	return ts, l
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func TestGetConfig(t *testing.T) {
	ts, l := newTestServer(t)
	var cs api.ConfigSpace
	getJSON(t, ts.URL+"/v1.0/device/config", &cs)
	if diff := cmp.Diff(l.ConfigSpace(), cs); diff != "" {
		t.Errorf("config space mismatch (-want +got):\n%s", diff)
	}
	if cs.NumQueues != 1 || cs.SegMax != 254 {
		t.Errorf("unexpected config space %+v", cs)
	}
}

func TestGetLogicalUnit(t *testing.T) {
	ts, _ := newTestServer(t)
	var lu api.LogicalUnitInfo
	getJSON(t, ts.URL+"/device/lu", &lu)
	if !lu.Active || lu.MaxLBA != 2048 || lu.BlockSize != 512 || lu.Storage != "null" {
		t.Errorf("unexpected logical unit %+v", lu)
	}
}

func TestGetVersion(t *testing.T) {
	ts, _ := newTestServer(t)
	var v api.VersionInfo
	getJSON(t, ts.URL+"/v1.2/version", &v)
	if v.APIVersion != "1.2" {
		t.Errorf("Expected api version 1.2, but got %s", v.APIVersion)
	}
}

func TestPostCommand(t *testing.T) {
	tests := map[string]struct {
		contentType string
		body        string
		status      int
	}{
		"inquiry": {
			contentType: "application/json",
			body:        `{"lun":[1,0,0,0,0,0,0,0],"cdb":"EgAAACQA","data_in_length":36}`,
			status:      http.StatusOK,
		},
		"not json": {
			contentType: "text/plain",
			body:        `inquiry`,
			status:      http.StatusBadRequest,
		},
		"empty cdb": {
			contentType: "application/json",
			body:        `{"lun":[1,0,0,0,0,0,0,0]}`,
			status:      http.StatusBadRequest,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ts, _ := newTestServer(t)
			resp, err := http.Post(ts.URL+"/device/command", tt.contentType, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Expected not error, but got %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("Expected %d, but got %d", tt.status, resp.StatusCode)
			}
			if tt.status != http.StatusOK {
				return
			}
			var out api.CommandResponse
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if out.Status != api.SAM_STAT_GOOD || len(out.Data) != 36 {
				t.Fatalf("unexpected response %+v", out)
			}
			if !bytes.HasPrefix(out.Data[8:], []byte("GOSTOR")) {
				t.Errorf("Expected vendor GOSTOR, but got %q", out.Data[8:16])
			}
		})
	}
}

func TestReconfigureAndReset(t *testing.T) {
	ts, l := newTestServer(t)
	resp, err := http.Post(ts.URL+"/device/reconfigure?blocksize=4096&readonly=1", "", nil)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, but got %d", resp.StatusCode)
	}
	lu := l.LogicalUnit()
	if lu.BlockSize != 4096 || lu.MaxLBA != 256 || !lu.ReadOnly {
		t.Errorf("unexpected logical unit %+v", lu)
	}

	resp, err = http.Post(ts.URL+"/device/reconfigure?blocksize=1000", "", nil)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, but got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/device", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, but got %d", resp.StatusCode)
	}
	if l.LogicalUnit().Active {
		t.Errorf("Expected the device to be stopped")
	}

	resp, err = http.Post(ts.URL+"/device/command", "application/json",
		strings.NewReader(`{"lun":[1,0,0,0,0,0,0,0],"cdb":"AAAAAAAA"}`))
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after reset, but got %d", resp.StatusCode)
	}
}

func TestAttachDevice(t *testing.T) {
	s, err := New(&Config{})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/device/lu")
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a device, but got %d", resp.StatusCode)
	}

	for _, size := range []string{"1048576", "2097152"} {
		bs, err := scsi.OpenBackingStore("null", size, "")
		if err != nil {
			t.Fatalf("Expected not error, but got %v", err)
		}
		dev, err := vscsi.NewDevice(bs, vscsi.Options{Storage: "null", Path: size})
		if err != nil {
			t.Fatalf("Expected not error, but got %v", err)
		}
		l, err := vscsi.NewLoopback(dev)
		if err != nil {
			t.Fatalf("Expected not error, but got %v", err)
		}
		defer l.Close()
		s.InitRouters(l)

		var lu api.LogicalUnitInfo
		getJSON(t, ts.URL+"/device/lu", &lu)
		if lu.Path != size {
			t.Errorf("Expected the attached device on %s, but got %s", size, lu.Path)
		}
	}
}

func TestParseAddr(t *testing.T) {
	tests := map[string]struct {
		in   string
		want Addr
		ok   bool
	}{
		"tcp": {
			in:   "tcp://127.0.0.1:23458",
			want: Addr{Proto: "tcp", Addr: "127.0.0.1:23458"},
			ok:   true,
		},
		"vsock": {
			in:   "vsock://3:1024",
			want: Addr{Proto: "vsock", Addr: "3:1024"},
			ok:   true,
		},
		"no proto": {
			in: "127.0.0.1:23458",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseAddr(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected error %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("addr mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseVsockAddr(t *testing.T) {
	cid, port, err := ParseVsockAddr("1024")
	if err != nil || cid != 0 || port != 1024 {
		t.Errorf("Expected port 1024 on the local context, but got %d:%d %v", cid, port, err)
	}
	cid, port, err = ParseVsockAddr("3:5000")
	if err != nil || cid != 3 || port != 5000 {
		t.Errorf("Expected 3:5000, but got %d:%d %v", cid, port, err)
	}
	if _, _, err := ParseVsockAddr("host:port"); err == nil {
		t.Errorf("Expected error")
	}
}

func TestNewServerTCP(t *testing.T) {
	s, err := New(&Config{Addrs: []Addr{{Proto: "tcp", Addr: "127.0.0.1:0"}}})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	defer s.Close()
	if len(s.Addrs()) != 1 {
		t.Errorf("Expected one listener, but got %d", len(s.Addrs()))
	}
	if _, err := New(&Config{Addrs: []Addr{{Proto: "udp", Addr: "127.0.0.1:0"}}}); err == nil {
		t.Errorf("Expected error for an unknown protocol")
	}
}

func TestListenFDWithoutActivation(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")
	if _, err := New(&Config{Addrs: []Addr{{Proto: "fd", Addr: "*"}}}); err == nil || !strings.Contains(err.Error(), "No sockets found") {
		t.Errorf("Expected no activated sockets, but got %v", err)
	}
}
