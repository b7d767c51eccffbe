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

package client

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/apiserver"
	"github.com/gostor/vscsi/pkg/scsi"
	_ "github.com/gostor/vscsi/pkg/scsi/backingstore"
	"github.com/gostor/vscsi/pkg/version"
	"github.com/gostor/vscsi/pkg/virtio/vscsi"
)

var lun0 = [8]byte{1, 0, 0, 0, 0, 0, 0, 0}

func startDaemon(t *testing.T, addr apiserver.Addr) string {
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
	s, err := apiserver.New(&apiserver.Config{Addrs: []apiserver.Addr{addr}})
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	s.InitRouters(l)
	wait := make(chan error, 1)
	go s.Wait(wait)
	t.Cleanup(func() {
		s.Close()
		<-wait
		l.Close()
	})
	if addr.Proto == "tcp" {
		return "tcp://" + s.Addrs()[0].String()
	}
	return addr.Proto + "://" + addr.Addr
}

func newTestClient(t *testing.T, host string) *Client {
	t.Helper()
	cli, err := NewClient(host, version.Version, nil, nil)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	return cli
}

func TestClientOverTCP(t *testing.T) {
	cli := newTestClient(t, startDaemon(t, apiserver.Addr{Proto: "tcp", Addr: "127.0.0.1:0"}))
	ctx := context.Background()

	v, err := cli.Version(ctx)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if v.Version != version.VERSION || v.APIVersion != version.Version {
		t.Errorf("unexpected version %+v", v)
	}

	cs, err := cli.ConfigSpace(ctx)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if cs.NumQueues != 1 || cs.CdbSize != 32 || cs.SenseSize != 96 {
		t.Errorf("unexpected config space %+v", cs)
	}

	resp, err := cli.Command(ctx, api.CommandRequest{
		Lun:          lun0,
		CDB:          []byte{0x25, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		DataInLength: 8,
	}, 5)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if resp.Status != api.SAM_STAT_GOOD || len(resp.Data) != 8 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if last := binary.BigEndian.Uint32(resp.Data[0:4]); last != 2047 {
		t.Errorf("Expected last lba 2047, but got %d", last)
	}
	if bs := binary.BigEndian.Uint32(resp.Data[4:8]); bs != 512 {
		t.Errorf("Expected block size 512, but got %d", bs)
	}

	lu, err := cli.Reconfigure(ctx, 4096, true)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if lu.BlockSize != 4096 || !lu.ReadOnly {
		t.Errorf("unexpected logical unit %+v", lu)
	}

	if _, err := cli.Reconfigure(ctx, 1000, false); err == nil || !strings.Contains(err.Error(), "bad parameter") {
		t.Errorf("Expected a bad parameter error, but got %v", err)
	}

	if err := cli.Reset(ctx); err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	lu, err = cli.LogicalUnit(ctx)
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if lu.Active {
		t.Errorf("Expected the device to be stopped")
	}
}

func TestClientOverUnixSocket(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("unix sockets are chowned to root")
	}
	path := filepath.Join(t.TempDir(), "vscsi.sock")
	cli := newTestClient(t, startDaemon(t, apiserver.Addr{Proto: "unix", Addr: path}))
	lu, err := cli.LogicalUnit(context.Background())
	if err != nil {
		t.Fatalf("Expected not error, but got %v", err)
	}
	if !lu.Active || lu.MaxLBA != 2048 {
		t.Errorf("unexpected logical unit %+v", lu)
	}
}

func TestParseHost(t *testing.T) {
	tests := map[string]struct {
		host  string
		proto string
		addr  string
		base  string
		ok    bool
	}{
		"tcp": {
			host:  "tcp://127.0.0.1:23458",
			proto: "tcp",
			addr:  "127.0.0.1:23458",
			ok:    true,
		},
		"tcp with base path": {
			host:  "tcp://127.0.0.1:23458/vscsi",
			proto: "tcp",
			addr:  "127.0.0.1:23458",
			base:  "/vscsi",
			ok:    true,
		},
		"unix": {
			host:  "unix:///run/vscsi.sock",
			proto: "unix",
			addr:  "/run/vscsi.sock",
			ok:    true,
		},
		"no proto": {
			host: "127.0.0.1:23458",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			proto, addr, base, err := ParseHost(tt.host)
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected error %v", err)
			}
			if proto != tt.proto || addr != tt.addr || base != tt.base {
				t.Errorf("Expected %s %s %s, but got %s %s %s", tt.proto, tt.addr, tt.base, proto, addr, base)
			}
		})
	}
}

func TestParseVsockAddr(t *testing.T) {
	cid, port, err := parseVsockAddr("1024")
	if err != nil || cid != 2 || port != 1024 {
		t.Errorf("Expected the host context and port 1024, but got %d:%d %v", cid, port, err)
	}
	cid, port, err = parseVsockAddr("7:1024")
	if err != nil || cid != 7 || port != 1024 {
		t.Errorf("Expected 7:1024, but got %d:%d %v", cid, port, err)
	}
}

func TestConnectionRefused(t *testing.T) {
	cli := newTestClient(t, "unix://"+filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := cli.ConfigSpace(context.Background()); err == nil || !strings.Contains(err.Error(), "cannot connect") {
		t.Errorf("Expected a connection error, but got %v", err)
	}
}

func TestExpiredContext(t *testing.T) {
	cli := newTestClient(t, "unix://"+filepath.Join(t.TempDir(), "missing.sock"))
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if _, err := cli.ConfigSpace(ctx); err != context.DeadlineExceeded {
		t.Errorf("Expected %v, but got %v", context.DeadlineExceeded, err)
	}
}
