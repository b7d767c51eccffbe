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

package backingstore

import (
	"fmt"

	"github.com/dypflying/go-qcow2lib/qcow2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
)

const (
	Qcow2BackingStorage = "qcow2"
)

func init() {
	scsi.RegisterBackingStore(Qcow2BackingStorage, newQcow2)
}

type qcow2Store struct {
	scsi.BaseBackingStore
	child *qcow2.BdrvChild
}

func newQcow2() (api.BackingStore, error) {
	return &qcow2Store{
		BaseBackingStore: scsi.BaseBackingStore{
			Name:            Qcow2BackingStorage,
			DataSize:        0,
			OflagsSupported: 0,
		},
	}, nil
}

func (bs *qcow2Store) Open(path string) error {
	var err error
	var open_opts = map[string]any{
		qcow2.OPT_FILENAME: path,
		qcow2.OPT_FMT:      "qcow2",
	}
	log.Debugf("open qcow2 path = %s", path)
	if bs.child, err = qcow2.Blk_Open(path, open_opts, qcow2.BDRV_O_RDWR); err != nil {
		return err
	}
	if bs.DataSize, err = qcow2.Blk_Getlength(bs.child); err != nil {
		return err
	}
	return nil
}

func (bs *qcow2Store) Close() error {
	if bs.child != nil {
		qcow2.Blk_Close(bs.child)
	}
	return nil
}

func (bs *qcow2Store) Init(opts string) error {
	return nil
}

func (bs *qcow2Store) Size() uint64 {
	return bs.DataSize
}

// The qcow2 library either transfers the whole range or fails.
func (bs *qcow2Store) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	if bs.child == nil {
		return 0, fmt.Errorf("qcow2 image is not open")
	}
	log.Debugf("qcow2 read bytes=%d", len(buf))
	if _, err := qcow2.Blk_Pread(bs.child, uint64(offset), buf, uint64(len(buf))); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (bs *qcow2Store) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	if bs.child == nil {
		return 0, fmt.Errorf("qcow2 image is not open")
	}
	log.Debugf("qcow2 write bytes=%d", len(buf))
	if _, err := qcow2.Blk_Pwrite(bs.child, uint64(offset), buf, uint64(len(buf)), 0); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (bs *qcow2Store) DataSync(ctx context.Context) error {
	return nil
}

func (bs *qcow2Store) DataAdvise(offset, length int64, advise uint32) error {
	return nil
}
