//go:build ceph
// +build ceph

/*
Copyright 2018 The GoStor Authors All rights reserved.

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
package cephstore

import (
	"fmt"
	"strings"

	"github.com/ceph/go-ceph/rados"
	"github.com/ceph/go-ceph/rbd"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
)

// This ceph-rbd plugin is only for linux
// path format poolname/imagename, cluster settings come from the default ceph.conf
const (
	CephBackingStorage = "ceph-rbd"
)

func init() {
	scsi.RegisterBackingStore(CephBackingStorage, newCeph)
}

type CephBackingStore struct {
	scsi.BaseBackingStore
	poolName  string
	imageName string
	conn      *rados.Conn
	ioctx     *rados.IOContext
	image     *rbd.Image
}

func newCeph() (api.BackingStore, error) {
	return &CephBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name:            CephBackingStorage,
			DataSize:        0,
			OflagsSupported: 0,
		},
	}, nil
}

func (bs *CephBackingStore) Open(path string) error {
	pathinfo := strings.SplitN(path, "/", 2)
	if len(pathinfo) != 2 {
		return fmt.Errorf("invalid device path string:%s", path)
	}
	poolName := pathinfo[0]
	bs.poolName = poolName
	imageName := pathinfo[1]
	bs.imageName = imageName
	log.Debugf("ceph path = %s", path)
	if conn, err := rados.NewConn(); err != nil {
		log.Error(err)
		return err
	} else {
		bs.conn = conn
	}
	if err := bs.conn.ReadDefaultConfigFile(); err != nil {
		log.Error(err)
		return err
	}

	if err := bs.conn.Connect(); err != nil {
		log.Error(err)
		return err
	}

	if ioctx, err := bs.conn.OpenIOContext(poolName); err != nil {
		bs.conn.Shutdown()
		log.Error(err)
		return err
	} else {
		bs.ioctx = ioctx
	}

	if image := rbd.GetImage(bs.ioctx, imageName); image == nil {
		err := fmt.Errorf("rbdGetImage failed:poolName:%s,imageName:%s",
			poolName, imageName)
		log.Error(err)
		bs.ioctx.Destroy()
		bs.conn.Shutdown()
		return err
	} else {
		bs.image = image
	}

	if err := bs.image.Open(); err != nil {
		log.Error(err)
		return err
	}

	if dataSize, err := bs.image.GetSize(); err != nil {
		log.Error(err)
		return err
	} else {
		bs.DataSize = dataSize
	}
	return nil
}

func (bs *CephBackingStore) Close() error {
	if bs.image == nil {
		return nil
	}
	err := bs.image.Close()
	bs.ioctx.Destroy()
	bs.conn.Shutdown()
	return err
}

func (bs *CephBackingStore) Init(opts string) error {
	return nil
}

func (bs *CephBackingStore) Size() uint64 {
	return bs.DataSize
}

func (bs *CephBackingStore) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	return bs.image.ReadAt(buf, offset)
}

func (bs *CephBackingStore) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	return bs.image.WriteAt(buf, offset)
}

func (bs *CephBackingStore) DataSync(ctx context.Context) error {
	return bs.image.Flush()
}

func (bs *CephBackingStore) DataAdvise(offset, length int64, advise uint32) error {
	return nil
}
