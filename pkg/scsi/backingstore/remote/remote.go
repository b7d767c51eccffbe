/*
Copyright 2016 openebs authors All rights reserved.

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

package remote

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
)

const (
	RemoteBackingStorage = "RemBs"
)

var (
	// Size of the remote volume in bytes, set by the embedding program
	Size uint64
)

func init() {
	scsi.RegisterBackingStore(RemoteBackingStorage, NewRemoteBackingStore)
}

// RemBackingStore
type RemBackingStore struct {
	scsi.BaseBackingStore
	// Remote backing store, remote server exposing
	// read and write methods.
	RemBs api.RemoteBackingStore
}

func NewRemoteBackingStore() (api.BackingStore, error) {
	return &RemBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name:            RemoteBackingStorage,
			OflagsSupported: 0,
		},
	}, nil
}

func (bs *RemBackingStore) Open(path string) error {
	if Size == 0 {
		return fmt.Errorf("Size is not initialized")
	}
	var err error
	bs.DataSize = Size
	bs.RemBs, err = scsi.GetRemoteBackingStore(path)
	if err != nil {
		return err
	}
	return nil
}

func (bs *RemBackingStore) Close() error {
	return nil
}

func (bs *RemBackingStore) Init(opts string) error {
	return nil
}

func (bs *RemBackingStore) Size() uint64 {
	return bs.DataSize
}

func (bs *RemBackingStore) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	length, err := bs.RemBs.ReadAt(buf, offset)
	if err == nil && length != len(buf) {
		err = fmt.Errorf("Incomplete read expected:%d actual:%d", len(buf), length)
	}
	return length, err
}

func (bs *RemBackingStore) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	length, err := bs.RemBs.WriteAt(buf, offset)
	if err != nil {
		log.Error(err)
		return length, err
	}
	if length != len(buf) {
		return length, fmt.Errorf("Incomplete write expected:%d actual:%d", len(buf), length)
	}
	return length, nil
}

func (bs *RemBackingStore) DataAdvise(offset, length int64, advise uint32) error {
	return nil
}

func (bs *RemBackingStore) DataSync(ctx context.Context) (err error) {
	_, err = bs.RemBs.Sync()
	return
}
