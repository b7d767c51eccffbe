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

package backingstore

import (
	"fmt"
	"strconv"

	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
)

const (
	NullBackingStorage = "null"
)

func init() {
	scsi.RegisterBackingStore(NullBackingStorage, newNull)
}

// NullBackingStore reads zeroes and discards writes.
type NullBackingStore struct {
	scsi.BaseBackingStore
}

func newNull() (api.BackingStore, error) {
	return &NullBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name:            NullBackingStorage,
			DataSize:        0,
			OflagsSupported: 0,
		},
	}, nil
}

// Open takes the advertised size in bytes as path, empty means zero.
func (bs *NullBackingStore) Open(path string) error {
	if path == "" {
		return nil
	}
	size, err := strconv.ParseUint(path, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid null device size %q: %v", path, err)
	}
	bs.DataSize = size
	return nil
}

func (bs *NullBackingStore) Close() error {
	return nil
}

func (bs *NullBackingStore) Init(opts string) error {
	return nil
}

func (bs *NullBackingStore) Size() uint64 {
	return bs.DataSize
}

func (bs *NullBackingStore) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}

func (bs *NullBackingStore) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	return len(buf), nil
}

func (bs *NullBackingStore) DataSync(ctx context.Context) error {
	return nil
}

func (bs *NullBackingStore) DataAdvise(offset, length int64, advise uint32) error {
	return nil
}
