/*
Copyright 2017 The GoStor Authors All rights reserved.

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
	"os"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
	"github.com/gostor/vscsi/pkg/util"
)

const (
	FileBackingStorage = "file"
)

func init() {
	scsi.RegisterBackingStore(FileBackingStorage, new)
}

type FileBackingStore struct {
	scsi.BaseBackingStore
	file     *os.File
	readOnly bool
}

func new() (api.BackingStore, error) {
	return &FileBackingStore{
		BaseBackingStore: scsi.BaseBackingStore{
			Name:            FileBackingStorage,
			DataSize:        0,
			OflagsSupported: os.O_RDONLY | os.O_RDWR,
		},
	}, nil
}

// Init accepts "ro" to open the image read only.
func (bs *FileBackingStore) Init(opts string) error {
	switch opts {
	case "":
	case "ro":
		bs.readOnly = true
	default:
		return fmt.Errorf("unknown file backing store option %q", opts)
	}
	return nil
}

func (bs *FileBackingStore) Open(path string) error {
	finfo, err := os.Stat(path)
	if err != nil {
		return err
	}
	bs.DataSize = uint64(finfo.Size())

	flag := os.O_RDWR
	if bs.readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, os.ModePerm)
	if err != nil {
		return err
	}
	bs.file = f
	return nil
}

func (bs *FileBackingStore) Close() error {
	if bs.file == nil {
		return nil
	}
	return bs.file.Close()
}

func (bs *FileBackingStore) Size() uint64 {
	return bs.DataSize
}

func (bs *FileBackingStore) Read(ctx context.Context, buf []byte, offset int64) (int, error) {
	if bs.file == nil {
		return 0, fmt.Errorf("Backend store is nil")
	}
	return bs.file.ReadAt(buf, offset)
}

func (bs *FileBackingStore) Write(ctx context.Context, buf []byte, offset int64) (int, error) {
	if bs.file == nil {
		return 0, fmt.Errorf("Backend store is nil")
	}
	length, err := bs.file.WriteAt(buf, offset)
	if err != nil {
		log.Error(err)
	}
	return length, err
}

func (bs *FileBackingStore) DataSync(ctx context.Context) error {
	return util.Fdatasync(bs.file)
}

func (bs *FileBackingStore) DataAdvise(offset, length int64, advise uint32) error {
	return util.Fadvise(bs.file, offset, length, advise)
}
