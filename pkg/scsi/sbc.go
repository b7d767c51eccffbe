/*
Copyright 2015 The GoStor Authors All rights reserved.

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

// SCSI block command processing
package scsi

import (
	"context"
	"io"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/util"
)

func (c Read6) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	return sbcRead(ctx, w, lu, bs, uint64(c.LBA), uint32(c.Length), false)
}

func (c Read10) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	return sbcRead(ctx, w, lu, bs, uint64(c.LBA), uint32(c.Length), c.DPO)
}

func (c Write10) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	if lu.ReadOnly {
		return ReadOnlyError()
	}
	var (
		lba    = uint64(c.LBA)
		blocks = uint32(c.Length)
	)
	if err := lu.checkRange(lba, blocks); err != nil {
		return err
	}
	size := int(blocks) * int(lu.BlockSize)
	offset := int64(lba) * int64(lu.BlockSize)
	if size == 0 {
		return nil
	}

	wbuf := make([]byte, size)
	length, rerr := io.ReadFull(r, wbuf)
	written, err := bs.Write(ctx, wbuf[:length], offset)
	if err == nil && rerr != nil {
		err = rerr
	}
	if err == nil && written < size {
		err = io.ErrShortWrite
	}
	if err != nil {
		return WriteIoError(size-written, err)
	}
	log.Debugf("write data at 0x%x for length %d", offset, size)

	if c.FUA {
		if err := bs.DataSync(ctx); err != nil {
			return WriteError(err)
		}
	}
	if c.DPO {
		advise(bs, offset, size)
	}
	return nil
}

func (c ReadCapacity10) execute(ctx context.Context, r io.Reader, w io.Writer, lu *LogicalUnit, bs api.BackingStore) error {
	var last uint64
	if lu.MaxLBA > 0 {
		last = lu.MaxLBA - 1
	}
	if last > math.MaxUint32 {
		last = math.MaxUint32
	}
	data := make([]byte, 0, 8)
	data = append(data, util.MarshalUint32(uint32(last))...)
	data = append(data, util.MarshalUint32(lu.BlockSize)...)
	return writeData(w, data, len(data))
}

// sbcRead transfers blocks from the backing store into w. Whatever was read
// before a failure is still handed to the guest, the rest is reported as
// residual.
func sbcRead(ctx context.Context, w io.Writer, lu *LogicalUnit, bs api.BackingStore, lba uint64, blocks uint32, dpo bool) error {
	if err := lu.checkRange(lba, blocks); err != nil {
		return err
	}
	size := int(blocks) * int(lu.BlockSize)
	offset := int64(lba) * int64(lu.BlockSize)
	if size == 0 {
		return nil
	}

	rbuf := make([]byte, size)
	length, err := bs.Read(ctx, rbuf, offset)
	if length == size && err == io.EOF {
		err = nil
	}
	if err == nil && length < size {
		err = io.ErrUnexpectedEOF
	}
	written, werr := w.Write(rbuf[:length])
	if werr != nil {
		return ReadIoError(size-written, werr)
	}
	if err != nil {
		return ReadIoError(size-length, err)
	}
	log.Debugf("read data at 0x%x for length %d", offset, size)

	if dpo {
		advise(bs, offset, size)
	}
	return nil
}

func advise(bs api.BackingStore, offset int64, length int) {
	if err := bs.DataAdvise(offset, int64(length), util.POSIX_FADV_NOREUSE); err != nil {
		log.Debugf("fadvise at 0x%x for length %d: %v", offset, length, err)
	}
}

// writeData copies a synthesized payload into the data-in buffer, truncated
// to the allocation length.
func writeData(w io.Writer, data []byte, allocLen int) error {
	if allocLen < len(data) {
		data = data[:allocLen]
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return WriteError(err)
	}
	return nil
}
