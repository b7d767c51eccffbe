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

package vscsi

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/scsi"
	"github.com/gostor/vscsi/pkg/virtio"
)

const (
	CdbSize   = 32
	SenseSize = 96

	// sizes of virtio_scsi_cmd_req and virtio_scsi_cmd_resp
	CmdReqSize  = 8 + 8 + 3 + CdbSize
	CmdRespSize = 4 + 4 + 2 + 1 + 1 + SenseSize
)

// CmdReq is the request header at the start of the driver readable part of
// a chain.
type CmdReq struct {
	Lun      [8]byte
	Tag      uint64
	TaskAttr uint8
	Prio     uint8
	Crn      uint8
	Cdb      [CdbSize]byte
}

func (req *CmdReq) UnmarshalBinary(data []byte) error {
	if len(data) < CmdReqSize {
		return errors.Errorf("request header too short: %d bytes", len(data))
	}
	copy(req.Lun[:], data[0:8])
	req.Tag = binary.LittleEndian.Uint64(data[8:16])
	req.TaskAttr = data[16]
	req.Prio = data[17]
	req.Crn = data[18]
	copy(req.Cdb[:], data[19:CmdReqSize])
	return nil
}

func (req *CmdReq) MarshalBinary() ([]byte, error) {
	data := make([]byte, CmdReqSize)
	copy(data[0:8], req.Lun[:])
	binary.LittleEndian.PutUint64(data[8:16], req.Tag)
	data[16] = req.TaskAttr
	data[17] = req.Prio
	data[18] = req.Crn
	copy(data[19:], req.Cdb[:])
	return data, nil
}

// CmdResp is the response header at the start of the device writable part
// of a chain.
type CmdResp struct {
	SenseLen uint32
	// Resid is stored big endian on the wire
	Resid           uint32
	StatusQualifier uint16
	Status          uint8
	Response        uint8
	Sense           [SenseSize]byte
}

func (resp *CmdResp) MarshalBinary() ([]byte, error) {
	data := make([]byte, CmdRespSize)
	binary.LittleEndian.PutUint32(data[0:4], resp.SenseLen)
	binary.BigEndian.PutUint32(data[4:8], resp.Resid)
	binary.LittleEndian.PutUint16(data[8:10], resp.StatusQualifier)
	data[10] = resp.Status
	data[11] = resp.Response
	copy(data[12:], resp.Sense[:])
	return data, nil
}

func (resp *CmdResp) UnmarshalBinary(data []byte) error {
	if len(data) < CmdRespSize {
		return errors.Errorf("response header too short: %d bytes", len(data))
	}
	resp.SenseLen = binary.LittleEndian.Uint32(data[0:4])
	resp.Resid = binary.BigEndian.Uint32(data[4:8])
	resp.StatusQualifier = binary.LittleEndian.Uint16(data[8:10])
	resp.Status = data[10]
	resp.Response = data[11]
	copy(resp.Sense[:], data[12:CmdRespSize])
	return nil
}

func goodResponse() *CmdResp {
	return &CmdResp{
		Status:   api.SAM_STAT_GOOD,
		Response: api.VIRTIO_SCSI_S_OK,
	}
}

func badTargetResponse() *CmdResp {
	return &CmdResp{Response: api.VIRTIO_SCSI_S_BAD_TARGET}
}

// errorResponse maps a failed command to its response header. Partial I/O
// only reports the residual count, everything else is CHECK CONDITION with
// fixed format sense data.
func errorResponse(err error) *CmdResp {
	var e *scsi.ExecuteError
	if !errors.As(err, &e) {
		e = scsi.ReadError(err)
	}
	if e.IsIo() {
		resid := uint64(e.Resid)
		if resid > math.MaxUint32 {
			resid = math.MaxUint32
		}
		resp := goodResponse()
		resp.Resid = uint32(resid)
		return resp
	}
	sense, _ := e.Sense()
	data, length := scsi.BuildSenseData(sense, true)
	resp := &CmdResp{
		SenseLen: length,
		Status:   api.SAM_STAT_CHECK_CONDITION,
		Response: api.VIRTIO_SCSI_S_OK,
	}
	copy(resp.Sense[:], data)
	return resp
}

// isLUN0 reports whether a single level LUN addresses LUN 0 of bus 0,
// the only unit this device exposes.
func isLUN0(lun [8]byte) bool {
	if lun[0] != 1 {
		return false
	}
	return lun[1] == 0
}

// executeRequest decodes and runs the request of one chain and writes the
// response header into respWriter.
func executeRequest(ctx context.Context, r io.Reader, respWriter, dataWriter io.Writer, lu *scsi.LogicalUnit, bs api.BackingStore) error {
	hdr := make([]byte, CmdReqSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return scsi.ReadError(err)
	}
	var req CmdReq
	if err := req.UnmarshalBinary(hdr); err != nil {
		return scsi.ReadError(err)
	}

	var resp *CmdResp
	if isLUN0(req.Lun) {
		cmd, err := scsi.ParseCommand(req.Cdb[:])
		if err == nil {
			err = lu.Execute(ctx, cmd, r, dataWriter, bs)
		}
		if err != nil {
			logExecuteError(req, err)
			resp = errorResponse(err)
		} else {
			resp = goodResponse()
		}
	} else {
		log.Debugf("request tag %d for lun % x: bad target", req.Tag, req.Lun)
		resp = badTargetResponse()
	}
	data, _ := resp.MarshalBinary()
	if _, err := respWriter.Write(data); err != nil {
		return scsi.WriteError(err)
	}
	return nil
}

func logExecuteError(req CmdReq, err error) {
	var e *scsi.ExecuteError
	if errors.As(err, &e) && e.IsIo() {
		log.Warnf("partial io for request tag %d: %v", req.Tag, err)
		return
	}
	log.Errorf("error while executing a scsi request: %v", err)
}

// processRequest handles one chain and returns the number of bytes written
// to its device writable part.
func processRequest(ctx context.Context, chain *virtio.DescriptorChain, lu *scsi.LogicalUnit, bs api.BackingStore) uint32 {
	respWriter := chain.Writer
	dataWriter := respWriter.SplitAt(CmdRespSize)
	if err := executeRequest(ctx, chain.Reader, respWriter, dataWriter, lu, bs); err != nil {
		// The response header is the only way to report an error to the
		// driver, if it cannot be written the chain is returned as is.
		data, _ := errorResponse(err).MarshalBinary()
		if _, werr := respWriter.Write(data); werr != nil {
			log.Errorf("failed to write response: %v", werr)
		}
	}
	return uint32(respWriter.BytesWritten() + dataWriter.BytesWritten())
}
