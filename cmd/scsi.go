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
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/api/client"
	"github.com/gostor/vscsi/pkg/scsi"
	"github.com/gostor/vscsi/pkg/virtio/vscsi"
)

type ioOptions struct {
	lba     uint32
	blocks  uint16
	file    string
	fua     bool
	timeout int
}

func newInquiryCommand(cli *client.Client) *cobra.Command {
	var page int
	var cmd = &cobra.Command{
		Use:   "inquiry",
		Short: "Send INQUIRY to the logical unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return inquiry(cli, page)
		},
	}
	cmd.Flags().IntVar(&page, "page", -1, "Vital product data page, the standard data when negative")
	return cmd
}

func newCapacityCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "capacity",
		Short: "Send READ CAPACITY(10) to the logical unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return capacity(cli)
		},
	}
	return cmd
}

func newReadCommand(cli *client.Client) *cobra.Command {
	opts := ioOptions{}
	var cmd = &cobra.Command{
		Use:   "read",
		Short: "Read blocks with READ(10)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return readBlocks(cli, opts)
		},
	}
	flags := cmd.Flags()
	flags.Uint32Var(&opts.lba, "lba", 0, "First logical block")
	flags.Uint16Var(&opts.blocks, "blocks", 1, "Number of blocks")
	flags.StringVarP(&opts.file, "output", "o", "", "Write the data to a file instead of stdout")
	flags.IntVar(&opts.timeout, "timeout", 0, "Command timeout in seconds")
	return cmd
}

func newWriteCommand(cli *client.Client) *cobra.Command {
	opts := ioOptions{}
	var cmd = &cobra.Command{
		Use:   "write",
		Short: "Write blocks with WRITE(10)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return writeBlocks(cli, opts)
		},
	}
	flags := cmd.Flags()
	flags.Uint32Var(&opts.lba, "lba", 0, "First logical block")
	flags.StringVarP(&opts.file, "input", "i", "", "File with the data, a multiple of the block size")
	flags.BoolVar(&opts.fua, "fua", false, "Force unit access, sync the backing store")
	flags.IntVar(&opts.timeout, "timeout", 0, "Command timeout in seconds")
	cmd.MarkFlagRequired("input")
	return cmd
}

// submit runs a command on LUN 0 and turns failed completions into errors.
func submit(cli *client.Client, req api.CommandRequest, timeout int) (*api.CommandResponse, error) {
	req.Lun = vscsi.LUN0
	resp, err := cli.Command(context.Background(), req, timeout)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	if resp.Resid > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d bytes were not transferred\n", resp.Resid)
	}
	return resp, nil
}

func checkResponse(resp *api.CommandResponse) error {
	if resp.Response != api.VIRTIO_SCSI_S_OK {
		return fmt.Errorf("virtio-scsi response %d", resp.Response)
	}
	if resp.Status == api.SAM_STAT_CHECK_CONDITION {
		sense, err := scsi.DecodeSense(resp.Sense)
		if err != nil {
			return fmt.Errorf("check condition: %v", err)
		}
		return fmt.Errorf("check condition: %v", sense)
	}
	if resp.Status != api.SAM_STAT_GOOD {
		return fmt.Errorf("scsi status %s", describeStatus(resp.Status))
	}
	return nil
}

// describeStatus names a SAM status.
func describeStatus(status byte) string {
	switch status {
	case api.SAM_STAT_GOOD:
		return "GOOD"
	case api.SAM_STAT_CHECK_CONDITION:
		return "CHECK CONDITION"
	}
	return fmt.Sprintf("0x%02x", status)
}

func inquiry(cli *client.Client, page int) error {
	cdb := []byte{byte(api.INQUIRY), 0, 0, 0, 0xff, 0}
	if page >= 0 {
		if page > 0xff {
			return fmt.Errorf("page code %d out of range", page)
		}
		cdb[1] = 0x01
		cdb[2] = byte(page)
	}
	resp, err := submit(cli, api.CommandRequest{CDB: cdb, DataInLength: 0xff}, 0)
	if err != nil {
		return err
	}
	data := resp.Data
	if page < 0 {
		if len(data) < 36 {
			return fmt.Errorf("short inquiry data: %d bytes", len(data))
		}
		fmt.Printf("Vendor:   %s\n", strings.TrimSpace(string(data[8:16])))
		fmt.Printf("Product:  %s\n", strings.TrimSpace(string(data[16:32])))
		fmt.Printf("Revision: %s\n", strings.TrimSpace(string(data[32:36])))
		return nil
	}
	if len(data) < 4 {
		return fmt.Errorf("short vpd page: %d bytes", len(data))
	}
	payload := data[4:]
	if page == 0x80 {
		fmt.Printf("Serial: %s\n", string(payload))
		return nil
	}
	fmt.Printf("% x\n", payload)
	return nil
}

func capacity(cli *client.Client) error {
	resp, err := submit(cli, api.CommandRequest{
		CDB:          []byte{byte(api.READ_CAPACITY), 0, 0, 0, 0, 0, 0, 0, 0, 0},
		DataInLength: 8,
	}, 0)
	if err != nil {
		return err
	}
	if len(resp.Data) < 8 {
		return fmt.Errorf("short capacity data: %d bytes", len(resp.Data))
	}
	last := binary.BigEndian.Uint32(resp.Data[0:4])
	blockSize := binary.BigEndian.Uint32(resp.Data[4:8])
	fmt.Printf("Last LBA: %d\nBlock size: %d\n", last, blockSize)
	return nil
}

func rwCDB(opcode api.SCSICommandType, lba uint32, blocks uint16, fua bool) []byte {
	cdb := make([]byte, 10)
	cdb[0] = byte(opcode)
	if fua {
		cdb[1] = 0x08
	}
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], blocks)
	return cdb
}

func readBlocks(cli *client.Client, opts ioOptions) error {
	lu, err := cli.LogicalUnit(context.Background())
	if err != nil {
		return err
	}
	resp, err := submit(cli, api.CommandRequest{
		CDB:          rwCDB(api.READ_10, opts.lba, opts.blocks, false),
		DataInLength: uint32(opts.blocks) * lu.BlockSize,
	}, opts.timeout)
	if err != nil {
		return err
	}
	if opts.file == "" {
		_, err = os.Stdout.Write(resp.Data)
		return err
	}
	return ioutil.WriteFile(opts.file, resp.Data, 0644)
}

func writeBlocks(cli *client.Client, opts ioOptions) error {
	lu, err := cli.LogicalUnit(context.Background())
	if err != nil {
		return err
	}
	data, err := ioutil.ReadFile(opts.file)
	if err != nil {
		return err
	}
	if len(data) == 0 || len(data)%int(lu.BlockSize) != 0 {
		return fmt.Errorf("%s is %d bytes, not a multiple of the %d byte block size", opts.file, len(data), lu.BlockSize)
	}
	blocks := len(data) / int(lu.BlockSize)
	if blocks > 0xffff {
		return fmt.Errorf("%d blocks do not fit in one WRITE(10)", blocks)
	}
	if _, err := submit(cli, api.CommandRequest{
		CDB:  rwCDB(api.WRITE_10, opts.lba, uint16(blocks), opts.fua),
		Data: data,
	}, opts.timeout); err != nil {
		return err
	}
	fmt.Printf("%d blocks written at lba %d\n", blocks, opts.lba)
	return nil
}
