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

package client

import (
	"net/url"
	"strconv"

	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
)

// Version returns the daemon and API versions.
func (cli *Client) Version(ctx context.Context) (api.VersionInfo, error) {
	var v api.VersionInfo
	resp, err := cli.get(ctx, "/version", nil)
	if err != nil {
		return v, err
	}
	err = decodeJSON(resp, &v)
	return v, err
}

// ConfigSpace returns the guest visible virtio-scsi configuration.
func (cli *Client) ConfigSpace(ctx context.Context) (api.ConfigSpace, error) {
	var cs api.ConfigSpace
	resp, err := cli.get(ctx, "/device/config", nil)
	if err != nil {
		return cs, err
	}
	err = decodeJSON(resp, &cs)
	return cs, err
}

// LogicalUnit returns the state of the logical unit.
func (cli *Client) LogicalUnit(ctx context.Context) (api.LogicalUnitInfo, error) {
	var lu api.LogicalUnitInfo
	resp, err := cli.get(ctx, "/device/lu", nil)
	if err != nil {
		return lu, err
	}
	err = decodeJSON(resp, &lu)
	return lu, err
}

// Command runs a SCSI command on the device. timeout is in seconds, zero
// leaves the server default.
func (cli *Client) Command(ctx context.Context, req api.CommandRequest, timeout int) (*api.CommandResponse, error) {
	query := url.Values{}
	if timeout > 0 {
		query.Set("timeout", strconv.Itoa(timeout))
	}
	resp, err := cli.post(ctx, "/device/command", query, req)
	if err != nil {
		return nil, err
	}
	out := &api.CommandResponse{}
	if err := decodeJSON(resp, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reconfigure changes the block size and write protection of the unit.
func (cli *Client) Reconfigure(ctx context.Context, blockSize uint32, readOnly bool) (api.LogicalUnitInfo, error) {
	var lu api.LogicalUnitInfo
	query := url.Values{}
	query.Set("blocksize", strconv.FormatUint(uint64(blockSize), 10))
	query.Set("readonly", strconv.FormatBool(readOnly))
	resp, err := cli.post(ctx, "/device/reconfigure", query, nil)
	if err != nil {
		return lu, err
	}
	err = decodeJSON(resp, &lu)
	return lu, err
}

// Reset stops the device worker.
func (cli *Client) Reset(ctx context.Context) error {
	resp, err := cli.delete(ctx, "/device", nil)
	ensureReaderClosed(resp)
	return err
}
