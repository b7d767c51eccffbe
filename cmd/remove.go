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
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api/client"
)

func newRemoveCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "rm",
		Short: "Remove a device object",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.AddCommand(
		newRemoveDeviceCmd(cli),
	)
	return cmd
}

func newRemoveDeviceCmd(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "device",
		Short: "Stop the device worker and release the backing store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return removeDevice(cli)
		},
	}
	return cmd
}

func removeDevice(cli *client.Client) error {
	if err := cli.Reset(context.Background()); err != nil {
		return err
	}
	fmt.Println("Device successfully stopped")
	return nil
}
