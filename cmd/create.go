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

type reconfigureOptions struct {
	blockSize uint32
	readOnly  bool
}

func newCreateCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "create",
		Short: "Change a device object",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.AddCommand(
		newCreateLuCmd(cli),
	)
	return cmd
}

func newCreateLuCmd(cli *client.Client) *cobra.Command {
	opts := reconfigureOptions{}
	var cmd = &cobra.Command{
		Use:   "lu",
		Short: "Replace the logical unit with a new block size and write protection",
		Long:  `The logical unit is rebuilt from the current size of the backing store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return createLu(cli, opts)
		},
	}
	flags := cmd.Flags()
	flags.Uint32Var(&opts.blockSize, "block-size", 512, "Logical block size in bytes")
	flags.BoolVar(&opts.readOnly, "read-only", false, "Reject writes with DATA PROTECT")
	return cmd
}

func createLu(cli *client.Client, opts reconfigureOptions) error {
	lu, err := cli.Reconfigure(context.Background(), opts.blockSize, opts.readOnly)
	if err != nil {
		return err
	}
	fmt.Printf("Logical unit %s reconfigured: %d blocks of %d bytes\n", lu.Serial, lu.MaxLBA, lu.BlockSize)
	return nil
}
