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
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api/client"
)

func newListCommand(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "list",
		Short: "List device state",
		Long:  `Show the virtio-scsi config space or the logical unit of the daemon`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.UsageString())
		},
	}
	cmd.AddCommand(
		newListConfigCmd(cli),
		newListLuCmd(cli),
	)
	return cmd
}

func newListConfigCmd(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "config",
		Short: "Show the guest visible config space",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return listConfig(cli)
		},
	}
	return cmd
}

func newListLuCmd(cli *client.Client) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "lu",
		Short: "Show the logical unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return listLu(cli)
		},
	}
	return cmd
}

func listConfig(cli *client.Client) error {
	cs, err := cli.ConfigSpace(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
	fmt.Fprintln(w, "FIELD\tVALUE")
	fmt.Fprintf(w, "num_queues\t%d\n", cs.NumQueues)
	fmt.Fprintf(w, "seg_max\t%d\n", cs.SegMax)
	fmt.Fprintf(w, "max_sectors\t%d\n", cs.MaxSectors)
	fmt.Fprintf(w, "cmd_per_lun\t%d\n", cs.CmdPerLun)
	fmt.Fprintf(w, "event_info_size\t%d\n", cs.EventInfoSize)
	fmt.Fprintf(w, "sense_size\t%d\n", cs.SenseSize)
	fmt.Fprintf(w, "cdb_size\t%d\n", cs.CdbSize)
	fmt.Fprintf(w, "max_channel\t%d\n", cs.MaxChannel)
	fmt.Fprintf(w, "max_target\t%d\n", cs.MaxTarget)
	fmt.Fprintf(w, "max_lun\t%d\n", cs.MaxLun)
	w.Flush()
	return nil
}

func listLu(cli *client.Client) error {
	lu, err := cli.LogicalUnit(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 20, 1, 3, ' ', 0)
	fmt.Fprintln(w, "SERIAL\tSTORAGE\tPATH\tBLOCKS\tBLOCK SIZE\tMODE\tSTATE")
	mode := "rw"
	if lu.ReadOnly {
		mode = "ro"
	}
	state := "stopped"
	if lu.Active {
		state = "active"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", lu.Serial, lu.Storage, lu.Path, lu.MaxLBA, lu.BlockSize, mode, state)
	w.Flush()
	return nil
}
