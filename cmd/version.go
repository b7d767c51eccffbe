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
	"github.com/gostor/vscsi/pkg/version"
)

func newVersionCommand(cli *client.Client) *cobra.Command {
	var remote bool
	var cmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of vscsi",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("vscsi %s -- HEAD\n", version.VERSION)
			if !remote {
				return nil
			}
			v, err := cli.Version(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("daemon %s, API %s\n", v.Version, v.APIVersion)
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "daemon", false, "Also query the daemon version")
	return cmd
}
