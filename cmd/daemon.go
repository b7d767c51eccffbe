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
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gostor/vscsi/pkg/apiserver"
	"github.com/gostor/vscsi/pkg/config"
	"github.com/gostor/vscsi/pkg/scsi"
	_ "github.com/gostor/vscsi/pkg/scsi/backingstore"
	_ "github.com/gostor/vscsi/pkg/scsi/backingstore/remote"
	"github.com/gostor/vscsi/pkg/version"
	"github.com/gostor/vscsi/pkg/virtio/vscsi"
)

type daemonOptions struct {
	hosts      []string
	configFile string
	logLevel   string
	storage    string
	path       string
	readOnly   bool
}

func newDaemonCommand() *cobra.Command {
	opts := daemonOptions{}
	var cmd = &cobra.Command{
		Use:   "daemon",
		Short: "Setup a daemon",
		Long:  `Run the virtio-scsi device and serve its control API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := NoArgs(cmd, args); err != nil {
				return err
			}
			return createDaemon(cmd, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.logLevel, "log", "info", "Log level of the virtio-scsi daemon")
	flags.StringSliceVarP(&opts.hosts, "host", "H", nil, "Control API address, PROTO://ADDR with tcp, unix, fd or vsock")
	flags.StringVar(&opts.configFile, "config", "", "Config file, "+config.ConfigFileName+" in the config dir by default")
	flags.StringVar(&opts.storage, "storage", "", "Backing store type, overrides the config")
	flags.StringVar(&opts.path, "path", "", "Backing store path, overrides the config")
	flags.BoolVar(&opts.readOnly, "read-only", false, "Export the logical unit write protected")
	return cmd
}

func setLogLevel(level string) error {
	switch level {
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "panic", "fatal", "error":
		log.SetLevel(log.ErrorLevel)
	default:
		return fmt.Errorf("unknown log level: %v", level)
	}
	return nil
}

func loadConfig(cmd *cobra.Command, opts daemonOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFile(opts.configFile)
	} else {
		cfg, err = config.Load(config.ConfigDir())
	}
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage = opts.storage
	}
	if flags.Changed("path") {
		cfg.Path = opts.path
	}
	if flags.Changed("read-only") {
		cfg.ReadOnly = opts.readOnly
	}
	if flags.Changed("host") {
		cfg.Hosts = opts.hosts
	}
	return cfg, cfg.Validate()
}

// newDevice opens the configured backing store and builds the device on it.
func newDevice(cfg *config.Config) (*vscsi.Device, error) {
	bsOpts := cfg.BSOpts
	if bsOpts == "" && cfg.ReadOnly && cfg.Storage == "file" {
		bsOpts = "ro"
	}
	bs, err := scsi.OpenBackingStore(cfg.Storage, cfg.Path, bsOpts)
	if err != nil {
		return nil, err
	}
	dev, err := vscsi.NewDevice(bs, vscsi.Options{
		Features:  cfg.Features,
		QueueSize: cfg.QueueSize,
		BlockSize: cfg.BlockSize,
		ReadOnly:  cfg.ReadOnly,
		Serial:    cfg.SerialUUID(),
		Storage:   cfg.Storage,
		Path:      cfg.Path,
	})
	if err != nil {
		bs.Close()
		return nil, err
	}
	return dev, nil
}

func createDaemon(cmd *cobra.Command, opts daemonOptions) error {
	if err := setLogLevel(opts.logLevel); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		log.Error(err)
		return err
	}

	dev, err := newDevice(cfg)
	if err != nil {
		log.Error(err)
		return err
	}
	loopback, err := vscsi.NewLoopback(dev)
	if err != nil {
		log.Error(err)
		return err
	}
	defer loopback.Close()
	lu := loopback.LogicalUnit()
	log.WithFields(log.Fields{
		"storage":    cfg.Storage,
		"path":       cfg.Path,
		"blocks":     lu.MaxLBA,
		"block_size": lu.BlockSize,
		"read_only":  lu.ReadOnly,
		"serial":     lu.Serial,
	}).Info("logical unit ready")

	serverConfig := &apiserver.Config{
		Logging: true,
		Version: version.Version,
		Addrs:   []apiserver.Addr{},
	}
	for _, protoAddr := range cfg.Hosts {
		addr, err := apiserver.ParseAddr(protoAddr)
		if err != nil {
			log.Error(err)
			return err
		}
		serverConfig.Addrs = append(serverConfig.Addrs, addr)
	}

	s, err := apiserver.New(serverConfig)
	if err != nil {
		log.Error(err)
		return err
	}
	s.InitRouters(loopback)
	// The serve API routine never exits unless an error occurs
	// We need to start it as a goroutine and wait on it so
	// daemon doesn't exit
	serveAPIWait := make(chan error)
	go s.Wait(serveAPIWait)

	stopAll := make(chan os.Signal, 1)
	signal.Notify(stopAll, syscall.SIGINT, syscall.SIGTERM)

	// Daemon is fully initialized and handling API traffic
	// Wait for serve API job to complete
	select {
	case errAPI := <-serveAPIWait:
		// If we have an error here it is unique to API (as daemonErr would have
		// exited the daemon process above)
		if errAPI != nil {
			log.Warnf("Shutting down due to ServeAPI error: %v", errAPI)
		}
	case <-dev.Done():
		log.Warn("Shutting down, the device worker exited")
	case <-stopAll:
		break
	}
	s.Close()
	return nil
}
