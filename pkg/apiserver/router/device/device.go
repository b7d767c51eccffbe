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
package device

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/gostor/vscsi/pkg/api"
	"github.com/gostor/vscsi/pkg/apiserver/httputils"
	"github.com/gostor/vscsi/pkg/apiserver/router"
	"github.com/gostor/vscsi/pkg/version"
)

// DefaultCommandTimeout bounds a command submitted without a timeout.
const DefaultCommandTimeout = 30 * time.Second

// Backend is the device the router talks to.
type Backend interface {
	ConfigSpace() api.ConfigSpace
	LogicalUnit() api.LogicalUnitInfo
	Submit(ctx context.Context, req api.CommandRequest) (*api.CommandResponse, error)
	Reconfigure(blockSize uint32, readOnly bool) error
	Reset() bool
}

// deviceRouter is a router to talk with the virtio-scsi device
type deviceRouter struct {
	backend Backend
	routes  []router.Route
}

// NewRouter initializes a new device router
func NewRouter(b Backend) router.Router {
	r := &deviceRouter{backend: b}
	r.initRoutes()
	return r
}

// Routes returns the available routes to the device
func (r *deviceRouter) Routes() []router.Route {
	return r.routes
}

// initRoutes initializes the routes in device router
func (r *deviceRouter) initRoutes() {
	r.routes = []router.Route{
		router.Get("version", "/version", r.getVersion),
		router.Get("config", "/device/config", r.getConfig),
		router.Get("lu", "/device/lu", r.getLogicalUnit),
		router.Post("command", "/device/command", r.postCommand),
		router.Post("reconfigure", "/device/reconfigure", r.postReconfigure),
		router.Delete("reset", "/device", r.deleteDevice),
	}
}

func (r *deviceRouter) getVersion(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, api.VersionInfo{
		Version:    version.VERSION,
		APIVersion: httputils.VersionFromContext(ctx),
	})
}

func (r *deviceRouter) getConfig(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, r.backend.ConfigSpace())
}

func (r *deviceRouter) getLogicalUnit(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	return httputils.WriteJSON(w, http.StatusOK, r.backend.LogicalUnit())
}

func (r *deviceRouter) postCommand(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return err
	}
	timeout, err := httputils.Int64ValueOrDefault(req, "timeout", int64(DefaultCommandTimeout/time.Second))
	if err != nil || timeout <= 0 {
		return fmt.Errorf("bad parameter: timeout %q", req.Form.Get("timeout"))
	}
	var cmd api.CommandRequest
	if err := httputils.ReadJSON(req, &cmd); err != nil {
		return err
	}
	if len(cmd.CDB) == 0 {
		return fmt.Errorf("bad parameter: cdb cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()
	resp, err := r.backend.Submit(ctx, cmd)
	if err != nil {
		return err
	}
	log.Debugf("command 0x%02x: response %d status 0x%02x", cmd.CDB[0], resp.Response, resp.Status)
	return httputils.WriteJSON(w, http.StatusOK, resp)
}

func (r *deviceRouter) postReconfigure(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	if err := httputils.ParseForm(req); err != nil {
		return err
	}
	lu := r.backend.LogicalUnit()
	blockSize, err := httputils.Int64ValueOrDefault(req, "blocksize", int64(lu.BlockSize))
	if err != nil || blockSize <= 0 || blockSize > 1<<31 {
		return fmt.Errorf("bad parameter: blocksize %q", req.Form.Get("blocksize"))
	}
	readOnly := httputils.BoolValueOrDefault(req, "readonly", lu.ReadOnly)
	if err := r.backend.Reconfigure(uint32(blockSize), readOnly); err != nil {
		return fmt.Errorf("bad parameter: %v", err)
	}
	return httputils.WriteJSON(w, http.StatusOK, r.backend.LogicalUnit())
}

func (r *deviceRouter) deleteDevice(ctx context.Context, w http.ResponseWriter, req *http.Request, vars map[string]string) error {
	running := r.backend.Reset()
	w.WriteHeader(http.StatusNoContent)
	log.Infof("device reset, worker was running: %v", running)
	return nil
}
