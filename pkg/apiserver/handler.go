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

package apiserver

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/gostor/vscsi/pkg/apiserver/httputils"
)

var errNoDevice = errors.New("no device attached: not running")

// deviceHandler serves the routes of the attached device. The routes can be
// replaced while serving, requests before the first attach get 503.
type deviceHandler struct {
	routes atomic.Value
}

func (h *deviceHandler) attach(m *mux.Router) {
	h.routes.Store(m)
}

func (h *deviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, _ := h.routes.Load().(*mux.Router)
	if m == nil {
		httputils.WriteError(w, errNoDevice)
		return
	}
	m.ServeHTTP(w, r)
}
