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
package router

import (
	"net/http"

	"github.com/gostor/vscsi/pkg/apiserver/httputils"
)

// Router is a group of control API routes.
type Router interface {
	Routes() []Route
}

// Route binds a handler to a method and path. Name shows up in the request
// log instead of the raw URL.
type Route struct {
	Name    string
	Method  string
	Path    string
	Handler httputils.APIFunc
}

func Get(name, path string, handler httputils.APIFunc) Route {
	return Route{Name: name, Method: http.MethodGet, Path: path, Handler: handler}
}

func Post(name, path string, handler httputils.APIFunc) Route {
	return Route{Name: name, Method: http.MethodPost, Path: path, Handler: handler}
}

func Delete(name, path string, handler httputils.APIFunc) Route {
	return Route{Name: name, Method: http.MethodDelete, Path: path, Handler: handler}
}
