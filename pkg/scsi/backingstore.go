/*
Copyright 2017 The GoStor Authors All rights reserved.

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

package scsi

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gostor/vscsi/pkg/api"
)

type BaseBackingStore struct {
	Name            string
	DataSize        uint64
	OflagsSupported int
}

type BackingStoreFunc func() (api.BackingStore, error)

var (
	bsPluginsMutex      sync.RWMutex
	registeredBSPlugins = map[string](BackingStoreFunc){}
)

func RegisterBackingStore(name string, f BackingStoreFunc) {
	bsPluginsMutex.Lock()
	defer bsPluginsMutex.Unlock()
	registeredBSPlugins[name] = f
}

func NewBackingStore(name string) (api.BackingStore, error) {
	if name == "" {
		return nil, fmt.Errorf("backing store type is empty")
	}
	bsPluginsMutex.RLock()
	f, ok := registeredBSPlugins[name]
	bsPluginsMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("Backend storage %s is not found.", name)
	}
	return f()
}

// OpenBackingStore creates a store of the named plugin, passes it opts and
// opens path.
func OpenBackingStore(name, path, opts string) (api.BackingStore, error) {
	bs, err := NewBackingStore(name)
	if err != nil {
		return nil, err
	}
	if err := bs.Init(opts); err != nil {
		return nil, fmt.Errorf("failed to init %s backing store: %v", name, err)
	}
	if err := bs.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open %s backing store %s: %v", name, path, err)
	}
	return bs, nil
}

// BackingStores lists the registered plugin names.
func BackingStores() []string {
	bsPluginsMutex.RLock()
	defer bsPluginsMutex.RUnlock()
	names := make([]string, 0, len(registeredBSPlugins))
	for name := range registeredBSPlugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// The remote backing store plugin looks its peer up by path.
var (
	remoteMutex  sync.RWMutex
	remoteStores = map[string]api.RemoteBackingStore{}
)

func AddRemoteBackingStore(path string, rbs api.RemoteBackingStore) {
	remoteMutex.Lock()
	defer remoteMutex.Unlock()
	remoteStores[path] = rbs
}

func RemoveRemoteBackingStore(path string) {
	remoteMutex.Lock()
	defer remoteMutex.Unlock()
	delete(remoteStores, path)
}

func GetRemoteBackingStore(path string) (api.RemoteBackingStore, error) {
	remoteMutex.RLock()
	defer remoteMutex.RUnlock()
	rbs, ok := remoteStores[path]
	if !ok {
		return nil, fmt.Errorf("remote backing store %s is not registered", path)
	}
	return rbs, nil
}
