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

// Package client talks to the control API of a vscsi daemon.
package client

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker/go-connections/sockets"
	"github.com/mdlayher/vsock"
	"golang.org/x/net/context"
)

type Client struct {
	// proto holds the client protocol i.e. unix.
	proto string
	// addr holds the client address.
	addr string
	// basePath holds the path to prepend to the requests.
	basePath string
	// client sends the requests.
	client *http.Client
	// version of the server to talk to.
	version string
	// custom http headers configured by users.
	customHTTPHeaders map[string]string
}

// NewClient initializes a new API client for the given host and API version.
// It uses the given http client as transport, or builds one for the host
// protocol when client is nil.
// It also initializes the custom http headers to add to each request.
//
// It won't send any version information if the version number is empty. It is
// highly recommended that you set a version or your client may break if the
// server is upgraded.
func NewClient(host string, version string, client *http.Client, httpHeaders map[string]string) (*Client, error) {
	proto, addr, basePath, err := ParseHost(host)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client, err = NewHTTPClient(proto, addr)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		proto:             proto,
		addr:              addr,
		basePath:          basePath,
		client:            client,
		version:           version,
		customHTTPHeaders: httpHeaders,
	}, nil
}

// NewHTTPClient returns an http client dialing proto and addr.
func NewHTTPClient(proto, addr string) (*http.Client, error) {
	tr := &http.Transport{
		TLSClientConfig: nil,
	}
	switch proto {
	case "vsock":
		cid, port, err := parseVsockAddr(addr)
		if err != nil {
			return nil, err
		}
		tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return vsock.Dial(cid, port, nil)
		}
	default:
		if err := sockets.ConfigureTransport(tr, proto, addr); err != nil {
			return nil, err
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// parseVsockAddr parses "CID:PORT", the host context is used when only a
// port is given.
func parseVsockAddr(addr string) (uint32, uint32, error) {
	cid := uint32(vsock.Host)
	portStr := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		var n uint32
		if _, err := fmt.Sscanf(addr[:i], "%d", &n); err != nil {
			return 0, 0, fmt.Errorf("bad vsock context id in %q", addr)
		}
		cid = n
		portStr = addr[i+1:]
	}
	var port uint32
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return 0, 0, fmt.Errorf("bad vsock port in %q", addr)
	}
	return cid, port, nil
}

// getAPIPath returns the versioned request path to call the api.
// It appends the query parameters to the path if they are not empty.
func (cli *Client) getAPIPath(p string, query url.Values) string {
	var apiPath string
	if cli.version != "" {
		v := strings.TrimPrefix(cli.version, "v")
		apiPath = fmt.Sprintf("%s/v%s%s", cli.basePath, v, p)
	} else {
		apiPath = fmt.Sprintf("%s%s", cli.basePath, p)
	}

	u := &url.URL{
		Path: apiPath,
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// ClientVersion returns the version string associated with this
// instance of the Client.
func (cli *Client) ClientVersion() string {
	return cli.version
}

// UpdateClientVersion updates the version string associated with this
// instance of the Client.
func (cli *Client) UpdateClientVersion(v string) {
	cli.version = v
}

// ParseHost verifies that the given host strings is valid.
func ParseHost(host string) (string, string, string, error) {
	protoAddrParts := strings.SplitN(host, "://", 2)
	if len(protoAddrParts) == 1 {
		return "", "", "", fmt.Errorf("unable to parse vscsi host `%s`", host)
	}

	var basePath string
	proto, addr := protoAddrParts[0], protoAddrParts[1]
	if proto == "tcp" {
		parsed, err := url.Parse("tcp://" + addr)
		if err != nil {
			return "", "", "", err
		}
		addr = parsed.Host
		basePath = parsed.Path
	}
	return proto, addr, basePath, nil
}

// DefaultTimeout is used for requests without a deadline.
const DefaultTimeout = 60 * time.Second
