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

package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// serverResponse is a wrapper for http API responses.
type serverResponse struct {
	body       io.ReadCloser
	statusCode int
}

func (cli *Client) get(ctx context.Context, path string, query url.Values) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodGet, path, query, nil)
}

func (cli *Client) post(ctx context.Context, path string, query url.Values, obj interface{}) (serverResponse, error) {
	var body io.Reader
	if obj != nil {
		data, err := json.Marshal(obj)
		if err != nil {
			return serverResponse{}, err
		}
		body = bytes.NewReader(data)
	}
	return cli.sendRequest(ctx, http.MethodPost, path, query, body)
}

func (cli *Client) delete(ctx context.Context, path string, query url.Values) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodDelete, path, query, nil)
}

func (cli *Client) sendRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (serverResponse, error) {
	resp := serverResponse{statusCode: -1}

	req, err := http.NewRequest(method, cli.getAPIPath(path, query), body)
	if err != nil {
		return resp, err
	}
	for k, v := range cli.customHTTPHeaders {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.URL.Host = cli.addr
	req.URL.Scheme = "http"
	if cli.proto != "tcp" {
		// unix and vsock connections carry a dummy host
		req.Host = cli.proto
		req.URL.Host = cli.proto
	}

	cancel := func() {}
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
	}

	res, err := cli.client.Do(req.WithContext(ctx))
	if err != nil {
		defer cancel()
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		return resp, errors.Wrapf(err, "cannot connect to the vscsi daemon at %s://%s", cli.proto, cli.addr)
	}
	resp.statusCode = res.StatusCode

	if res.StatusCode < 200 || res.StatusCode >= 400 {
		defer cancel()
		body, err := ioutil.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return resp, err
		}
		if len(body) == 0 {
			return resp, fmt.Errorf("error: request returned %s for API route and version %s", http.StatusText(res.StatusCode), req.URL)
		}
		return resp, fmt.Errorf("error response from daemon: %s", strings.TrimSpace(string(body)))
	}
	resp.body = &cancelReadCloser{ReadCloser: res.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser releases the request context once the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func decodeJSON(resp serverResponse, v interface{}) error {
	defer ensureReaderClosed(resp)
	return json.NewDecoder(resp.body).Decode(v)
}

func ensureReaderClosed(response serverResponse) {
	if body := response.body; body != nil {
		// Drain up to 512 bytes and close the body to let the Transport reuse the connection
		io.CopyN(ioutil.Discard, body, 512)
		body.Close()
	}
}
