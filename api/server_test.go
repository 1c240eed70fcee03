/*
 * Copyright 2024 SRVX Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/stretchr/testify/assert"

	"github.com/srvx-project/srvx-sdk/database"
	"github.com/srvx-project/srvx-sdk/manifest"
	"github.com/srvx-project/srvx-sdk/report"
	"github.com/srvx-project/srvx-sdk/service"
)

func jsonBody(t *testing.T, v interface{}) io.Reader {
	b, err := json.Marshal(v)
	if err != nil {
		assert.FailNow(t, "fail to Marshal", err)
	}
	return bytes.NewReader(b)
}

func testServer(t *testing.T) (*httptest.Server, *Client, *report.Service) {
	l := log.GlobalLogger()
	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DBName: ":memory:",
	}, l)
	if err != nil {
		assert.FailNow(t, "fail to Open", err)
	}
	reports, err := report.NewService(db, l)
	if err != nil {
		assert.FailNow(t, "fail to NewService", err)
	}
	rd, err := reports.Definition()
	if err != nil {
		assert.FailNow(t, "fail to Definition", err)
	}
	md, err := service.DefineService(map[string]interface{}{
		"add": func(ctx *service.CallContext, params service.Params) (service.Result, error) {
			a, _ := params["a"].(float64)
			b, _ := params["b"].(float64)
			return service.Result{"sum": a + b}, nil
		},
	})
	if err != nil {
		assert.FailNow(t, "fail to DefineService", err)
	}
	m, err := manifest.New([]byte(`{
		"src/main.ts": {
			"file": "assets/main.1a2b3c.js",
			"isEntry": true,
			"css": ["assets/main.4d5e6f.css"]
		}
	}`), l)
	if err != nil {
		assert.FailNow(t, "fail to New", err)
	}
	ad, err := m.Definition()
	if err != nil {
		assert.FailNow(t, "fail to Definition", err)
	}
	r := service.DefineServiceRegistry(map[string]service.Definition{
		report.ServiceName:   rd,
		manifest.ServiceName: ad,
		"math":               md,
	})
	s := NewServer("", r, reports, log.TraceLevel, l)
	s.RegisterAPIHandler(s.e.Group(GroupUrlApi))
	s.RegisterMonitorHandler(s.e.Group(GroupUrlMonitor))
	ts := httptest.NewServer(s.e)
	t.Cleanup(ts.Close)
	return ts, NewClient(ts.URL, log.TraceLevel, l), reports
}

func TestServer_Invoke(t *testing.T) {
	_, c, _ := testServer(t)
	ret, err := c.Invoke("math", "add", service.Params{"a": 1, "b": 2}, "t-1")
	if err != nil {
		assert.FailNow(t, "fail to Invoke", err)
	}
	assert.Equal(t, float64(3), ret["sum"])

	_, err = c.Invoke("math", "sub", nil, "")
	assert.Error(t, err)
	er, ok := err.(*ErrorResponse)
	if !ok {
		assert.FailNow(t, "expect ErrorResponse", err)
	}
	assert.True(t, service.ErrorCodeNotFound.Equals(er))

	_, err = c.Invoke("unknown", "add", nil, "")
	assert.Error(t, err)
	assert.Equal(t, service.ErrorCodeNotFound, errors.CodeOf(err))
}

func TestServer_InvokeDescriptorGuard(t *testing.T) {
	ts, c, _ := testServer(t)
	resp, err := c.Client.Post(ts.URL+GroupUrlApi+UrlInvoke, "application/json",
		jsonBody(t, map[string]interface{}{"serviceName": "math"}))
	if err != nil {
		assert.FailNow(t, "fail to Post", err)
	}
	assert.Equal(t, 400, resp.StatusCode)
	er := &ErrorResponse{}
	if err = UnmarshalBody(resp.Body, er); err != nil {
		assert.FailNow(t, "fail to UnmarshalBody", err)
	}
	assert.Contains(t, er.Message, "descriptor")
}

func TestServer_Services(t *testing.T) {
	_, c, _ := testServer(t)
	m, err := c.Services()
	if err != nil {
		assert.FailNow(t, "fail to Services", err)
	}
	assert.Equal(t, []string{"add"}, m["math"])
	assert.Contains(t, m, report.ServiceName)
}

func TestServer_Reports(t *testing.T) {
	_, c, _ := testServer(t)
	err := c.Report(map[string]interface{}{
		"document-uri":       "https://example.com/",
		"violated-directive": "script-src",
		"blocked-uri":        "https://evil.example/x.js",
	})
	if err != nil {
		assert.FailNow(t, "fail to Report", err)
	}
	ret, err := c.Reports(0, 10, "id desc")
	if err != nil {
		assert.FailNow(t, "fail to Reports", err)
	}
	assert.Equal(t, float64(1), ret["total_elements"])

	err = c.Report(map[string]interface{}{"blocked-uri": "https://evil.example/x.js"})
	assert.Error(t, err)
}

func TestServer_Assets(t *testing.T) {
	_, c, _ := testServer(t)
	ret, err := c.Assets("src/main.ts")
	if err != nil {
		assert.FailNow(t, "fail to Assets", err)
	}
	assert.Equal(t, "assets/main.1a2b3c.js", ret["script"])

	_, err = c.Assets("src/nope.ts")
	assert.Error(t, err)
	assert.Equal(t, service.ErrorCodeNotFound, errors.CodeOf(err))
}

func TestServer_MonitorReports(t *testing.T) {
	_, c, _ := testServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch := make(chan *report.Violation, 1)
	go func() {
		_ = c.MonitorReports(ctx, &MonitorRequest{Directive: "script-src"}, func(v *report.Violation) error {
			ch <- v
			return nil
		})
	}()
	time.Sleep(200 * time.Millisecond)
	err := c.Report(map[string]interface{}{
		"document-uri":       "https://example.com/",
		"violated-directive": "img-src",
	})
	if err != nil {
		assert.FailNow(t, "fail to Report", err)
	}
	err = c.Report(map[string]interface{}{
		"document-uri":       "https://example.com/",
		"violated-directive": "script-src",
	})
	if err != nil {
		assert.FailNow(t, "fail to Report", err)
	}
	select {
	case v := <-ch:
		assert.Equal(t, "script-src", v.ViolatedDirective)
	case <-ctx.Done():
		assert.FailNow(t, "fail to receive violation", ctx.Err())
	}
}
