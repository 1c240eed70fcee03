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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/srvx-project/srvx-sdk/report"
	"github.com/srvx-project/srvx-sdk/service"
)

const (
	DefaultDumpLogLevel = log.TraceLevel
	DumpLogLevelLimit   = log.InfoLevel
)

type HttpTransport struct {
	*http.Transport
	lv log.Level
	l  log.Logger
}

func (t *HttpTransport) log(rc io.ReadCloser) (io.ReadCloser, error) {
	if rc == nil {
		return nil, nil
	}
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to io.ReadAll err:%s", err.Error())
	}
	t.l.Logln(t.lv, string(b))
	return io.NopCloser(bytes.NewBuffer(b)), nil
}

func (t *HttpTransport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	if req.Body, err = t.log(req.Body); err != nil {
		return nil, err
	}
	if resp, err = t.Transport.RoundTrip(req); err != nil {
		return nil, errors.Wrapf(err, "fail to RoundTrip err:%s", err.Error())
	}
	if resp.Body, err = t.log(resp.Body); err != nil {
		return nil, err
	}
	return resp, err
}

func NewHttpTransport(lv log.Level, l log.Logger) *HttpTransport {
	return &HttpTransport{
		Transport: &http.Transport{},
		lv:        EnsureDumpLogLevel(lv),
		l:         l,
	}
}

func NewHttpClient(lv log.Level, l log.Logger) *http.Client {
	return &http.Client{
		Transport: NewHttpTransport(lv, l),
	}
}

func EnsureDumpLogLevel(lv log.Level) log.Level {
	if lv < DumpLogLevelLimit {
		return DefaultDumpLogLevel
	}
	return lv
}

type Client struct {
	*http.Client
	baseUrl        string
	baseApiUrl     string
	baseMonitorUrl string
	lv             log.Level
	l              log.Logger
}

func NewClient(url string, dumpLogLevel log.Level, l log.Logger) *Client {
	l = Logger(l)
	return &Client{
		Client:         NewHttpClient(dumpLogLevel, l),
		baseUrl:        url,
		baseApiUrl:     url + GroupUrlApi,
		baseMonitorUrl: url + GroupUrlMonitor,
		lv:             dumpLogLevel,
		l:              l,
	}
}

func (c *Client) apiUrl(format string, args ...interface{}) string {
	return c.baseApiUrl + fmt.Sprintf(format, args...)
}

func (c *Client) do(method, url string, traceID string, reqPtr, respPtr interface{}) (resp *http.Response, err error) {
	var reqBody io.Reader
	if reqPtr != nil {
		var b []byte
		if b, err = json.Marshal(reqPtr); err != nil {
			c.l.Debugf("fail to encode Request err:%+v", err)
			return nil, err
		}
		reqBody = bytes.NewReader(b)
	}
	if !strings.HasPrefix(url, c.baseApiUrl) {
		url = c.baseApiUrl + url
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		c.l.Debugf("fail to NewRequest err:%+v", err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if len(traceID) > 0 {
		req.Header.Set(HeaderTraceID, traceID)
	}
	c.l.Debugf("url=%s", req.URL)
	if resp, err = c.Client.Do(req); err != nil {
		return
	}
	if resp.StatusCode/100 != 2 {
		er := &ErrorResponse{}
		if err = UnmarshalBody(resp.Body, er); err != nil {
			c.l.Debugf("fail to decode ErrorResponse err:%+v", err)
			err = errors.Errorf("server response not success, StatusCode:%d",
				resp.StatusCode)
			return
		}
		err = er
		return
	}
	if respPtr != nil {
		if err = UnmarshalBody(resp.Body, respPtr); err != nil {
			c.l.Debugf("fail to decode resp err:%+v", err)
			return
		}
	}
	return
}

func (c *Client) Invoke(svc, method string, args service.Params, traceID string) (service.Result, error) {
	return c.InvokeDescriptor(&service.Descriptor{
		ServiceName:   svc,
		ServiceMethod: method,
		Args:          args,
	}, traceID)
}

func (c *Client) InvokeDescriptor(d *service.Descriptor, traceID string) (service.Result, error) {
	ret := service.Result{}
	if _, err := c.do(http.MethodPost, c.apiUrl(UrlInvoke), traceID, d, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) Services() (map[string][]string, error) {
	r := make(map[string][]string)
	if _, err := c.do(http.MethodGet, c.apiUrl(UrlServices), "", nil, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func (c *Client) Assets(entry string) (service.Result, error) {
	ret := service.Result{}
	qv := url.Values{}
	qv.Set("entry", entry)
	if _, err := c.do(http.MethodGet, c.apiUrl(UrlAssets)+"?"+qv.Encode(), "", nil, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) Report(r map[string]interface{}) error {
	_, err := c.do(http.MethodPost, c.apiUrl(UrlReport), "",
		&CSPReport{Report: r}, nil)
	return err
}

func (c *Client) Reports(page, size uint, sort string) (service.Result, error) {
	ret := service.Result{}
	qv := url.Values{}
	qv.Set("page", fmt.Sprintf("%d", page))
	qv.Set("size", fmt.Sprintf("%d", size))
	if len(sort) > 0 {
		qv.Set("sort", sort)
	}
	if _, err := c.do(http.MethodGet, c.apiUrl(UrlReports)+"?"+qv.Encode(), "", nil, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Client) monitorUrl(format string, args ...interface{}) string {
	return c.baseMonitorUrl + fmt.Sprintf(format, args...)
}

func (c *Client) wsID(conn *websocket.Conn) string {
	return conn.LocalAddr().String()
}

func (c *Client) wsConnect(ctx context.Context, url string) (*websocket.Conn, error) {
	url = strings.Replace(url, "http", "ws", 1)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if err == websocket.ErrBadHandshake {
			er := &ErrorResponse{}
			if err = UnmarshalBody(resp.Body, er); err != nil {
				err = errors.Errorf("server response not success, StatusCode:%d",
					resp.StatusCode)
			}
			err = er
		}
		c.l.Debugf("fail to Dial url:%s err:%+v", url, err)
		return nil, err
	}
	id := c.wsID(conn)
	pingHandler := conn.PingHandler()
	conn.SetPingHandler(func(appData string) error {
		c.l.Logf(c.lv, "[%s]wsPing=%s", id, appData)
		return pingHandler(appData)
	})
	conn.SetPongHandler(func(appData string) error {
		c.l.Logf(c.lv, "[%s]unexpected wsPong %s", id, appData)
		return nil
	})
	c.l.Debugf("[%s]wsConnect", id)
	return conn, nil
}

func (c *Client) wsHandshake(ctx context.Context, conn *websocket.Conn, req interface{}) error {
	var err error
	id := c.wsID(conn)
	if err = c.wsWrite(conn, req); err != nil {
		c.l.Debugf("[%s]fail to wsWrite err:%+v", id, err)
		return err
	}
	tctx, cancel := context.WithTimeout(ctx, WsHandshakeTimeout)
	defer cancel()
	er := &ErrorResponse{}
	if err = c.wsRead(tctx, conn, er); err != nil {
		c.l.Debugf("[%s]fail to wsRead err:%+v", id, err)
		return err
	}
	if !errors.Success.Equals(er) {
		err = er
		return err
	}
	return nil
}

func (c *Client) wsClose(conn *websocket.Conn) {
	c.l.Debugf("[%s]wsClose", c.wsID(conn))
	conn.Close()
}

func (c *Client) wsRead(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	id := c.wsID(conn)
	ch := make(chan interface{}, 1)
	go func() {
		_, b, err := conn.ReadMessage()
		if err != nil {
			ch <- err
		} else {
			ch <- b
		}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case inf := <-ch:
		switch t := inf.(type) {
		case error:
			return t
		case []byte:
			if err := json.Unmarshal(t, v); err != nil {
				return err
			}
			c.l.Logf(c.lv, "[%s]wsRead=%s", id, t)
			return nil
		default:
			c.l.Panicln("unreachable code")
			return nil
		}
	}
}

func (c *Client) wsWrite(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.l.Logf(c.lv, "[%s]wsWrite=%s", c.wsID(conn), b)
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) wsReadLoop(ctx context.Context, conn *websocket.Conn, cb func(b []byte) error) error {
	id := c.wsID(conn)
	ech := make(chan error, 1)
	go func() {
		defer func() {
			c.l.Debugf("[%s]wsReadLoop finish", id)
		}()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				ech <- err
				break
			}
			c.l.Logf(c.lv, "[%s]wsReadLoop=%s", id, b)
			if err = cb(b); err != nil {
				ech <- err
				break
			}
		}
	}()

	select {
	case <-ctx.Done():
		c.l.Debugf("[%s]wsReadLoop context Done", id)
		return ctx.Err()
	case err := <-ech:
		c.l.Debugf("[%s]wsReadLoop err:%+v", id, err)
		return err
	}
}

type ReportCallback func(v *report.Violation) error

func (c *Client) MonitorReports(ctx context.Context, req *MonitorRequest, cb ReportCallback) error {
	conn, err := c.wsConnect(ctx, c.monitorUrl(UrlReports))
	if err != nil {
		return err
	}
	defer c.wsClose(conn)
	if err = c.wsHandshake(ctx, conn, req); err != nil {
		return err
	}
	return c.wsReadLoop(ctx, conn, func(b []byte) error {
		v := &report.Violation{}
		if err = json.Unmarshal(b, v); err != nil {
			return err
		}
		return cb(v)
	})
}
