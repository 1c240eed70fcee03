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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/srvx-project/srvx-sdk/manifest"
	"github.com/srvx-project/srvx-sdk/report"
	"github.com/srvx-project/srvx-sdk/service"
	"github.com/srvx-project/srvx-sdk/web"
)

const (
	ParamService = "service"
	ParamMethod  = "method"

	HeaderTraceID = "X-Trace-Id"
	QueryTimeout  = "timeout"

	GroupUrlApi     = "/api"
	GroupUrlMonitor = "/monitor"
	UrlInvoke       = "/invoke"
	UrlServices     = "/services"
	UrlAssets       = "/assets"
	UrlReport       = "/report"
	UrlReports      = "/reports"

	WsHandshakeTimeout = time.Second * 3
)

func Logger(l log.Logger) log.Logger {
	return l.WithFields(log.Fields{log.FieldKeyModule: "api"})
}

type Server struct {
	e        *echo.Echo
	addr     string
	registry service.Registry
	reports  *report.Service
	u        websocket.Upgrader
	lv       log.Level
	l        log.Logger
}

func NewServer(addr string, r service.Registry, reports *report.Service, dumpLogLevel log.Level, l log.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = HttpErrorHandler
	return &Server{
		e:        e,
		addr:     addr,
		registry: r,
		reports:  reports,
		lv:       EnsureDumpLogLevel(dumpLogLevel),
		l:        Logger(l),
	}
}

func (s *Server) Start() error {
	s.l.Infoln("starting the server")
	// CORS middleware
	s.e.Use(
		middleware.CORSWithConfig(middleware.CORSConfig{
			MaxAge: 3600,
		}),
		middleware.Recover())
	s.RegisterAPIHandler(s.e.Group(GroupUrlApi))
	s.RegisterMonitorHandler(s.e.Group(GroupUrlMonitor))
	web.RegisterWebHandler(s.e.Group(""))
	return s.e.Start(s.addr)
}

func (s *Server) Stop() error {
	s.l.Infoln("shutting down the server")
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

type Request struct {
	Args service.Params `json:"args,omitempty" query:"args"`
}

func (s *Server) dispatch(c echo.Context, d *service.Descriptor) error {
	var timeout time.Duration
	if tv := c.QueryParam(QueryTimeout); len(tv) > 0 {
		ms, err := strconv.ParseInt(tv, 10, 64)
		if err != nil || ms < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid timeout")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}
	ret, err := service.CallServiceMethod(s.registry, d.ServiceName, d.ServiceMethod, d.Args,
		service.CallOptions{
			TraceID: c.Request().Header.Get(HeaderTraceID),
			Signal:  service.WithDeadline(nil, timeout),
			Logger:  s.l,
		})
	if err != nil {
		s.l.Debugf("fail to CallServiceMethod %s.%s err:%+v", d.ServiceName, d.ServiceMethod, err)
		return err
	}
	return c.JSON(http.StatusOK, ret)
}

func (s *Server) RegisterAPIHandler(g *echo.Group) {
	g.Use(middleware.BodyDump(func(c echo.Context, reqBody []byte, resBody []byte) {
		s.l.Debugf("url=%s", c.Request().RequestURI)
		s.l.Logf(s.lv, "request=%s", reqBody)
		s.l.Logf(s.lv, "response=%s", resBody)
	}))

	g.GET(UrlServices, func(c echo.Context) error {
		m := make(map[string][]string)
		for _, name := range s.registry.Services() {
			m[name] = s.registry.Methods(name)
		}
		return c.JSON(http.StatusOK, m)
	})

	g.POST(UrlInvoke, func(c echo.Context) error {
		var v interface{}
		if err := UnmarshalRequestBody(c, &v); err != nil {
			s.l.Debugf("fail to UnmarshalRequestBody err:%+v", err)
			return echo.ErrBadRequest
		}
		d, ok := service.DescriptorOf(v)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "not a service descriptor")
		}
		return s.dispatch(c, d)
	})

	g.POST("/:"+ParamService+"/:"+ParamMethod, func(c echo.Context) error {
		req := &Request{}
		if err := UnmarshalRequestBody(c, req); err != nil {
			s.l.Debugf("fail to UnmarshalRequestBody err:%+v", err)
			return echo.ErrBadRequest
		}
		if err := c.Validate(req); err != nil {
			s.l.Debugf("fail to Validate err:%+v", err)
			return err
		}
		return s.dispatch(c, &service.Descriptor{
			ServiceName:   c.Param(ParamService),
			ServiceMethod: c.Param(ParamMethod),
			Args:          req.Args,
		})
	})

	g.GET(UrlAssets, func(c echo.Context) error {
		return s.dispatch(c, &service.Descriptor{
			ServiceName:   manifest.ServiceName,
			ServiceMethod: "resolve",
			Args:          service.Params{"entry": c.QueryParam("entry")},
		})
	})

	g.POST(UrlReport, func(c echo.Context) error {
		cr := &CSPReport{}
		if err := UnmarshalRequestBody(c, cr); err != nil {
			s.l.Debugf("fail to UnmarshalRequestBody err:%+v", err)
			return echo.ErrBadRequest
		}
		args := cr.Args()
		if args == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "empty csp-report")
		}
		args["user_agent"] = c.Request().UserAgent()
		return s.dispatch(c, &service.Descriptor{
			ServiceName:   report.ServiceName,
			ServiceMethod: "submit",
			Args:          args,
		})
	})

	g.GET(UrlReports, func(c echo.Context) error {
		args := service.Params{}
		for _, k := range []string{"page", "size"} {
			if v := c.QueryParam(k); len(v) > 0 {
				n, err := strconv.ParseUint(v, 10, 32)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "invalid "+k)
				}
				args[k] = n
			}
		}
		if v := c.QueryParam("sort"); len(v) > 0 {
			args["sort"] = v
		}
		return s.dispatch(c, &service.Descriptor{
			ServiceName:   report.ServiceName,
			ServiceMethod: "list",
			Args:          args,
		})
	})
}

// CSPReport is the report-uri wire format, a single "csp-report" record with
// dash-separated keys.
type CSPReport struct {
	Report map[string]interface{} `json:"csp-report"`
}

// Args flattens the report into dispatchable args, dashes to underscores.
func (r *CSPReport) Args() service.Params {
	if len(r.Report) == 0 {
		return nil
	}
	args := service.Params{}
	for k, v := range r.Report {
		args[strings.ReplaceAll(k, "-", "_")] = v
	}
	return args
}

type MonitorRequest struct {
	Directive string `json:"directive,omitempty"`
}

func (s *Server) wsID(conn *websocket.Conn) string {
	return conn.RemoteAddr().String()
}

func (s *Server) wsConnect(c echo.Context) (*websocket.Conn, error) {
	conn, err := s.u.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.l.Debugf("fail to Upgrade err:%+v", err)
		return nil, err
	}
	s.l.Debugf("[%s]wsConnect", s.wsID(conn))
	return conn, nil
}

func (s *Server) wsHandshake(conn *websocket.Conn, req interface{}, onSuccess func() error) error {
	var err error
	id := s.wsID(conn)
	ctx, cancel := context.WithTimeout(context.Background(), WsHandshakeTimeout)
	defer func() {
		cancel()
		er := &ErrorResponse{
			Code: errors.Success,
		}
		if err != nil {
			er.Code = errors.UnknownError
			er.Message = err.Error()
			if ec, ok := errors.CoderOf(err); ok {
				er.Code = ec.ErrorCode()
			}
		}
		if err = s.wsWrite(conn, er); err != nil {
			s.l.Debugf("[%s]fail to wsWrite err:%+v", id, err)
		}
	}()
	if err = s.wsRead(ctx, conn, req); err != nil {
		s.l.Debugf("[%s]fail to wsRead err:%+v", id, err)
		return err
	}
	err = onSuccess()
	return err
}

func (s *Server) wsClose(conn *websocket.Conn) {
	s.l.Debugf("[%s]wsClose", s.wsID(conn))
	conn.Close()
}

func (s *Server) wsRead(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	id := s.wsID(conn)
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
			s.l.Logf(s.lv, "[%s]wsRead=%s", id, t)
			return nil
		default:
			s.l.Panicln("unreachable code")
			return nil
		}
	}
}

func (s *Server) wsWrite(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.l.Logf(s.lv, "[%s]wsWrite=%s", s.wsID(conn), b)
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Server) wsReadLoop(ctx context.Context, conn *websocket.Conn) error {
	id := s.wsID(conn)
	ech := make(chan error, 1)
	go func() {
		defer func() {
			s.l.Debugf("[%s]wsReadLoop finish", id)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ech <- err
				break
			}
		}
	}()
	select {
	case <-ctx.Done():
		s.l.Debugf("[%s]wsReadLoop context Done", id)
		return ctx.Err()
	case err := <-ech:
		s.l.Debugf("[%s]wsReadLoop err:%+v", id, err)
		return err
	}
}

func (s *Server) RegisterMonitorHandler(g *echo.Group) {
	g.GET(UrlReports, func(c echo.Context) error {
		conn, err := s.wsConnect(c)
		if err != nil {
			return err
		}
		defer s.wsClose(conn)
		id := s.wsID(conn)
		req := &MonitorRequest{}
		if err = s.wsHandshake(conn, req, func() error {
			return c.Validate(req)
		}); err != nil {
			s.l.Debugf("[%s]fail to wsHandshake err:%+v", id, err)
			return nil
		}
		ch, cancelSub := s.reports.Subscribe()
		defer cancelSub()
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer cancel()
			_ = s.wsReadLoop(ctx, conn)
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				if len(req.Directive) > 0 && v.ViolatedDirective != req.Directive {
					continue
				}
				if err = s.wsWrite(conn, v); err != nil {
					s.l.Debugf("[%s]fail to wsWrite err:%+v", id, err)
					return nil
				}
			}
		}
	})
}

func UnmarshalRequestBody(c echo.Context, v interface{}) error {
	if c.Request().ContentLength == 0 {
		return nil
	}
	return UnmarshalBody(c.Request().Body, v)
}

func UnmarshalBody(b io.ReadCloser, v interface{}) error {
	defer b.Close()
	return json.NewDecoder(b).Decode(v)
}
