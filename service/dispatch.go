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

package service

import (
	"time"

	"github.com/icon-project/btp2/common/log"
)

type CallOptions struct {
	TraceID string
	Signal  *Signal
	Logger  log.Logger
}

// CallServiceMethod resolves (serviceName, methodName) in the registry and
// invokes the handler. Cancellation is checked at entry only; a handler that
// wants to stop mid-flight has to watch the signal passed in its CallContext.
// No retries occur at this layer.
func CallServiceMethod(r Registry, serviceName, methodName string, params Params, opts CallOptions) (Result, error) {
	if opts.Signal.Cancelled() {
		return nil, TimeoutError("Request canceled")
	}
	h, err := r.method(serviceName, methodName)
	if err != nil {
		return nil, err
	}
	fields := log.Fields{
		log.FieldKeyModule: "service-call",
		"service":          serviceName,
		"method":           methodName,
	}
	if len(opts.TraceID) > 0 {
		fields["trace"] = opts.TraceID
	}
	l := opts.Logger
	if l == nil {
		l = log.GlobalLogger()
	}
	l = l.WithFields(fields)
	start := time.Now()
	if params == nil {
		params = Params{}
	}
	ret, err := invoke(h, &CallContext{
		TraceID: opts.TraceID,
		Signal:  opts.Signal,
		Logger:  l,
	}, params)
	if err != nil {
		if IsCallError(err) {
			return nil, err
		}
		return nil, InternalError(err.Error(), err, nil)
	}
	if ret == nil {
		return nil, InternalErrorf("Non-object result from %s.%s", serviceName, methodName)
	}
	l.Debugf("Service method ok ms:%.3f", float64(time.Since(start).Nanoseconds())/1e6)
	return ret, nil
}

func invoke(h Handler, ctx *CallContext, params Params) (ret Result, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			if e, ok := rv.(error); ok {
				err = e
			} else {
				err = InternalError("Unknown error", nil, map[string]interface{}{"err": rv})
			}
		}
	}()
	return h(ctx, params)
}
