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
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"
)

type Params map[string]interface{}

type Result map[string]interface{}

// CallContext is the per-call value passed to every Handler, carrying the
// caller-supplied trace id, the optional cancellation signal and a logger
// scoped to the call.
type CallContext struct {
	TraceID string
	Signal  *Signal
	Logger  log.Logger
}

type Handler func(ctx *CallContext, params Params) (Result, error)

// Validator checks and/or transforms a raw value, returning the value the
// caller should use instead. It fails with an error on invalid input.
type Validator interface {
	Parse(v interface{}) (interface{}, error)
}

// ValidatorFunc adapts a bare function to the Validator interface.
type ValidatorFunc func(v interface{}) (interface{}, error)

func (f ValidatorFunc) Parse(v interface{}) (interface{}, error) {
	return f(v)
}

// MethodSpec pairs a Handler with optional params/result validators. Either
// validator may be nil; each applies independently.
type MethodSpec struct {
	Handler Handler
	Params  Validator
	Result  Validator
}

// Definition maps method names to handlers. A definition built by
// DefineService is indistinguishable from a hand-written map of handlers.
type Definition map[string]Handler

// DefineService normalizes the given methods into a Definition. Per entry it
// accepts a Handler (or a bare func of the handler signature), a MethodSpec
// or a *MethodSpec. Validator errors are not intercepted by the wrapping;
// they propagate to the dispatcher for normalization.
func DefineService(methods map[string]interface{}) (Definition, error) {
	d := make(Definition, len(methods))
	for name, m := range methods {
		switch t := m.(type) {
		case Handler:
			d[name] = t
		case func(*CallContext, Params) (Result, error):
			d[name] = t
		case MethodSpec:
			h, err := t.wrap(name)
			if err != nil {
				return nil, err
			}
			d[name] = h
		case *MethodSpec:
			h, err := t.wrap(name)
			if err != nil {
				return nil, err
			}
			d[name] = h
		default:
			return nil, errors.Errorf("not support method type %T, method:%s", m, name)
		}
	}
	return d, nil
}

func (s *MethodSpec) wrap(name string) (Handler, error) {
	if s.Handler == nil {
		return nil, errors.Errorf("handler required, method:%s", name)
	}
	if s.Params == nil && s.Result == nil {
		return s.Handler, nil
	}
	h, pv, rv := s.Handler, s.Params, s.Result
	return func(ctx *CallContext, params Params) (Result, error) {
		if pv != nil {
			v, err := pv.Parse(params)
			if err != nil {
				return nil, err
			}
			p, ok := asParams(v)
			if !ok {
				return nil, errors.Errorf("not support params type %T from validator, method:%s", v, name)
			}
			params = p
		}
		r, err := h(ctx, params)
		if err != nil {
			return nil, err
		}
		if rv != nil {
			v, err := rv.Parse(r)
			if err != nil {
				return nil, err
			}
			// a non-record validator output surfaces as a nil result,
			// which the dispatcher reports as a contract violation
			ret, _ := asResult(v)
			return ret, nil
		}
		return r, nil
	}, nil
}

func asParams(v interface{}) (Params, bool) {
	switch t := v.(type) {
	case Params:
		return t, t != nil
	case Result:
		return Params(t), t != nil
	case map[string]interface{}:
		return Params(t), t != nil
	}
	return nil, false
}

func asResult(v interface{}) (Result, bool) {
	switch t := v.(type) {
	case Result:
		return t, t != nil
	case Params:
		return Result(t), t != nil
	case map[string]interface{}:
		return Result(t), t != nil
	}
	return nil, false
}
