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
	"testing"

	"github.com/icon-project/btp2/common/errors"
	"github.com/stretchr/testify/assert"
)

func MustDefineService(t *testing.T, methods map[string]interface{}) Definition {
	d, err := DefineService(methods)
	if err != nil {
		assert.FailNow(t, "fail to DefineService", err)
	}
	return d
}

func testRegistry(t *testing.T, methods map[string]interface{}) Registry {
	return DefineServiceRegistry(map[string]Definition{
		"test": MustDefineService(t, methods),
	})
}

func assertCode(t *testing.T, code errors.Code, err error) {
	ec, ok := errors.CoderOf(err)
	if assert.True(t, ok, "expected coded error, got %+v", err) {
		assert.Equal(t, code, ec.ErrorCode())
	}
}

func Test_CallServiceMethod_NotFound(t *testing.T) {
	r := testRegistry(t, map[string]interface{}{
		"ping": Handler(func(ctx *CallContext, params Params) (Result, error) {
			return Result{"pong": true}, nil
		}),
	})

	_, err := CallServiceMethod(r, "unknown", "ping", nil, CallOptions{})
	assertCode(t, ErrorCodeNotFound, err)
	assert.EqualError(t, err, "Unknown service: unknown")

	_, err = CallServiceMethod(r, "test", "nope", nil, CallOptions{})
	assertCode(t, ErrorCodeNotFound, err)
	assert.EqualError(t, err, "Unknown method: test.nope")
}

func Test_CallServiceMethod_NilResult(t *testing.T) {
	r := testRegistry(t, map[string]interface{}{
		"broken": Handler(func(ctx *CallContext, params Params) (Result, error) {
			return nil, nil
		}),
	})
	_, err := CallServiceMethod(r, "test", "broken", nil, CallOptions{})
	assertCode(t, ErrorCodeInternal, err)
	assert.EqualError(t, err, "Non-object result from test.broken")
}

func Test_CallServiceMethod_ErrorPassThrough(t *testing.T) {
	tagged := NotFoundErrorf("no such thing")
	r := testRegistry(t, map[string]interface{}{
		"fail": Handler(func(ctx *CallContext, params Params) (Result, error) {
			return nil, tagged
		}),
	})
	_, err := CallServiceMethod(r, "test", "fail", nil, CallOptions{})
	assert.Same(t, tagged, err)
}

func Test_CallServiceMethod_WrapGenericError(t *testing.T) {
	cause := errors.New("boom")
	r := testRegistry(t, map[string]interface{}{
		"fail": Handler(func(ctx *CallContext, params Params) (Result, error) {
			return nil, cause
		}),
	})
	_, err := CallServiceMethod(r, "test", "fail", nil, CallOptions{})
	assertCode(t, ErrorCodeInternal, err)
	assert.EqualError(t, err, "boom")
	ce, ok := err.(CallError)
	if assert.True(t, ok) {
		assert.Same(t, cause, ce.Unwrap())
	}
}

func Test_CallServiceMethod_PanicValue(t *testing.T) {
	r := testRegistry(t, map[string]interface{}{
		"panic": Handler(func(ctx *CallContext, params Params) (Result, error) {
			panic("oops")
		}),
	})
	_, err := CallServiceMethod(r, "test", "panic", nil, CallOptions{})
	assertCode(t, ErrorCodeInternal, err)
	assert.EqualError(t, err, "Unknown error")
	ce, ok := err.(CallError)
	if assert.True(t, ok) {
		assert.Equal(t, map[string]interface{}{"err": "oops"}, ce.Details())
	}
}

func Test_CallServiceMethod_CancelledSignal(t *testing.T) {
	invoked := 0
	r := testRegistry(t, map[string]interface{}{
		"ping": Handler(func(ctx *CallContext, params Params) (Result, error) {
			invoked++
			return Result{}, nil
		}),
	})
	s, cancel := NewSignal()
	cancel(nil)
	_, err := CallServiceMethod(r, "test", "ping", nil, CallOptions{Signal: s})
	assertCode(t, ErrorCodeTimeout, err)
	assert.EqualError(t, err, "Request canceled")
	assert.Equal(t, 0, invoked)
}

func Test_CallServiceMethod_DefaultParamsAndContext(t *testing.T) {
	r := testRegistry(t, map[string]interface{}{
		"echo": Handler(func(ctx *CallContext, params Params) (Result, error) {
			assert.NotNil(t, params)
			assert.Equal(t, "tid-1", ctx.TraceID)
			assert.NotNil(t, ctx.Logger)
			return Result{"n": len(params)}, nil
		}),
	})
	ret, err := CallServiceMethod(r, "test", "echo", nil, CallOptions{TraceID: "tid-1"})
	assert.NoError(t, err)
	assert.Equal(t, Result{"n": 0}, ret)
}

func Test_Registry_Immutable(t *testing.T) {
	d := MustDefineService(t, map[string]interface{}{
		"ping": Handler(func(ctx *CallContext, params Params) (Result, error) {
			return Result{}, nil
		}),
	})
	src := map[string]Definition{"test": d}
	r := DefineServiceRegistry(src)

	// mutating the source maps after construction leaves the registry untouched
	d["extra"] = Handler(func(ctx *CallContext, params Params) (Result, error) {
		return Result{}, nil
	})
	delete(src, "test")
	src["other"] = d

	_, err := CallServiceMethod(r, "test", "ping", nil, CallOptions{})
	assert.NoError(t, err)
	_, err = CallServiceMethod(r, "test", "extra", nil, CallOptions{})
	assertCode(t, ErrorCodeNotFound, err)
	_, err = CallServiceMethod(r, "other", "ping", nil, CallOptions{})
	assertCode(t, ErrorCodeNotFound, err)

	assert.Equal(t, []string{"test"}, r.Services())
	assert.Equal(t, []string{"ping"}, r.Methods("test"))
	assert.Nil(t, r.Methods("other"))
}
