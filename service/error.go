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
	"fmt"

	"github.com/icon-project/btp2/common/errors"
)

const (
	ErrorCodeNotFound errors.Code = errors.CodeGeneral + iota
	ErrorCodeTimeout
	ErrorCodeInternal
)

// CallError is the error surface of the dispatcher. Every error returned by
// CallServiceMethod carries one of ErrorCodeNotFound, ErrorCodeTimeout or
// ErrorCodeInternal.
type CallError interface {
	errors.ErrorCoder
	Unwrap() error
	Details() map[string]interface{}
}

type callError struct {
	errors.ErrorCoder
	cause   error
	details map[string]interface{}
}

func (e *callError) Unwrap() error {
	return e.cause
}

func (e *callError) Details() map[string]interface{} {
	return e.details
}

func NotFoundErrorf(format string, args ...interface{}) error {
	return &callError{ErrorCoder: errors.NewBase(ErrorCodeNotFound, fmt.Sprintf(format, args...))}
}

func TimeoutError(message string) error {
	return &callError{ErrorCoder: errors.NewBase(ErrorCodeTimeout, message)}
}

func InternalErrorf(format string, args ...interface{}) error {
	return &callError{ErrorCoder: errors.NewBase(ErrorCodeInternal, fmt.Sprintf(format, args...))}
}

// InternalError wraps an underlying cause or structured details into an
// ErrorCodeInternal error, preserving the given message.
func InternalError(message string, cause error, details map[string]interface{}) error {
	return &callError{
		ErrorCoder: errors.NewBase(ErrorCodeInternal, message),
		cause:      cause,
		details:    details,
	}
}

// IsCallError reports whether err already carries one of the dispatcher's
// error codes, in which case the dispatcher passes it through untouched.
func IsCallError(err error) bool {
	if ec, ok := errors.CoderOf(err); ok {
		switch ec.ErrorCode() {
		case ErrorCodeNotFound, ErrorCodeTimeout, ErrorCodeInternal:
			return true
		}
	}
	return false
}
