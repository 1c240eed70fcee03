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

// Descriptor is an unvalidated call request from an untrusted source,
// typically a decoded JSON body handed over by the transport layer.
type Descriptor struct {
	ServiceName   string `json:"serviceName"`
	ServiceMethod string `json:"serviceMethod"`
	Args          Params `json:"args,omitempty"`
}

// IsServiceDescriptor reports whether v is a record with string serviceName
// and serviceMethod fields and, if present, a record-valued args field.
func IsServiceDescriptor(v interface{}) bool {
	_, ok := DescriptorOf(v)
	return ok
}

// DescriptorOf validates v the same way IsServiceDescriptor does and returns
// the typed descriptor.
func DescriptorOf(v interface{}) (*Descriptor, bool) {
	m, ok := asParams(v)
	if !ok {
		return nil, false
	}
	name, ok := m["serviceName"].(string)
	if !ok {
		return nil, false
	}
	method, ok := m["serviceMethod"].(string)
	if !ok {
		return nil, false
	}
	d := &Descriptor{
		ServiceName:   name,
		ServiceMethod: method,
	}
	if av, exists := m["args"]; exists {
		args, ok := asParams(av)
		if !ok {
			return nil, false
		}
		d.Args = args
	}
	return d, true
}
