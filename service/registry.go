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

import "sort"

// Registry is the immutable composition of named service definitions built
// once at startup. Both mapping levels are copied at construction, so later
// mutation of the caller's maps leaves the registry untouched and the
// dispatcher may read it concurrently without locks.
type Registry struct {
	services map[string]Definition
}

func DefineServiceRegistry(services map[string]Definition) Registry {
	m := make(map[string]Definition, len(services))
	for name, d := range services {
		cd := make(Definition, len(d))
		for mn, h := range d {
			cd[mn] = h
		}
		m[name] = cd
	}
	return Registry{services: m}
}

// Services returns the sorted service names.
func (r Registry) Services() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Methods returns the sorted method names of the given service, nil if the
// service is unknown.
func (r Registry) Methods(service string) []string {
	d, ok := r.services[service]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r Registry) method(service, method string) (Handler, error) {
	d, ok := r.services[service]
	if !ok {
		return nil, NotFoundErrorf("Unknown service: %s", service)
	}
	h, ok := d[method]
	if !ok {
		return nil, NotFoundErrorf("Unknown method: %s.%s", service, method)
	}
	return h, nil
}
