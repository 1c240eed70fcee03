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

package manifest

import (
	"encoding/json"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/icon-project/btp2/common/errors"
	"github.com/icon-project/btp2/common/log"

	"github.com/srvx-project/srvx-sdk/service"
)

const (
	ServiceName = "assets"

	resolveCacheSize = 128
)

func Logger(l log.Logger) log.Logger {
	return l.WithFields(log.Fields{log.FieldKeyModule: "manifest"})
}

// Entry is one record of a build-tool asset manifest.
type Entry struct {
	File    string   `json:"file"`
	Src     string   `json:"src,omitempty"`
	IsEntry bool     `json:"isEntry,omitempty"`
	CSS     []string `json:"css,omitempty"`
	Imports []string `json:"imports,omitempty"`
}

// Assets is the fully resolved asset set of an entry: its script, every
// stylesheet reachable through the import graph and the imported chunk files
// to preload.
type Assets struct {
	Entry    string   `json:"entry"`
	Script   string   `json:"script"`
	Styles   []string `json:"styles,omitempty"`
	Preloads []string `json:"preloads,omitempty"`
}

// Manifest is an immutable view of a loaded asset manifest with an LRU cache
// of resolved entries.
type Manifest struct {
	entries map[string]*Entry
	cache   *lru.Cache
	l       log.Logger
}

func New(b []byte, l log.Logger) (*Manifest, error) {
	entries := make(map[string]*Entry)
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, errors.Wrapf(err, "fail to Unmarshal err:%s", err.Error())
	}
	cache, err := lru.New(resolveCacheSize)
	if err != nil {
		return nil, err
	}
	return &Manifest{
		entries: entries,
		cache:   cache,
		l:       Logger(l),
	}, nil
}

func Load(path string, l log.Logger) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to ReadFile path:%s err:%s", path, err.Error())
	}
	return New(b, l)
}

// Entries returns the sorted names of entry-point records.
func (m *Manifest) Entries() []string {
	names := make([]string, 0)
	for name, e := range m.entries {
		if e.IsEntry {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Assets resolves the named entry, walking imports transitively. The result
// is cached.
func (m *Manifest) Assets(name string) (*Assets, error) {
	if v, ok := m.cache.Get(name); ok {
		return v.(*Assets), nil
	}
	e, ok := m.entries[name]
	if !ok {
		return nil, service.NotFoundErrorf("Unknown entry: %s", name)
	}
	a := &Assets{
		Entry:  name,
		Script: e.File,
	}
	visited := map[string]bool{name: true}
	m.walk(e, a, visited)
	m.cache.Add(name, a)
	m.l.Debugf("resolved entry:%s styles:%d preloads:%d", name, len(a.Styles), len(a.Preloads))
	return a, nil
}

func (m *Manifest) walk(e *Entry, a *Assets, visited map[string]bool) {
	a.Styles = append(a.Styles, e.CSS...)
	for _, imp := range e.Imports {
		if visited[imp] {
			continue
		}
		visited[imp] = true
		ie, ok := m.entries[imp]
		if !ok {
			m.l.Debugf("dangling import:%s", imp)
			continue
		}
		a.Preloads = append(a.Preloads, ie.File)
		m.walk(ie, a, visited)
	}
}

// Definition exposes resolve and entries as dispatchable methods.
func (m *Manifest) Definition() (service.Definition, error) {
	return service.DefineService(map[string]interface{}{
		"resolve": service.MethodSpec{
			Handler: m.resolve,
			Params: service.ValidatorFunc(func(v interface{}) (interface{}, error) {
				p, ok := v.(service.Params)
				if !ok {
					return nil, errors.Errorf("not support params type %T", v)
				}
				if s, ok := p["entry"].(string); !ok || len(s) == 0 {
					return nil, errors.New("entry required")
				}
				return p, nil
			}),
		},
		"entries": service.Handler(m.list),
	})
}

func (m *Manifest) resolve(ctx *service.CallContext, params service.Params) (service.Result, error) {
	a, err := m.Assets(params["entry"].(string))
	if err != nil {
		return nil, err
	}
	return service.Result{
		"entry":    a.Entry,
		"script":   a.Script,
		"styles":   a.Styles,
		"preloads": a.Preloads,
	}, nil
}

func (m *Manifest) list(ctx *service.CallContext, params service.Params) (service.Result, error) {
	return service.Result{"entries": m.Entries()}, nil
}
