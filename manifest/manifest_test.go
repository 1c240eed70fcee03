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
	"testing"

	"github.com/icon-project/btp2/common/log"
	"github.com/stretchr/testify/assert"

	"github.com/srvx-project/srvx-sdk/service"
)

const testManifest = `{
  "src/main.ts": {
    "file": "assets/main.8f2c1a.js",
    "src": "src/main.ts",
    "isEntry": true,
    "css": ["assets/main.4d91b0.css"],
    "imports": ["_shared.b7e402.js"]
  },
  "src/admin.ts": {
    "file": "assets/admin.77af1c.js",
    "src": "src/admin.ts",
    "isEntry": true,
    "imports": ["_shared.b7e402.js", "_missing.js"]
  },
  "_shared.b7e402.js": {
    "file": "assets/shared.b7e402.js",
    "css": ["assets/shared.0b6d3f.css"]
  }
}`

func testManifestLoaded(t *testing.T) *Manifest {
	m, err := New([]byte(testManifest), log.GlobalLogger())
	if err != nil {
		assert.FailNow(t, "fail to New", err)
	}
	return m
}

func Test_Manifest_Entries(t *testing.T) {
	m := testManifestLoaded(t)
	assert.Equal(t, []string{"src/admin.ts", "src/main.ts"}, m.Entries())
}

func Test_Manifest_Assets(t *testing.T) {
	m := testManifestLoaded(t)

	a, err := m.Assets("src/main.ts")
	assert.NoError(t, err)
	assert.Equal(t, "assets/main.8f2c1a.js", a.Script)
	assert.Equal(t, []string{"assets/main.4d91b0.css", "assets/shared.0b6d3f.css"}, a.Styles)
	assert.Equal(t, []string{"assets/shared.b7e402.js"}, a.Preloads)

	// second resolution is served from the cache
	cached, err := m.Assets("src/main.ts")
	assert.NoError(t, err)
	assert.True(t, a == cached)

	// dangling imports are skipped, not fatal
	a, err = m.Assets("src/admin.ts")
	assert.NoError(t, err)
	assert.Equal(t, []string{"assets/shared.0b6d3f.css"}, a.Styles)

	_, err = m.Assets("src/nope.ts")
	assert.Error(t, err)
	assert.EqualError(t, err, "Unknown entry: src/nope.ts")
}

func Test_Manifest_Definition(t *testing.T) {
	m := testManifestLoaded(t)
	d, err := m.Definition()
	if err != nil {
		assert.FailNow(t, "fail to Definition", err)
	}
	r := service.DefineServiceRegistry(map[string]service.Definition{
		ServiceName: d,
	})

	ret, err := service.CallServiceMethod(r, ServiceName, "resolve",
		service.Params{"entry": "src/main.ts"}, service.CallOptions{})
	assert.NoError(t, err)
	assert.Equal(t, "assets/main.8f2c1a.js", ret["script"])

	_, err = service.CallServiceMethod(r, ServiceName, "resolve",
		service.Params{}, service.CallOptions{})
	assert.Error(t, err)
	assert.EqualError(t, err, "entry required")

	_, err = service.CallServiceMethod(r, ServiceName, "resolve",
		service.Params{"entry": "src/nope.ts"}, service.CallOptions{})
	assert.EqualError(t, err, "Unknown entry: src/nope.ts")

	ret, err = service.CallServiceMethod(r, ServiceName, "entries", nil, service.CallOptions{})
	assert.NoError(t, err)
	assert.Equal(t, []string{"src/admin.ts", "src/main.ts"}, ret["entries"])
}
