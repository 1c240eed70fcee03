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

// Package web serves the embedded service console.
package web

import (
	"embed"

	"github.com/labstack/echo/v4"
)

var (
	//go:embed all:dist
	dist embed.FS
	//go:embed dist/index.html
	indexHtml     embed.FS
	distDir       = echo.MustSubFS(dist, "dist")
	distIndexHtml = echo.MustSubFS(indexHtml, "dist")
)

func RegisterWebHandler(g *echo.Group) {
	g.FileFS("/", "index.html", distIndexHtml)
	g.StaticFS("/", distDir)
}
