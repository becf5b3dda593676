// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scaffold

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// PageData is passed to the placeholder templates.
type PageData struct {
	ProjectName string
}

// App Router page component (app/page.tsx, app/page.jsx).
const appRouterPage = `export default function Page() {
  return (
    <main>
      <h1>{{ jsString .ProjectName }}</h1>
      <p>This placeholder page was generated by deploydiag. Replace it with your application.</p>
    </main>
  );
}
`

// Pages Router page component (pages/index.js).
const pagesRouterPage = `export default function Home() {
  return (
    <main>
      <h1>{{ jsString .ProjectName }}</h1>
      <p>This placeholder page was generated by deploydiag. Replace it with your application.</p>
    </main>
  );
}
`

// Static page (index.html, public/index.html).
const staticPage = `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <title>{{ .ProjectName | html }}</title>
  </head>
  <body>
    <h1>{{ .ProjectName | html }}</h1>
    <p>This placeholder page was generated by deploydiag. Replace it with your application.</p>
  </body>
</html>
`

var funcs = template.FuncMap{
	// jsString renders s as a JSX expression string literal, so project
	// names with braces or quotes cannot break the component.
	"jsString": func(s string) string {
		b, _ := json.Marshal(s)
		return "{" + string(b) + "}"
	},
}

// RenderPage renders the placeholder page appropriate for target's
// extension: .html gets a static page, .js under pages/ gets a Pages Router
// component, everything else an App Router component.
func RenderPage(target string, data PageData) (string, error) {
	src := appRouterPage
	switch {
	case strings.EqualFold(filepath.Ext(target), ".html"), strings.EqualFold(filepath.Ext(target), ".htm"):
		src = staticPage
	case isPagesRouter(target):
		src = pagesRouterPage
	}

	tmpl, err := template.New(filepath.Base(target)).Funcs(funcs).Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse placeholder template: %w", err)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render placeholder template: %w", err)
	}
	return sb.String(), nil
}

func isPagesRouter(target string) bool {
	slashed := filepath.ToSlash(target)
	return strings.HasPrefix(slashed, "pages/") || strings.Contains(slashed, "/pages/")
}

// ProjectName picks the name rendered into the placeholder page: the
// configured override, then package.json "name", then the directory name.
func ProjectName(dir, override string) string {
	if override != "" {
		return override
	}
	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		var pkg struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(data, &pkg) == nil && pkg.Name != "" {
			return pkg.Name
		}
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return filepath.Base(abs)
	}
	return "app"
}
