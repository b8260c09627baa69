// Package image renders and checks the container build file of the deployed service
package image

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// Options of the service image
type Options struct {
	Base         string
	Requirements string
	Port         uint
	App          string
	Server       string
}

const dockerfileTmpl = `FROM {{ .Base }}

ENV PYTHONDONTWRITEBYTECODE=1 \
    PYTHONUNBUFFERED=1

WORKDIR /app

COPY {{ .Requirements }} .
RUN pip install --no-cache-dir -r {{ .Requirements }}

COPY . .

EXPOSE {{ .Port }}

CMD [{{ range $i, $arg := command . }}{{ if $i }}, {{ end }}"{{ $arg }}"{{ end }}]
`

var tmpl = template.Must(template.New("Dockerfile").Funcs(template.FuncMap{
	"command": Command,
}).Parse(dockerfileTmpl))

// Command is the exec form of the server command line
func Command(opts Options) []string {
	return []string{opts.Server, opts.App, "--host", "0.0.0.0", "--port", formatPort(opts.Port)}
}

// Render returns the build file for opts
func Render(opts Options) ([]byte, error) {
	if opts.Base == "" || opts.Requirements == "" || opts.App == "" || opts.Server == "" || opts.Port == 0 {
		return nil, errors.New("base, requirements, app, server and port are required")
	}

	for _, v := range []string{opts.Base, opts.Requirements, opts.App, opts.Server} {
		if strings.ContainsAny(v, "\"\n ") {
			return nil, errors.Errorf("invalid value %q", v)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, errors.Wrap(err, "failed to render Dockerfile")
	}
	return buf.Bytes(), nil
}
