// Package report writes token-analysis output as static HTML files.
package report

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Writer generates one HTML document per analysis under a public directory.
type Writer struct {
	dir     string
	baseURL string
}

// NewWriter ensures the output directory exists. baseURL is the public prefix
// the files are served under, e.g. "/public".
func NewWriter(dir, baseURL string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Writer{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (w *Writer) Dir() string {
	return w.dir
}

// Write wraps the model's content in a minimal HTML document and returns the
// URL path of the generated file. The content is treated as opaque text and
// escaped; markup generation is the model's job, not ours.
func (w *Writer) Write(title, content string) (string, error) {
	name := fmt.Sprintf("analysis-%s-%s.html", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
	doc := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
<pre>%s</pre>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(content))

	if err := os.WriteFile(filepath.Join(w.dir, name), []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return w.baseURL + "/" + name, nil
}
