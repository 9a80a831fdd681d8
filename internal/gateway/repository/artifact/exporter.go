package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"deepbuild/internal/safeio"
	"deepbuild/internal/types"
)

var ErrNothingToExport = errors.New("artifact: project has no completed files")

// Exporter bundles a project's completed files and hands the bundle to a Sink.
type Exporter struct {
	sink Sink
}

func NewExporter(sink Sink) *Exporter {
	return &Exporter{sink: sink}
}

// Export zips every completed file under "{name}/" and stores the archive
// at projects/{id}/{name}.zip.
func (e *Exporter) Export(ctx context.Context, p types.Project) (Location, error) {
	bundle, err := Bundle(p)
	if err != nil {
		return Location{}, err
	}
	key := path.Join("projects", p.ID, slug(p.Name)+".zip")
	loc, err := e.sink.Put(ctx, key, bundle)
	if err != nil {
		return Location{}, fmt.Errorf("artifact: store %s: %w", key, err)
	}
	return loc, nil
}

// Bundle renders the zip archive for p.
func Bundle(p types.Project) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	dir := slug(p.Name)
	n := 0
	for _, f := range p.Files {
		if f.Status != types.FileStatusCompleted {
			continue
		}
		if err := safeio.ValidatePath(f.Path); err != nil {
			return nil, err
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     path.Join(dir, strings.ReplaceAll(f.Path, `\`, "/")),
			Method:   zip.Deflate,
			Modified: f.UpdatedAt,
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(f.Content)); err != nil {
			return nil, err
		}
		n++
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNothingToExport
	}
	return buf.Bytes(), nil
}

// Materialize writes the completed files of p below dir and returns the
// written absolute paths.
func Materialize(p types.Project, dir string) ([]string, error) {
	fs, err := safeio.NewSafeFS(dir)
	if err != nil {
		return nil, err
	}
	var written []string
	for _, f := range p.Files {
		if f.Status != types.FileStatusCompleted {
			continue
		}
		abs, err := fs.SafeWriteFile(f.Path, []byte(f.Content))
		if err != nil {
			return written, fmt.Errorf("artifact: write %s: %w", f.Path, err)
		}
		written = append(written, abs)
	}
	if len(written) == 0 {
		return nil, ErrNothingToExport
	}
	return written, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func slug(name string) string {
	s := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(name), "-"), "-.")
	if s == "" {
		return "project"
	}
	return strings.ToLower(s)
}
