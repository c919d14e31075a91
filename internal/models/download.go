// Package models fetches whisper ggml model files.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
)

// DefaultBaseURL hosts the ggml conversions of the whisper models.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// ErrInvalidName rejects model names that are not a plain ggml variant.
var ErrInvalidName = errors.New("models: invalid model name")

var nameRE = regexp.MustCompile(`^[a-z0-9]+(?:[.-][a-z0-9]+)*$`)

// FileName maps a model name such as "base.en" to its file, ggml-base.en.bin.
func FileName(name string) (string, error) {
	if !nameRE.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return "ggml-" + name + ".bin", nil
}

// Downloader writes model files into Dir.
type Downloader struct {
	Dir      string
	BaseURL  string       // defaults to DefaultBaseURL
	Client   *http.Client // defaults to http.DefaultClient
	Progress io.Writer    // nil disables progress output
}

// Pull downloads the named model unless a non-empty file already exists.
// It returns the model path and whether anything was downloaded. The file
// is written to a temporary name and renamed once complete.
func (d *Downloader) Pull(ctx context.Context, name string) (string, bool, error) {
	file, err := FileName(name)
	if err != nil {
		return "", false, err
	}
	dest := filepath.Join(d.Dir, file)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, false, nil
	}

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating models dir: %w", err)
	}

	base := d.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+file, nil)
	if err != nil {
		return "", false, err
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("downloading %s: %w", file, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("downloading %s: HTTP %d", file, resp.StatusCode)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", false, fmt.Errorf("creating temp file: %w", err)
	}

	var w io.Writer = f
	if d.Progress != nil {
		w = &progressWriter{writer: f, out: d.Progress, total: resp.ContentLength, label: file}
	}
	_, err = io.Copy(w, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if d.Progress != nil {
		fmt.Fprintln(d.Progress)
	}
	if err != nil {
		os.Remove(tmp)
		return "", false, fmt.Errorf("writing %s: %w", file, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", false, fmt.Errorf("moving %s: %w", file, err)
	}
	return dest, true, nil
}

// progressWriter wraps an io.Writer and prints download progress to out.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	mb := float64(pw.written) / (1024 * 1024)
	if pw.total > 0 {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label, mb, float64(pw.total)/(1024*1024), float64(pw.written)/float64(pw.total)*100)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded", pw.label, mb)
	}
	return n, err
}
