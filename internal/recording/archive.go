// Package recording keeps canonical captures on disk as WAV files for
// debugging, and prunes them by age and count.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	sampleRate = 16000
	bitDepth   = 16
	filePrefix = "recording_"
	fileExt    = ".wav"
)

// Archive writes one WAV file per cycle into Dir. Zero RetentionDays or
// MaxCount disables that limit.
type Archive struct {
	Dir           string
	RetentionDays int
	MaxCount      int

	logger *slog.Logger
	now    func() time.Time
}

// NewArchive returns an Archive rooted at dir.
func NewArchive(dir string, retentionDays, maxCount int, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		Dir:           dir,
		RetentionDays: retentionDays,
		MaxCount:      maxCount,
		logger:        logger,
		now:           time.Now,
	}
}

// Save writes samples (canonical mono 16kHz) as 16-bit PCM and returns the
// file path. Files are named recording_<unix>_<profile>_<cycle>.wav.
func (a *Archive) Save(profile, cycle string, samples []float32) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("recording: create dir: %w", err)
	}

	name := fmt.Sprintf("%s%d_%s_%s%s", filePrefix, a.now().Unix(), sanitize(profile), sanitize(cycle), fileExt)
	path := filepath.Join(a.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("recording: create file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           toPCM16(samples),
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("recording: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("recording: finalize: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("recording: close file: %w", err)
	}
	return path, nil
}

func toPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		out[i] = int(s * 32767)
	}
	return out
}

func sanitize(s string) string {
	if s == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}

type entry struct {
	path  string
	name  string
	stamp int64
}

// Cleanup deletes recordings older than RetentionDays and all but the
// newest MaxCount. Files not named by Save are left alone. A missing Dir is
// not an error.
func (a *Archive) Cleanup() (int, error) {
	dirEntries, err := os.ReadDir(a.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("recording: read dir: %w", err)
	}

	var files []entry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		stamp, ok := parseStamp(de.Name())
		if !ok {
			continue
		}
		files = append(files, entry{path: filepath.Join(a.Dir, de.Name()), name: de.Name(), stamp: stamp})
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool {
		if files[i].stamp != files[j].stamp {
			return files[i].stamp > files[j].stamp
		}
		return files[i].name > files[j].name
	})

	now := a.now().Unix()
	retention := int64(a.RetentionDays) * 24 * 60 * 60

	deleted := 0
	for i, f := range files {
		expired := a.RetentionDays > 0 && now-f.stamp > retention
		surplus := a.MaxCount > 0 && i >= a.MaxCount
		if !expired && !surplus {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			a.logger.Warn("failed to delete recording", "path", f.path, "error", err)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		a.logger.Debug("recording cleanup complete", "deleted", deleted, "remaining", len(files)-deleted)
	}
	return deleted, nil
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (a *Archive) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Cleanup(); err != nil {
				a.logger.Warn("recording cleanup failed", "error", err)
			}
		}
	}
}

// parseStamp extracts the unix time from recording_<unix>[_...].wav.
func parseStamp(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.EqualFold(filepath.Ext(name), fileExt) {
		return 0, false
	}
	rest := strings.TrimPrefix(name, filePrefix)
	rest = rest[:len(rest)-len(fileExt)]
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		rest = rest[:i]
	}
	stamp, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return stamp, true
}
