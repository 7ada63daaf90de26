package volume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ripline/internal/demux"
	"ripline/internal/errcode"
	"ripline/internal/logging"
	"ripline/internal/title"
)

// DefaultProbePacks bounds how much of each title is read while scanning.
const DefaultProbePacks = 4096

// ErrNoTitles reports a volume without any playable title.
var ErrNoTitles = errors.New("no titles found on volume")

var titleExtensions = map[string]bool{
	".vob":  true,
	".mpg":  true,
	".mpeg": true,
	".ps":   true,
}

// Volume is the result of a scan.
type Volume struct {
	Path   string
	Titles []*title.Title
}

// Title returns the title with the given index, or nil.
func (v *Volume) Title(index int) *title.Title {
	if v == nil {
		return nil
	}
	for _, t := range v.Titles {
		if t.Index == index {
			return t
		}
	}
	return nil
}

// Scanner probes volumes.
type Scanner struct {
	ProbePacks int
	Logger     *slog.Logger
}

// Scan lists and probes the titles on path. progress, when set, is called
// with the 1-based index of the file about to be probed.
func (s *Scanner) Scan(ctx context.Context, path string, progress func(index, total int)) (*Volume, error) {
	logger := logging.NewComponentLogger(s.Logger, "scanner")
	files, err := listTitleFiles(path)
	if err != nil {
		return nil, errcode.Wrap(errcode.OpenFailed, "scanner", "list volume", err)
	}
	packs := s.ProbePacks
	if packs <= 0 {
		packs = DefaultProbePacks
	}

	vol := &Volume{Path: path}
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(i+1, len(files))
		}
		t, err := probeTitle(file, len(vol.Titles)+1, packs)
		if err != nil {
			logging.WarnWithContext(logger, "title probe failed", "scan_probe_failed",
				logging.String("file", file),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the file is an MPEG-2 program stream"),
				logging.String(logging.FieldImpact, "title skipped"),
			)
			continue
		}
		if t == nil {
			logger.Debug("skipping file without video", logging.String("file", file))
			continue
		}
		logger.Info("title found",
			logging.String(logging.FieldEventType, "scan_title_found"),
			logging.Int("title", t.Index),
			logging.String("file", file),
			logging.Int("audio_tracks", len(t.Audios)),
		)
		vol.Titles = append(vol.Titles, t)
	}
	if len(vol.Titles) == 0 {
		return vol, ErrNoTitles
	}
	return vol, nil
}

func probeTitle(path string, index, packs int) (*title.Title, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	res, err := demux.Probe(f, packs)
	if err != nil {
		return nil, err
	}
	if !res.Video {
		return nil, nil
	}

	t := &title.Title{
		Index:  index,
		Source: path,
		Length: info.Size(),
	}
	videoPTS, hasVideoPTS := res.FirstPTS[title.VideoStreamID]
	for _, id := range res.Audio {
		a := title.Audio{ID: id, Language: "und", Channels: 2, InSampleRate: 48000}
		if pts, ok := res.FirstPTS[id]; ok && hasVideoPTS && pts > videoPTS {
			a.StartDelay = time.Duration(pts-videoPTS) * time.Second / 90000
		}
		t.Audios = append(t.Audios, a)
	}
	t.DefaultGeometry()
	return t, nil
}

func listTitleFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	dir := path
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), "VIDEO_TS") {
			dir = filepath.Join(path, e.Name())
			if entries, err = os.ReadDir(dir); err != nil {
				return nil, err
			}
			break
		}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !titleExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTitles)
	}
	return files, nil
}
