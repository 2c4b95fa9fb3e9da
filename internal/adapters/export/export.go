// Package export turns synced records into artifacts for the media tooling: a WAV
// amplitude track, an ffmpeg concat list with per-frame durations, and a YAML report.
package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/pkg/logger"
)

const (
	bitDepth     = 16
	pcmFormat    = 1
	wavChunkSize = 1 << 16
)

// Exporter writes artifacts into one directory.
type Exporter struct {
	dir          string
	sampleRate   int
	framePattern string
	log          logger.Logger
}

// New creates an Exporter rooted at dir. The directory is created if needed.
func New(dir string, opts ...Option) (*Exporter, error) {
	e := &Exporter{
		dir:          dir,
		sampleRate:   30000,
		framePattern: "frame_%06d.png",
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidOption, e.sampleRate)
	}
	if !strings.Contains(e.framePattern, "%") {
		return nil, fmt.Errorf("%w: frame pattern %q has no verb", ErrInvalidOption, e.framePattern)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return e, nil
}

// Dir returns the output directory.
func (e *Exporter) Dir() string { return e.dir }

// WriteWAV writes the amplitude of every record as mono 16-bit PCM.
func (e *Exporter) WriteWAV(ctx context.Context, name string, records []model.SyncedRecord) (path string, err error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}
	path = filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating wav: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing wav: %w", cErr)
		}
	}()

	enc := wav.NewEncoder(f, e.sampleRate, bitDepth, 1, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: e.sampleRate},
		Data:           make([]int, 0, min(len(records), wavChunkSize)),
		SourceBitDepth: bitDepth,
	}
	for start := 0; start < len(records); start += wavChunkSize {
		if err = ctx.Err(); err != nil {
			return "", err
		}
		end := min(start+wavChunkSize, len(records))
		buf.Data = buf.Data[:0]
		for _, r := range records[start:end] {
			buf.Data = append(buf.Data, int(r.Amplitude))
		}
		if err = enc.Write(buf); err != nil {
			return "", fmt.Errorf("encoding wav samples: %w", err)
		}
	}
	if err = enc.Close(); err != nil {
		return "", fmt.Errorf("finalizing wav: %w", err)
	}

	e.log.Info(ctx, "wrote audio track",
		logger.String("path", path),
		logger.String("samples", humanize.Comma(int64(len(records)))),
		logger.Int("sample_rate", e.sampleRate))
	return path, nil
}

// FrameSpan is one frame's time on screen.
type FrameSpan struct {
	Segment         string
	RelativeFrameID int64
	Start           int64 // device timestamp of the first sample attributed to the frame
	Ticks           int64 // device ticks until the next frame starts
}

// FrameSpans collapses records into consecutive frames. Records without a frame are
// skipped. A frame is identified by its segment and relative id, so equal ids in
// neighbouring segments stay apart. The last frame has no successor, so it carries
// zero ticks.
func FrameSpans(records []model.SyncedRecord) []FrameSpan {
	var spans []FrameSpan
	for _, r := range records {
		if r.RelativeFrameID == nil {
			continue
		}
		n := len(spans)
		if n > 0 && spans[n-1].RelativeFrameID == *r.RelativeFrameID && spans[n-1].Segment == r.Segment {
			continue
		}
		if n > 0 {
			spans[n-1].Ticks = r.Timestamp - spans[n-1].Start
		}
		spans = append(spans, FrameSpan{Segment: r.Segment, RelativeFrameID: *r.RelativeFrameID, Start: r.Timestamp})
	}
	return spans
}

// WriteConcatList writes an ffmpeg concat demuxer script that shows each frame image
// for as long as the device clock says it was current. ticksPerSecond converts
// device ticks to seconds. The last frame is repeated without a duration, which is
// how the demuxer expects a variable frame rate list to end.
func (e *Exporter) WriteConcatList(ctx context.Context, name string, records []model.SyncedRecord, ticksPerSecond int64) (path string, frames int, err error) {
	if ticksPerSecond <= 0 {
		return "", 0, fmt.Errorf("%w: ticks per second %d", ErrInvalidOption, ticksPerSecond)
	}
	spans := FrameSpans(records)
	if len(spans) == 0 {
		return "", 0, ErrNoFrames
	}

	path = filepath.Join(e.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating concat list: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing concat list: %w", cErr)
		}
	}()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "ffconcat version 1.0")
	for _, s := range spans[:len(spans)-1] {
		seconds := float64(s.Ticks) / float64(ticksPerSecond)
		fmt.Fprintf(w, "file '%s'\nduration %s\n", e.FrameFile(s.Segment, s.RelativeFrameID), strconv.FormatFloat(seconds, 'f', -1, 64))
	}
	last := spans[len(spans)-1]
	fmt.Fprintf(w, "file '%s'\n", e.FrameFile(last.Segment, last.RelativeFrameID))
	if err = w.Flush(); err != nil {
		return "", 0, fmt.Errorf("writing concat list: %w", err)
	}

	e.log.Info(ctx, "wrote frame list", logger.String("path", path), logger.Int("frames", len(spans)))
	return path, len(spans), nil
}

// FrameFile names the image of a relative frame. Frames of a named segment live
// in a directory of that name, since relative ids restart in every segment.
func (e *Exporter) FrameFile(segment string, relativeFrameID int64) string {
	name := fmt.Sprintf(e.framePattern, relativeFrameID)
	if segment == "" {
		return name
	}
	return filepath.ToSlash(filepath.Join(segment, name))
}
