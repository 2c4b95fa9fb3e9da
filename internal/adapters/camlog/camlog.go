// Package camlog reads camera capture-session logs. A log is a JSON document with
// one column per camera: "serials" names the cameras and every per-tick array
// ("chunk_serial_data", "frame_id", "timestamps") holds one row per capture tick
// with one value per camera.
package camlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/okian/videosync/internal/domain/model"
)

// cameraID accepts serials written as JSON numbers or strings.
type cameraID string

func (c *cameraID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = cameraID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = cameraID(n.String())
	return nil
}

type document struct {
	Serials    []cameraID        `json:"serials"`
	Chunks     [][]int64         `json:"chunk_serial_data"`
	FrameIDs   [][]int64         `json:"frame_id"`
	Timestamps []json.RawMessage `json:"timestamps"`
}

// Session is a decoded capture-session log.
type Session struct {
	Path    string
	Started time.Time // from the file name, zero if it carries no timestamp

	cameras []string
	chunks  [][]int64
	frames  [][]int64
}

// Open reads and validates the session log at path.
func Open(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	s.Started, _ = SessionTime(path)
	return s, nil
}

// Parse decodes a session log.
func Parse(r io.Reader) (*Session, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
	}
	if len(doc.Serials) == 0 {
		return nil, fmt.Errorf("%w: no camera serials", ErrMalformedLog)
	}
	if len(doc.Chunks) != len(doc.FrameIDs) {
		return nil, fmt.Errorf("%w: %d chunk serial rows but %d frame id rows", ErrMalformedLog, len(doc.Chunks), len(doc.FrameIDs))
	}
	if doc.Timestamps != nil && len(doc.Timestamps) != len(doc.Chunks) {
		return nil, fmt.Errorf("%w: %d timestamp rows but %d chunk serial rows", ErrMalformedLog, len(doc.Timestamps), len(doc.Chunks))
	}

	width := len(doc.Serials)
	for i := range doc.Chunks {
		if len(doc.Chunks[i]) != width || len(doc.FrameIDs[i]) != width {
			return nil, fmt.Errorf("%w: row %d does not have %d columns", ErrMalformedLog, i, width)
		}
		for _, f := range doc.FrameIDs[i] {
			if f < 0 || f > math.MaxUint16 {
				return nil, fmt.Errorf("%w: frame id %d at row %d out of range", ErrMalformedLog, f, i)
			}
		}
	}

	s := &Session{
		cameras: make([]string, width),
		chunks:  doc.Chunks,
		frames:  doc.FrameIDs,
	}
	for i, c := range doc.Serials {
		s.cameras[i] = string(c)
	}
	return s, nil
}

// Cameras returns the camera serials in column order.
func (s *Session) Cameras() []string {
	return append([]string(nil), s.cameras...)
}

// Len returns the number of capture ticks.
func (s *Session) Len() int { return len(s.chunks) }

func (s *Session) column(camera string) (int, error) {
	for i, c := range s.cameras {
		if c == camera {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrCameraNotFound, camera)
}

// Camera returns the raw (chunk serial, frame id) rows of one camera in capture order.
func (s *Session) Camera(camera string) ([]model.CameraLogRow, error) {
	col, err := s.column(camera)
	if err != nil {
		return nil, err
	}
	rows := make([]model.CameraLogRow, len(s.chunks))
	for i := range s.chunks {
		rows[i] = model.CameraLogRow{
			ChunkSerial: s.chunks[i][col],
			FrameID:     uint16(s.frames[i][col]),
		}
	}
	return rows, nil
}

// SerialRange returns the span of raw chunk serials at or above threshold. Values
// below it are sentinels and do not bound the segment.
func (s *Session) SerialRange(camera string, threshold int64) (model.SerialRange, error) {
	col, err := s.column(camera)
	if err != nil {
		return model.SerialRange{}, err
	}
	r := model.SerialRange{From: math.MaxInt64, To: math.MinInt64}
	for i := range s.chunks {
		v := s.chunks[i][col]
		if v < threshold {
			continue
		}
		r.From = min(r.From, v)
		r.To = max(r.To, v)
	}
	return r, nil
}

var sessionStamp = regexp.MustCompile(`_(\d{8}_\d{6})$`)

// SessionTime extracts the start time encoded in a session file name of the form
// description_YYYYMMDD_HHMMSS.json.
func SessionTime(path string) (time.Time, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := sessionStamp.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102_150405", m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SortByTime orders session log paths by the time in their names. Names without a
// timestamp sort last, by name.
func SortByTime(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		ti, oki := SessionTime(paths[i])
		tj, okj := SessionTime(paths[j])
		switch {
		case oki && okj && !ti.Equal(tj):
			return ti.Before(tj)
		case oki != okj:
			return oki
		default:
			return paths[i] < paths[j]
		}
	})
}

// Glob returns the session logs in dir, ordered by time.
func Glob(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing session logs: %w", err)
	}
	SortByTime(paths)
	return paths, nil
}

// Write encodes a session log with one column per camera. Every column must have
// the same length; tick i gets timestamp i.
func Write(w io.Writer, cameras []string, columns [][]model.CameraLogRow) error {
	if len(cameras) == 0 || len(cameras) != len(columns) {
		return fmt.Errorf("%w: %d cameras for %d columns", ErrMalformedLog, len(cameras), len(columns))
	}
	n := len(columns[0])
	doc := struct {
		Serials    []string  `json:"serials"`
		Chunks     [][]int64 `json:"chunk_serial_data"`
		FrameIDs   [][]int64 `json:"frame_id"`
		Timestamps [][]int64 `json:"timestamps"`
	}{
		Serials:    cameras,
		Chunks:     make([][]int64, n),
		FrameIDs:   make([][]int64, n),
		Timestamps: make([][]int64, n),
	}
	for i := 0; i < n; i++ {
		doc.Chunks[i] = make([]int64, len(columns))
		doc.FrameIDs[i] = make([]int64, len(columns))
		doc.Timestamps[i] = make([]int64, len(columns))
		for c, col := range columns {
			if len(col) != n {
				return fmt.Errorf("%w: column %d has %d rows, want %d", ErrMalformedLog, c, len(col), n)
			}
			doc.Chunks[i][c] = col[i].ChunkSerial
			doc.FrameIDs[i][c] = int64(col[i].FrameID)
			doc.Timestamps[i][c] = int64(i)
		}
	}
	return json.NewEncoder(w).Encode(doc)
}
