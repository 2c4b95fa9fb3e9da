package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/videosync/internal/domain/model"
	"github.com/okian/videosync/pkg/logger"
)

// Batch writes a job's artifacts under hidden temporary names. Nothing appears
// under the final names until Commit; Abort removes whatever was staged.
// A nil Batch is a no-op.
type Batch struct {
	e     *Exporter
	tag   string
	temps []string // every temporary name handed out, for cleanup
	ready []string // final names whose temporary file is complete
}

// Begin starts a batch. The tag keeps temporary names of concurrent jobs apart.
func (e *Exporter) Begin(tag string) *Batch {
	return &Batch{e: e, tag: tag}
}

func (b *Batch) temp(name string) string { return "." + name + "." + b.tag + ".tmp" }

func (b *Batch) stage(name string) string {
	t := b.temp(name)
	b.temps = append(b.temps, t)
	return t
}

func (b *Batch) done(ctx context.Context, name string, err error) (string, error) {
	if err != nil {
		b.remove(ctx, b.temp(name))
		return "", err
	}
	b.ready = append(b.ready, name)
	return filepath.Join(b.e.dir, name), nil
}

// WriteWAV stages Exporter.WriteWAV. The returned path is the final one.
func (b *Batch) WriteWAV(ctx context.Context, name string, records []model.SyncedRecord) (string, error) {
	_, err := b.e.WriteWAV(ctx, b.stage(name), records)
	return b.done(ctx, name, err)
}

// WriteConcatList stages Exporter.WriteConcatList.
func (b *Batch) WriteConcatList(ctx context.Context, name string, records []model.SyncedRecord, ticksPerSecond int64) (string, int, error) {
	_, frames, err := b.e.WriteConcatList(ctx, b.stage(name), records, ticksPerSecond)
	path, err := b.done(ctx, name, err)
	if err != nil {
		return "", 0, err
	}
	return path, frames, nil
}

// WriteReport stages Exporter.WriteReport.
func (b *Batch) WriteReport(ctx context.Context, name string, r Report) (string, error) {
	_, err := b.e.WriteReport(ctx, b.stage(name), r)
	return b.done(ctx, name, err)
}

// Commit renames the staged artifacts to their final names in write order. If a
// rename fails, the artifacts already published and the remaining temporary files
// are removed, so a job leaves all of its artifacts or none.
func (b *Batch) Commit(ctx context.Context) error {
	if b == nil {
		return nil
	}
	for i, name := range b.ready {
		if err := os.Rename(filepath.Join(b.e.dir, b.temp(name)), filepath.Join(b.e.dir, name)); err != nil {
			for _, published := range b.ready[:i] {
				b.remove(ctx, published)
			}
			b.Abort(ctx)
			return fmt.Errorf("publishing %s: %w", name, err)
		}
	}
	b.e.log.Debug(ctx, "artifacts published", logger.Int("files", len(b.ready)), logger.String("dir", b.e.dir))
	b.temps, b.ready = nil, nil
	return nil
}

// Abort removes every temporary file of the batch. It is safe after Commit.
func (b *Batch) Abort(ctx context.Context) {
	if b == nil {
		return
	}
	for _, t := range b.temps {
		b.remove(ctx, t)
	}
	b.temps, b.ready = nil, nil
}

func (b *Batch) remove(ctx context.Context, name string) {
	path := filepath.Join(b.e.dir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		b.e.log.Warn(ctx, "removing artifact", logger.String("path", path), logger.Error(err))
	}
}
