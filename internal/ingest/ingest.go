// Package ingest loads a directory of transcripts into the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/tuberag/internal/embedding"
	"github.com/agenthands/tuberag/internal/index"
)

type Mode string

const (
	// ModeRebuild clears the index and writes every document in one batch.
	ModeRebuild Mode = "rebuild"
	// ModeIncremental upserts document by document, keeping other records.
	ModeIncremental Mode = "incremental"
)

// Extensions lists the transcript file types picked up from the directory.
var Extensions = []string{".md", ".txt"}

type Options struct {
	Mode        Mode
	Concurrency int
	// Strict turns any skipped document into a failure.
	Strict bool
}

type Skipped struct {
	File   string
	Reason string
	// transient marks an embedder failure that may succeed on a later run.
	transient bool
}

type Report struct {
	Ingested []index.Record
	Skipped  []Skipped
}

type Ingester struct {
	embedder embedding.Embedder
	index    index.Index
	opts     Options
}

func New(e embedding.Embedder, idx index.Index, opts Options) *Ingester {
	if opts.Mode == "" {
		opts.Mode = ModeRebuild
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Ingester{embedder: embedding.Validate(e), index: idx, opts: opts}
}

// VideoID is the file name without its extension.
func VideoID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Title humanises a video id: underscores and dashes become spaces.
func Title(videoID string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(videoID)
}

// Files returns the transcript files in dir, sorted by name.
func Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range Extensions {
			if ext == want {
				files = append(files, filepath.Join(dir, e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

type outcome struct {
	record *index.Record
	skip   *Skipped
}

func (in *Ingester) Run(ctx context.Context, dir string) (*Report, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}

	outcomes := make([]outcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Concurrency)
	for i, path := range files {
		g.Go(func() error {
			rec, skip, err := in.load(gctx, path)
			if err != nil {
				return err
			}
			if skip != nil {
				if err := in.skip(gctx, skip); err != nil {
					return err
				}
				outcomes[i] = outcome{skip: skip}
				return nil
			}
			outcomes[i] = outcome{record: rec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Files are sorted, so the first file claiming a video_id wins.
	report := &Report{}
	seen := make(map[string]string, len(outcomes))
	for i, o := range outcomes {
		switch {
		case o.record != nil:
			if first, ok := seen[o.record.VideoID]; ok {
				skip := &Skipped{File: files[i], Reason: fmt.Sprintf("duplicate video_id %q (already from %s)", o.record.VideoID, first)}
				if err := in.skip(ctx, skip); err != nil {
					return nil, err
				}
				report.Skipped = append(report.Skipped, *skip)
				continue
			}
			seen[o.record.VideoID] = files[i]
			report.Ingested = append(report.Ingested, *o.record)
		case o.skip != nil:
			report.Skipped = append(report.Skipped, *o.skip)
		}
	}

	if err := in.write(ctx, report); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "ingestion finished",
		"dir", dir,
		"mode", in.opts.Mode,
		"ingested", len(report.Ingested),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (in *Ingester) skip(ctx context.Context, s *Skipped) error {
	slog.WarnContext(ctx, "skipping transcript", "file", s.File, "reason", s.Reason)
	if in.opts.Strict {
		return fmt.Errorf("%s: %s", s.File, s.Reason)
	}
	return nil
}

// load reads and embeds one file. A non-nil Skipped means leave it out.
func (in *Ingester) load(ctx context.Context, path string) (*index.Record, *Skipped, error) {
	id := VideoID(path)
	if id == "" || strings.ContainsFunc(id, unicode.IsSpace) {
		return nil, &Skipped{File: path, Reason: fmt.Sprintf("video_id %q is empty or contains whitespace", id)}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Skipped{File: path, Reason: fmt.Sprintf("read failed: %v", err)}, nil
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, &Skipped{File: path, Reason: "empty transcript"}, nil
	}

	vec, err := in.embedder.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, err
		}
		return nil, &Skipped{
			File:      path,
			Reason:    fmt.Sprintf("embedding failed: %v", err),
			transient: !errors.Is(err, embedding.ErrInvalidVector),
		}, nil
	}

	return &index.Record{VideoID: id, Title: Title(id), Text: text, Embedding: vec}, nil, nil
}

// ErrRebuildAborted is returned when a rebuild would drop transcripts that
// are still on disk. The index is left untouched.
var ErrRebuildAborted = errors.New("rebuild aborted")

func checkRebuild(report *Report) error {
	var failed []string
	for _, s := range report.Skipped {
		if s.transient {
			failed = append(failed, filepath.Base(s.File))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: embedding failed for %s; index left unchanged", ErrRebuildAborted, strings.Join(failed, ", "))
	}
	if len(report.Ingested) == 0 && len(report.Skipped) > 0 {
		return fmt.Errorf("%w: all %d transcripts were skipped; index left unchanged", ErrRebuildAborted, len(report.Skipped))
	}
	return nil
}

func (in *Ingester) write(ctx context.Context, report *Report) error {
	switch in.opts.Mode {
	case ModeRebuild:
		if err := checkRebuild(report); err != nil {
			return err
		}
		if err := in.index.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
		if len(report.Ingested) == 0 {
			return nil
		}
		if err := in.index.Upsert(ctx, report.Ingested); err != nil {
			return fmt.Errorf("failed to write transcripts: %w", err)
		}
	case ModeIncremental:
		for _, rec := range report.Ingested {
			if err := in.index.Upsert(ctx, []index.Record{rec}); err != nil {
				return fmt.Errorf("failed to write %s: %w", rec.VideoID, err)
			}
		}
	default:
		return fmt.Errorf("unsupported ingest mode: %s", in.opts.Mode)
	}
	return nil
}

// Summary renders the report the way the CLI prints it: a count line and a
// preview of the first rows.
func (r *Report) Summary(preview int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ingested %d transcripts\n", len(r.Ingested))
	if preview > len(r.Ingested) {
		preview = len(r.Ingested)
	}
	for _, rec := range r.Ingested[:preview] {
		fmt.Fprintf(&b, "  %-30s %-30s %s\n", rec.VideoID, rec.Title, snippet(rec.Text, 60))
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "Skipped %s: %s\n", s.File, s.Reason)
	}
	return b.String()
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
