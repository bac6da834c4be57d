// Package sink writes mapping results to stdout, a local file or a blob
// bucket (file://, s3://, gs://).
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/logging"
	"github.com/rs/zerolog"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // gs:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// Stdout is the target selecting the standard output writer.
const Stdout = "-"

// ErrExists is returned when the target object exists and Overwrite is off.
var ErrExists = errors.New("output already exists")

// Options control a single write.
type Options struct {
	// Overwrite replaces an existing object.
	Overwrite bool

	// ContentType is stored with bucket objects.
	ContentType string
}

// Target is a parsed output location.
type Target struct {
	// Stdout is set for "-" or an empty target.
	Stdout bool

	// BucketURL opens the bucket, query parameters included.
	BucketURL string

	// Key is the object key within the bucket.
	Key string

	// Dir is created before writing a local file.
	Dir string
}

// ParseTarget resolves target. A plain path becomes a file:// bucket on its
// directory.
func ParseTarget(target string) (Target, error) {
	if target == "" || target == Stdout {
		return Target{Stdout: true}, nil
	}

	if !strings.Contains(target, "://") {
		abs, err := filepath.Abs(target)
		if err != nil {
			return Target{}, fmt.Errorf("resolve output path %s: %w", target, err)
		}
		dir := filepath.Dir(abs)
		return Target{
			BucketURL: "file://" + filepath.ToSlash(dir) + "?no_tmp_dir=true",
			Key:       filepath.Base(abs),
			Dir:       dir,
		}, nil
	}

	u, err := url.Parse(target)
	if err != nil {
		return Target{}, fmt.Errorf("parse output url %s: %w", target, err)
	}

	var bucket, key string
	switch u.Scheme {
	case "file":
		bucket, key = path.Dir(u.Path), path.Base(u.Path)
		u.Path = bucket
	default:
		key = strings.TrimPrefix(u.Path, "/")
		u.Path = ""
	}
	if key == "" || key == "." || key == "/" {
		return Target{}, fmt.Errorf("output url %s has no object key", target)
	}
	return Target{BucketURL: u.String(), Key: key}, nil
}

// Sink writes results. The zero value is not usable; use New.
type Sink struct {
	stdout io.Writer
	logger zerolog.Logger
}

// New creates a sink writing the Stdout target to w.
func New(w io.Writer) *Sink {
	if w == nil {
		w = os.Stdout
	}
	return &Sink{
		stdout: w,
		logger: logging.NewLogger("sink"),
	}
}

// Write stores data at target.
func (s *Sink) Write(ctx context.Context, target string, data []byte, opts Options) error {
	t, err := ParseTarget(target)
	if err != nil {
		return err
	}
	if t.Stdout {
		if _, err := s.stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	if t.Dir != "" {
		if err := os.MkdirAll(t.Dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", t.Dir, err)
		}
	}

	bucket, err := blob.OpenBucket(ctx, t.BucketURL)
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", t.BucketURL, err)
	}
	defer bucket.Close()

	if !opts.Overwrite {
		exists, err := bucket.Exists(ctx, t.Key)
		if err != nil {
			return fmt.Errorf("check %s: %w", t.Key, err)
		}
		if exists {
			return fmt.Errorf("%w: %s (use overwrite to replace it)", ErrExists, target)
		}
	}

	w, err := bucket.NewWriter(ctx, t.Key, &blob.WriterOptions{ContentType: opts.ContentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", t.Key, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", t.Key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", t.Key, err)
	}

	s.logger.Info().
		Str("target", target).
		Int("bytes", len(data)).
		Msg("Result written")
	return nil
}

// PartTarget names part n (1-based) of a multi-part result by inserting "-n"
// before the extension of the object name. Query parameters are kept.
func PartTarget(target string, n int) string {
	name, query := target, ""
	if strings.Contains(target, "://") {
		if i := strings.IndexByte(target, '?'); i >= 0 {
			name, query = target[:i], target[i:]
		}
	}
	ext := path.Ext(path.Base(filepath.ToSlash(name)))
	return fmt.Sprintf("%s-%d%s%s", strings.TrimSuffix(name, ext), n, ext, query)
}

// WriteParts stores independent documents. A single part goes to target
// itself; several parts go to PartTarget(target, 1..n) and cannot be written
// to stdout.
func (s *Sink) WriteParts(ctx context.Context, target string, parts [][]byte, opts Options) error {
	if len(parts) == 1 {
		return s.Write(ctx, target, parts[0], opts)
	}
	if target == "" || target == Stdout {
		return fmt.Errorf("result has %d parts: choose an output file or bucket URL", len(parts))
	}
	for i, part := range parts {
		if err := s.Write(ctx, PartTarget(target, i+1), part, opts); err != nil {
			return err
		}
	}
	return nil
}
