package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/varpipe/varpipe-vcf/stats"
)

// ProcessFunc transforms the lines of one batch into output lines, reporting
// batch-scoped counters. Any error is fatal to the whole run.
type ProcessFunc func(Batch) ([]string, stats.Counters, error)

// Config drives one orchestrated run.
type Config struct {
	// Workers is the total pool size. One worker is permanently the ordered
	// reader, so batch processing uses Workers-1; fewer than 2 refuses to
	// start.
	Workers int

	// TmpDir holds the per-batch artifacts and markers. It must not
	// pre-exist; the run creates and removes it.
	TmpDir string

	// PollInterval bounds the ordered reader's wait between marker checks.
	// Zero means 10ms.
	PollInterval time.Duration

	// OnBatchDone, when set, is called after each batch artifact is
	// published. Hook for adaptive batch sizing.
	OnBatchDone func()
}

func artifactPath(dir string, num int) string {
	return filepath.Join(dir, fmt.Sprintf("batch_%d.vcf.gz", num))
}

func markerPath(dir string, num int) string {
	return filepath.Join(dir, fmt.Sprintf("batch_%d.done", num))
}

// publish writes a file and makes it visible under its final name with an
// atomic rename, so existence implies completeness.
func publish(path string, write func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeArtifact(dir string, b Batch, lines []string) error {
	err := publish(artifactPath(dir, b.Num), func(w io.Writer) error {
		zw := pgzip.NewWriter(w)
		bw := bufio.NewWriter(zw)
		for _, line := range lines {
			if _, err := bw.WriteString(line); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return zw.Close()
	})
	if err != nil {
		return err
	}

	// The marker is published last: the reader keys on it alone.
	return publish(markerPath(dir, b.Num), func(io.Writer) error { return nil })
}

// Run drives the full fan-out/fan-in: one goroutine feeds batches from the
// batcher, Workers-1 goroutines process them into artifacts, and the
// dedicated ordered reader streams artifacts to out strictly in batch order,
// deleting each once consumed. The first failure anywhere cancels the run.
// Output ordering is byte-identical to a single sequential pass regardless
// of worker count.
func Run(ctx context.Context, cfg Config, b *Batcher, process ProcessFunc, out io.Writer, run *stats.Run) (err error) {
	if cfg.Workers < 2 {
		return errors.Errorf("need at least 2 workers (one is the ordered reader), got %d", cfg.Workers)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}

	if _, err := os.Stat(cfg.TmpDir); err == nil {
		return errors.Errorf("temp dir %s already exists", cfg.TmpDir)
	}
	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		return errors.Wrap(err, "creating temp dir")
	}
	defer func() {
		if rmErr := os.RemoveAll(cfg.TmpDir); rmErr != nil && err == nil {
			err = errors.Wrap(rmErr, "removing temp dir")
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	batches := make(chan Batch, cfg.Workers)
	final := make(chan int, 1)

	// Producer: cut batches off the stream and announce the last batch
	// number so the reader knows when it is done.
	g.Go(func() error {
		last := -1
		defer close(batches)
		for {
			batch, err := b.Next()
			if err == io.EOF {
				final <- last
				return nil
			}
			if err != nil {
				return err
			}
			last = batch.Num
			select {
			case batches <- batch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < cfg.Workers-1; i++ {
		g.Go(func() error {
			for batch := range batches {
				lines, counters, err := process(batch)
				if err != nil {
					return errors.Wrapf(err, "batch %d", batch.Num)
				}
				if err := writeArtifact(cfg.TmpDir, batch, lines); err != nil {
					return errors.Wrapf(err, "batch %d artifact", batch.Num)
				}
				run.Record(batch.Num, counters)
				if cfg.OnBatchDone != nil {
					cfg.OnBatchDone()
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			return nil
		})
	}

	// Ordered reader: the one consumer of artifacts.
	g.Go(func() error {
		next := 0
		last := -1
		haveLast := false

		for {
			if haveLast && next > last {
				return nil
			}

			marker := markerPath(cfg.TmpDir, next)
			if _, err := os.Stat(marker); err == nil {
				if err := drainArtifact(cfg.TmpDir, next, out); err != nil {
					return err
				}
				if err := os.Remove(marker); err != nil {
					return err
				}
				next++
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case last = <-final:
				haveLast = true
			case <-time.After(poll):
			}
		}
	})

	return g.Wait()
}

func drainArtifact(dir string, num int, out io.Writer) error {
	path := artifactPath(dir, num)
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	zr, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := io.Copy(out, zr); err != nil {
		f.Close()
		return err
	}
	if err := zr.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
