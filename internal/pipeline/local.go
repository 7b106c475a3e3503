package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forensant/triage-collector/internal/metrics"
	"github.com/forensant/triage-collector/internal/zipstream"
	"github.com/forensant/triage-collector/pkg/errors"
)

// localCompressionChunkSize is the copy-buffer size shared by all
// worker goroutines.
const localCompressionChunkSize = 512 * 1024

// LocalOptions configures Local.
type LocalOptions struct {
	// Workers bounds the compression worker pool. Zero selects a
	// default capped at 8 regardless of host CPU count, since local
	// compression is CPU-bound and wider pools mostly add contention
	// on the shared-writer mutex without shortening wall time.
	Workers int
}

func (o LocalOptions) withDefaults() LocalOptions {
	if o.Workers <= 0 {
		o.Workers = defaultLocalWorkers()
	}
	return o
}

func defaultLocalWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

type localJob struct {
	fullPath string
	relPath  string
	size     int64
	modTime  time.Time
}

// Local compresses every file and directory under treeRoot into a
// single ZIP at archivePath. Multiple compression workers share the
// output file under a mutex held only across one entry's
// CreateFile->Write->Close span; directories are written after every
// file worker has finished, avoiding any entry-ordering dependency
// between the two passes.
func Local(ctx context.Context, treeRoot, archivePath string, opts LocalOptions, metricsCollector *metrics.Collector) (*LocalResult, error) {
	opts = opts.withDefaults()
	start := time.Now()

	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeOpenFailed, "failed to create local archive").
			WithComponent("pipeline").WithOperation("Local").WithContext("archive_path", archivePath).WithCause(err)
	}
	defer archiveFile.Close()

	zw := zipstream.NewWriter(archiveFile)

	files, dirs, err := walkTree(treeRoot)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeCollectionFailed, "failed to walk output tree").
			WithComponent("pipeline").WithOperation("Local").WithContext("tree_root", treeRoot).WithCause(err)
	}

	result := &LocalResult{ArchivePath: archivePath}

	jobs := make(chan localJob, opts.Workers*2)
	var writerMu sync.Mutex
	var resultMu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := writeLocalFile(ctx, zw, &writerMu, job); err != nil {
					resultMu.Lock()
					result.Errors = append(result.Errors, FileError{Path: job.relPath, Err: err})
					resultMu.Unlock()
					continue
				}
				resultMu.Lock()
				result.FilesWritten++
				resultMu.Unlock()
			}
		}()
	}

	if metricsCollector != nil {
		metricsCollector.UpdateActiveWorkers(opts.Workers)
	}

feedLoop:
	for _, f := range files {
		select {
		case jobs <- f:
		case <-ctx.Done():
			break feedLoop
		}
	}
	close(jobs)
	wg.Wait()

	sort.Strings(dirs)
	for _, dir := range dirs {
		if err := zw.AddDirectory(dir, time.Now()); err != nil {
			result.Errors = append(result.Errors, FileError{Path: dir, Err: err})
			continue
		}
		result.DirsWritten++
	}

	if err := zw.Finish(); err != nil {
		return result, errors.NewError(errors.ErrCodeZipEncodeError, "failed to finalize local archive").
			WithComponent("pipeline").WithOperation("Local").WithCause(err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func writeLocalFile(ctx context.Context, zw *zipstream.Writer, mu *sync.Mutex, job localJob) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src, err := os.Open(job.fullPath)
	if err != nil {
		return err
	}
	defer src.Close()

	method := zipstream.SelectMethod(job.relPath, job.size)

	mu.Lock()
	defer mu.Unlock()

	fw, err := zw.CreateFile(job.relPath, job.modTime, method)
	if err != nil {
		return err
	}

	buf := make([]byte, localCompressionChunkSize)
	if _, err := io.CopyBuffer(fw, src, buf); err != nil {
		return err
	}
	return fw.Close()
}

// walkTree separates the output tree into file jobs and directory
// names (posix-separated, relative to treeRoot), leaving treeRoot
// itself out of the directory list since it is the archive's implicit
// top level.
func walkTree(treeRoot string) ([]localJob, []string, error) {
	var files []localJob
	var dirs []string

	err := filepath.WalkDir(treeRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == treeRoot {
			return nil
		}

		rel, err := filepath.Rel(treeRoot, path)
		if err != nil {
			return err
		}
		rel = strings.ReplaceAll(rel, `\`, "/")

		if d.IsDir() {
			dirs = append(dirs, rel+"/")
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		files = append(files, localJob{
			fullPath: path,
			relPath:  rel,
			size:     info.Size(),
			modTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return files, dirs, nil
}
