package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forensant/triage-collector/internal/upload"
	"github.com/forensant/triage-collector/internal/zipstream"
	"github.com/forensant/triage-collector/pkg/errors"
)

// streamingCopyBufferSize is the per-file copy buffer for streaming
// mode; unlike local mode there is no mutex contention to amortize, so
// a plain 64 KiB buffer is enough.
const streamingCopyBufferSize = 64 * 1024

// sinkWriter adapts an upload.Sink to io.Writer so zipstream.Writer can
// encode directly into it without knowing about contexts.
type sinkWriter struct {
	ctx  context.Context
	sink upload.Sink
}

func (w *sinkWriter) Write(p []byte) (int, error) {
	return w.sink.Write(w.ctx, p)
}

// Streaming walks treeRoot, feeding each file and directory into a
// zipstream.Writer that encodes directly into archiveSink. Once the
// archive upload has completed it also uploads the raw bytes of
// summaryRelPath (expected to already exist under treeRoot, written by
// C10 before this call) to summarySink, so the summary document is
// inspectable without downloading the whole archive. If the archive
// fails, the summary is not uploaded.
//
// If the walk or encode fails partway through, archiveSink.Abort is
// called; the original failure stays the returned error's wrapped
// cause, and an abort failure is attached as its "abort_error" context
// rather than masking it.
func Streaming(ctx context.Context, treeRoot, summaryRelPath string, archiveSink, summarySink upload.Sink) (*StreamingResult, error) {
	start := time.Now()
	result := &StreamingResult{}

	zw := zipstream.NewWriter(&sinkWriter{ctx: ctx, sink: archiveSink})

	if err := streamTree(ctx, zw, treeRoot, result); err != nil {
		abortErr := archiveSink.Abort(ctx)
		wrapped := errors.NewError(errors.ErrCodeStreamAborted, "streaming archive aborted").
			WithComponent("pipeline").WithOperation("Streaming").WithCause(err)
		if abortErr != nil {
			wrapped = wrapped.WithContext("abort_error", abortErr.Error())
		}
		return result, wrapped
	}

	if err := zw.Finish(); err != nil {
		abortErr := archiveSink.Abort(ctx)
		wrapped := errors.NewError(errors.ErrCodeZipEncodeError, "failed to finalize streaming archive").
			WithComponent("pipeline").WithOperation("Streaming").WithCause(err)
		if abortErr != nil {
			wrapped = wrapped.WithContext("abort_error", abortErr.Error())
		}
		return result, wrapped
	}

	if err := archiveSink.Complete(ctx); err != nil {
		return result, errors.NewError(errors.ErrCodeUploadFailed, "failed to complete archive upload").
			WithComponent("pipeline").WithOperation("Streaming").WithCause(err)
	}
	result.BytesWritten = archiveSink.BytesWritten()

	summaryBytes, err := os.ReadFile(filepath.Join(treeRoot, summaryRelPath))
	if err != nil {
		return result, errors.NewError(errors.ErrCodeOpenFailed, "failed to read collection summary for sibling upload").
			WithComponent("pipeline").WithOperation("Streaming").WithCause(err)
	}

	if _, err := summarySink.Write(ctx, summaryBytes); err != nil {
		abortErr := summarySink.Abort(ctx)
		wrapped := errors.NewError(errors.ErrCodeUploadFailed, "failed to upload collection summary").
			WithComponent("pipeline").WithOperation("Streaming").WithCause(err)
		if abortErr != nil {
			wrapped = wrapped.WithContext("abort_error", abortErr.Error())
		}
		return result, wrapped
	}
	if err := summarySink.Complete(ctx); err != nil {
		return result, errors.NewError(errors.ErrCodeUploadFailed, "failed to complete collection summary upload").
			WithComponent("pipeline").WithOperation("Streaming").WithCause(err)
	}
	result.SummaryBytes = summarySink.BytesWritten()

	result.Duration = time.Since(start)
	return result, nil
}

func streamTree(ctx context.Context, zw *zipstream.Writer, treeRoot string, result *StreamingResult) error {
	buf := make([]byte, streamingCopyBufferSize)

	return filepath.WalkDir(treeRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == treeRoot {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(treeRoot, path)
		if err != nil {
			return err
		}
		rel = strings.ReplaceAll(rel, `\`, "/")

		if d.IsDir() {
			if err := zw.AddDirectory(rel+"/", time.Now()); err != nil {
				return err
			}
			result.DirsWritten++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		fw, err := zw.CreateFile(rel, info.ModTime(), zipstream.SelectMethod(rel, info.Size()))
		if err != nil {
			return err
		}
		if _, err := io.CopyBuffer(fw, src, buf); err != nil {
			return err
		}
		if err := fw.Close(); err != nil {
			return err
		}
		result.FilesWritten++
		return nil
	})
}
