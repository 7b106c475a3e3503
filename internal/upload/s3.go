package upload

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/forensant/triage-collector/internal/buffer"
	"github.com/forensant/triage-collector/pkg/errors"
	"github.com/forensant/triage-collector/pkg/retry"
)

// S3Config tunes the multipart buffering and retry behavior of an
// S3Sink. Zero values are replaced by DefaultS3Config's values.
type S3Config struct {
	BufferSize         int   // window before a part is flushed; default 8 MiB, floor 5 MiB per S3
	PutObjectThreshold int64 // objects below this use PutObject instead of multipart; default 50 MiB
	PartConcurrency    int   // worker goroutines draining the part channel; default 4
	PartChannelCap     int   // bounded channel capacity; default 100
	RetryAttempts      int   // default 3
	RetryInitialDelay  time.Duration // default 250ms, doubling each attempt
}

const (
	defaultBufferSize         = 8 * 1024 * 1024
	minS3PartSize              = 5 * 1024 * 1024
	defaultPutObjectThreshold = 50 * 1024 * 1024
	defaultPartConcurrency    = 4
	defaultPartChannelCap     = 100
)

// DefaultS3Config returns the collector's default part-buffering and
// concurrency settings.
func DefaultS3Config() S3Config {
	return S3Config{
		BufferSize:         defaultBufferSize,
		PutObjectThreshold: defaultPutObjectThreshold,
		PartConcurrency:    defaultPartConcurrency,
		PartChannelCap:     defaultPartChannelCap,
		RetryAttempts:      3,
		RetryInitialDelay:  250 * time.Millisecond,
	}
}

func (c S3Config) withDefaults() S3Config {
	if c.BufferSize < minS3PartSize {
		c.BufferSize = defaultBufferSize
	}
	if c.PutObjectThreshold <= 0 {
		c.PutObjectThreshold = defaultPutObjectThreshold
	}
	if c.PartConcurrency <= 0 {
		c.PartConcurrency = defaultPartConcurrency
	}
	if c.PartChannelCap <= 0 {
		c.PartChannelCap = defaultPartChannelCap
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = 250 * time.Millisecond
	}
	return c
}

func (c S3Config) retryer() *retry.Retryer {
	return retry.New(retry.Config{
		MaxAttempts:  c.RetryAttempts,
		InitialDelay: c.RetryInitialDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})
}

// NewS3Sink picks PutObject or multipart upload based on knownSize:
// a non-negative size under cfg.PutObjectThreshold uses the single-shot
// path, anything else (including an unknown size, passed as -1) uses
// multipart with windowed buffering.
func NewS3Sink(ctx context.Context, client *s3.Client, bucket, key string, knownSize int64, cfg S3Config) (Sink, error) {
	cfg = cfg.withDefaults()
	if knownSize >= 0 && knownSize < cfg.PutObjectThreshold {
		return &s3PutSink{client: client, bucket: bucket, key: key, cfg: cfg}, nil
	}
	return newS3MultipartSink(ctx, client, bucket, key, cfg)
}

// s3PutSink buffers the whole object in memory and uploads it with a
// single PutObject call on Complete, for objects under the threshold.
type s3PutSink struct {
	client *s3.Client
	bucket, key string
	cfg    S3Config
	mu     sync.Mutex
	buf    bytes.Buffer
	written uint64
}

func (s *s3PutSink) Write(_ context.Context, p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.buf.Write(p)
	atomic.AddUint64(&s.written, uint64(n))
	return n, err
}

func (s *s3PutSink) Complete(ctx context.Context) error {
	s.mu.Lock()
	data := s.buf.Bytes()
	s.mu.Unlock()

	err := s.cfg.retryer().DoWithContext(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key),
			Body:   bytes.NewReader(data),
		})
		return wrapS3Error(err, "PutObject")
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeUploadRetriesExhausted, "PutObject failed after retries").
			WithComponent("upload").WithOperation("Complete").WithContext("key", s.key).WithCause(err)
	}
	return nil
}

func (s *s3PutSink) Abort(context.Context) error {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
	return nil
}

func (s *s3PutSink) BytesWritten() uint64 {
	return atomic.LoadUint64(&s.written)
}

// partTask is one buffered window queued for upload.
type partTask struct {
	partNumber int32
	data       []byte
}

// s3MultipartSink streams into an S3 multipart upload: Write buffers
// into cfg.BufferSize windows, each flushed to a bounded channel that
// cfg.PartConcurrency workers drain, retrying each part independently.
// The central directory of completed parts is assembled by part number
// at Complete time, not by completion order.
type s3MultipartSink struct {
	client   *s3.Client
	bucket, key, uploadID string
	cfg      S3Config

	bufMu          sync.Mutex
	buf            []byte
	nextPartNumber int32

	partCh    chan partTask
	closeOnce sync.Once
	wg        sync.WaitGroup

	resultMu  sync.Mutex
	completed map[int32]types.CompletedPart
	firstErr  error

	written uint64
}

func newS3MultipartSink(ctx context.Context, client *s3.Client, bucket, key string, cfg S3Config) (*s3MultipartSink, error) {
	out, err := client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConnectionFailed, "failed to start S3 multipart upload").
			WithComponent("upload").WithOperation("NewS3Sink").WithContext("key", key).WithCause(err)
	}

	sink := &s3MultipartSink{
		client:         client,
		bucket:         bucket,
		key:            key,
		uploadID:       aws.ToString(out.UploadId),
		cfg:            cfg,
		nextPartNumber: 1,
		partCh:         make(chan partTask, cfg.PartChannelCap),
		completed:      make(map[int32]types.CompletedPart),
	}

	for i := 0; i < cfg.PartConcurrency; i++ {
		sink.wg.Add(1)
		go sink.worker()
	}

	return sink, nil
}

func (s *s3MultipartSink) worker() {
	defer s.wg.Done()
	for task := range s.partCh {
		s.uploadPart(task)
	}
}

func (s *s3MultipartSink) uploadPart(task partTask) {
	defer buffer.PutBuffer(task.data)

	var etag string
	err := s.cfg.retryer().DoWithContext(context.Background(), func(ctx context.Context) error {
		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(s.key),
			UploadId:   aws.String(s.uploadID),
			PartNumber: aws.Int32(task.partNumber),
			Body:       bytes.NewReader(task.data),
		})
		if err != nil {
			return wrapS3Error(err, "UploadPart")
		}
		etag = aws.ToString(out.ETag)
		return nil
	})

	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	if err != nil {
		if s.firstErr == nil {
			s.firstErr = errors.NewError(errors.ErrCodeUploadRetriesExhausted, "S3 part upload failed after retries").
				WithComponent("upload").WithOperation("uploadPart").
				WithContext("key", s.key).WithCause(err)
		}
		return
	}
	s.completed[task.partNumber] = types.CompletedPart{
		ETag:       aws.String(etag),
		PartNumber: aws.Int32(task.partNumber),
	}
}

func (s *s3MultipartSink) Write(ctx context.Context, p []byte) (int, error) {
	if err := s.pendingErr(); err != nil {
		return 0, err
	}

	s.bufMu.Lock()
	defer s.bufMu.Unlock()

	s.buf = append(s.buf, p...)
	for len(s.buf) >= s.cfg.BufferSize {
		chunk := s.buf[:s.cfg.BufferSize]
		s.buf = s.buf[s.cfg.BufferSize:]
		if err := s.enqueue(ctx, chunk); err != nil {
			return 0, err
		}
	}

	atomic.AddUint64(&s.written, uint64(len(p)))
	return len(p), nil
}

// enqueue copies chunk (callers reuse their backing array) and sends it
// to the part channel, blocking if the channel is full so the caller
// feels backpressure.
func (s *s3MultipartSink) enqueue(ctx context.Context, chunk []byte) error {
	copied := buffer.GetBuffer(len(chunk))
	copy(copied, chunk)

	partNumber := s.nextPartNumber
	s.nextPartNumber++

	select {
	case s.partCh <- partTask{partNumber: partNumber, data: copied}:
		return nil
	case <-ctx.Done():
		return errors.NewError(errors.ErrCodeOperationCanceled, "upload canceled while queuing part").
			WithComponent("upload").WithOperation("enqueue").WithCause(ctx.Err())
	}
}

func (s *s3MultipartSink) pendingErr() error {
	s.resultMu.Lock()
	defer s.resultMu.Unlock()
	return s.firstErr
}

// Complete flushes any buffered remainder as the final part (which may
// be smaller than BufferSize; S3 allows that only for the last part),
// waits for every part to finish, and issues CompleteMultipartUpload
// with parts sorted by part number.
func (s *s3MultipartSink) Complete(ctx context.Context) error {
	s.bufMu.Lock()
	if len(s.buf) > 0 {
		if err := s.enqueue(ctx, s.buf); err != nil {
			s.bufMu.Unlock()
			return err
		}
		s.buf = nil
	}
	s.bufMu.Unlock()

	s.closeOnce.Do(func() { close(s.partCh) })
	s.wg.Wait()

	if err := s.pendingErr(); err != nil {
		return err
	}

	s.resultMu.Lock()
	parts := make([]types.CompletedPart, 0, len(s.completed))
	for _, part := range s.completed {
		parts = append(parts, part)
	}
	s.resultMu.Unlock()
	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeUploadFailed, "CompleteMultipartUpload failed").
			WithComponent("upload").WithOperation("Complete").WithContext("key", s.key).WithCause(err)
	}
	return nil
}

// Abort drains the worker pool and issues AbortMultipartUpload,
// best-effort.
func (s *s3MultipartSink) Abort(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.partCh) })
	s.wg.Wait()

	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key),
		UploadId: aws.String(s.uploadID),
	})
	if err != nil {
		return errors.NewError(errors.ErrCodeUploadFailed, "AbortMultipartUpload failed").
			WithComponent("upload").WithOperation("Abort").WithContext("key", s.key).WithCause(err)
	}
	return nil
}

func (s *s3MultipartSink) BytesWritten() uint64 {
	return atomic.LoadUint64(&s.written)
}

// wrapS3Error marks the error retryable so pkg/retry's Retryer
// actually retries it; the AWS SDK's own error types don't carry the
// TriageError.Retryable flag the retryer checks.
func wrapS3Error(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.NewError(errors.ErrCodeNetworkError, "S3 "+op+" request failed").
		WithComponent("upload").WithOperation(op).WithCause(err).WithRetryable(true)
}
