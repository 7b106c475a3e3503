package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Config_WithDefaultsFillsZeroValues(t *testing.T) {
	cfg := S3Config{}.withDefaults()
	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
	assert.Equal(t, int64(defaultPutObjectThreshold), cfg.PutObjectThreshold)
	assert.Equal(t, defaultPartConcurrency, cfg.PartConcurrency)
	assert.Equal(t, defaultPartChannelCap, cfg.PartChannelCap)
	assert.Equal(t, 3, cfg.RetryAttempts)
}

func TestS3Config_WithDefaultsRejectsUndersizedBuffer(t *testing.T) {
	cfg := S3Config{BufferSize: 1024}.withDefaults()
	assert.Equal(t, defaultBufferSize, cfg.BufferSize)
}

func TestWrapS3Error_NilStaysNil(t *testing.T) {
	assert.NoError(t, wrapS3Error(nil, "PutObject"))
}

func TestWrapS3Error_MarksRetryable(t *testing.T) {
	err := wrapS3Error(fmt.Errorf("boom"), "UploadPart")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UploadPart")
}

// fakeS3Server simulates just enough of the S3 multipart API for the
// sink to run an end-to-end CreateMultipartUpload -> UploadPart(xN) ->
// CompleteMultipartUpload cycle against a real aws-sdk-go-v2 client.
func fakeS3Server(t *testing.T) *httptest.Server {
	t.Helper()
	partCount := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		switch {
		case r.Method == http.MethodPost && query.Has("uploads"):
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<InitiateMultipartUploadResult>
  <Bucket>test-bucket</Bucket>
  <Key>test-key</Key>
  <UploadId>upload-123</UploadId>
</InitiateMultipartUploadResult>`)

		case r.Method == http.MethodPut && query.Has("partNumber"):
			partCount++
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("ETag", fmt.Sprintf(`"etag-%s"`, query.Get("partNumber")))
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && query.Has("uploadId"):
			body, _ := io.ReadAll(r.Body)
			partsInOrder := strings.Count(string(body), "<PartNumber>")
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUploadResult>
  <Location>http://example.com/test-bucket/test-key</Location>
  <Bucket>test-bucket</Bucket>
  <Key>test-key</Key>
  <ETag>"final-etag-%d"</ETag>
</CompleteMultipartUploadResult>`, partsInOrder)

		case r.Method == http.MethodDelete && query.Has("uploadId"):
			w.WriteHeader(http.StatusNoContent)

		case r.Method == http.MethodPut:
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("ETag", `"put-etag"`)
			w.WriteHeader(http.StatusOK)

		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	return httptest.NewServer(mux)
}

func testS3Client(t *testing.T, serverURL string) *s3.Client {
	t.Helper()
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")),
	)
	require.NoError(t, err)

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(serverURL)
		o.UsePathStyle = true
	})
}

func TestS3MultipartSink_UndersizedWindowStillCompletes(t *testing.T) {
	server := fakeS3Server(t)
	defer server.Close()

	client := testS3Client(t, server.URL)
	cfg := DefaultS3Config()
	cfg.BufferSize = 16 // below S3's 5 MiB minimum, so withDefaults swaps in the default window and the 50 bytes go out as one part on Complete
	cfg.PartConcurrency = 2

	sink, err := NewS3Sink(context.Background(), client, "test-bucket", "test-key", -1, cfg)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := sink.Write(context.Background(), []byte("0123456789"))
		require.NoError(t, err)
	}

	require.NoError(t, sink.Complete(context.Background()))
	assert.Equal(t, uint64(50), sink.BytesWritten())
}

func TestS3PutSink_SmallObjectUsesPutObject(t *testing.T) {
	server := fakeS3Server(t)
	defer server.Close()

	client := testS3Client(t, server.URL)
	sink, err := NewS3Sink(context.Background(), client, "test-bucket", "small-key", 1024, DefaultS3Config())
	require.NoError(t, err)

	_, isPut := sink.(*s3PutSink)
	assert.True(t, isPut)

	_, err = sink.Write(context.Background(), []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, sink.Complete(context.Background()))
	assert.Equal(t, uint64(len("hello world")), sink.BytesWritten())
}

func TestS3PutSink_AbortResetsBuffer(t *testing.T) {
	sink := &s3PutSink{}
	_, err := sink.Write(context.Background(), []byte("partial"))
	require.NoError(t, err)
	require.NoError(t, sink.Abort(context.Background()))
	assert.Equal(t, 0, sink.buf.Len())
}

func TestNewS3Sink_UnknownSizeUsesMultipart(t *testing.T) {
	server := fakeS3Server(t)
	defer server.Close()

	client := testS3Client(t, server.URL)
	sink, err := NewS3Sink(context.Background(), client, "test-bucket", "streamed-key", -1, DefaultS3Config())
	require.NoError(t, err)

	_, isMultipart := sink.(*s3MultipartSink)
	assert.True(t, isMultipart)
	require.NoError(t, sink.Complete(context.Background()))
}

func TestS3MultipartSink_AbortIsBestEffort(t *testing.T) {
	server := fakeS3Server(t)
	defer server.Close()

	client := testS3Client(t, server.URL)
	sink, err := NewS3Sink(context.Background(), client, "test-bucket", "aborted-key", -1, DefaultS3Config())
	require.NoError(t, err)

	_, err = sink.Write(context.Background(), []byte("some bytes before things go wrong"))
	require.NoError(t, err)
	assert.NoError(t, sink.Abort(context.Background()))
}

func TestS3Config_RetryerUsesConfiguredAttempts(t *testing.T) {
	cfg := DefaultS3Config()
	cfg.RetryAttempts = 1
	cfg.RetryInitialDelay = time.Millisecond

	attempts := 0
	err := cfg.retryer().DoWithContext(context.Background(), func(context.Context) error {
		attempts++
		return wrapS3Error(fmt.Errorf("always fails"), "UploadPart")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
