// Package s3store provides an S3 compatible blob store for filekeep.
//
// Uploads are streamed in fixed size parts through the multipart API so that
// memory use is bounded by the part size, whatever the object size. Objects
// smaller than one part are written with a single PutObject call.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sagarc03/filekeep"
)

const (
	// DefaultPartSize is the multipart chunk size used when none is configured.
	DefaultPartSize int64 = 8 << 20
	// MinPartSize is the smallest part S3 accepts for all but the last part.
	MinPartSize int64 = 5 << 20

	abortTimeout = 30 * time.Second
)

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	s3.ListObjectsV2APIClient
}

// Config describes how to reach the bucket.
type Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	PartSize     int64  `mapstructure:"part_size"`
}

// Store implements filekeep.BlobStore on a single bucket.
type Store struct {
	client   API
	presign  *s3.PresignClient
	bucket   string
	partSize int64
}

// New builds an S3 client from cfg. Static credentials are used when both
// keys are set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, s3.NewPresignClient(client), cfg.Bucket, cfg.PartSize), nil
}

// NewWithClient wraps an existing client. presign may be nil, in which case
// PresignGet reports filekeep.ErrNotSupported.
func NewWithClient(client API, presign *s3.PresignClient, bucket string, partSize int64) *Store {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	partSize = max(partSize, MinPartSize)

	return &Store{client: client, presign: presign, bucket: bucket, partSize: partSize}
}

// Put streams content to key. The whole object is hashed while it is sent,
// so the digest covers exactly the bytes the bucket received.
func (s *Store) Put(ctx context.Context, key string, content io.Reader) (filekeep.PutResult, error) {
	if err := ctx.Err(); err != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: %w", key, filekeep.ErrBlobWrite, err)
	}

	if !filekeep.IsValidBlobKey(key) {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: %w", key, filekeep.ErrBlobWrite, filekeep.ErrInvalidInput)
	}

	h := sha256.New()
	buf := make([]byte, s.partSize)

	n, last, err := readPart(ctx, content, buf)
	if err != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: read content: %w", key, filekeep.ErrBlobWrite, err)
	}
	h.Write(buf[:n])

	if last {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return filekeep.PutResult{}, fmt.Errorf("put %q: %w: %w", key, filekeep.ErrBlobWrite, err)
		}
		return filekeep.PutResult{Size: int64(n), Digest: hex.EncodeToString(h.Sum(nil))}, nil
	}

	size, err := s.putMultipart(ctx, key, content, buf, n, func(p []byte) { h.Write(p) })
	if err != nil {
		return filekeep.PutResult{}, fmt.Errorf("put %q: %w: %w", key, filekeep.ErrBlobWrite, err)
	}

	return filekeep.PutResult{Size: size, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

// putMultipart uploads the already buffered first part and then the rest of
// content. The upload is aborted on any failure.
func (s *Store) putMultipart(ctx context.Context, key string, content io.Reader, buf []byte, n int, hash func([]byte)) (int64, error) {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	var parts []types.CompletedPart
	var size int64
	success := false

	defer func() {
		if success {
			return
		}
		abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
		defer cancel()
		_, abortErr := s.client.AbortMultipartUpload(abortCtx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			slog.Warn("failed to abort multipart upload", "key", key, "err", abortErr)
		}
	}()

	partNumber := int32(1)
	last := false
	for {
		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return 0, fmt.Errorf("upload part %d: %w", partNumber, err)
		}

		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNumber)})
		size += int64(n)

		if last {
			break
		}

		n, last, err = readPart(ctx, content, buf)
		if err != nil {
			return 0, fmt.Errorf("read content: %w", err)
		}
		if n == 0 {
			break
		}
		hash(buf[:n])
		partNumber++
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return 0, fmt.Errorf("complete multipart upload: %w", err)
	}

	success = true
	return size, nil
}

// readPart fills buf from r. last is true when r reached EOF before buf was full.
func readPart(ctx context.Context, r io.Reader, buf []byte) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	n, err := io.ReadFull(r, buf)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	default:
		return 0, false, err
	}
}

// Get opens the object. The body streams from the bucket as it is read.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.get(ctx, key, nil)
}

// GetRange opens length bytes of the object starting at offset.
// length < 0 reads to the end.
func (s *Store) GetRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 {
		return nil, fmt.Errorf("get range: %w: negative offset", filekeep.ErrInvalidInput)
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	rng := fmt.Sprintf("bytes=%d-", offset)
	if length > 0 {
		rng = fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)
	}
	return s.get(ctx, key, aws.String(rng))
}

func (s *Store) get(ctx context.Context, key string, rng *string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !filekeep.IsValidBlobKey(key) {
		return nil, fmt.Errorf("get %q: %w", key, filekeep.ErrInvalidInput)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  rng,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, filekeep.ErrNotFound
		}
		if rng != nil && isInvalidRange(err) {
			return io.NopCloser(bytes.NewReader(nil)), nil
		}
		return nil, fmt.Errorf("get %q: %w: %w", key, filekeep.ErrBlobRead, err)
	}

	return out.Body, nil
}

// Delete removes the object. S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !filekeep.IsValidBlobKey(key) {
		return fmt.Errorf("delete %q: %w", key, filekeep.ErrInvalidInput)
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Exists reports whether key holds an object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if !filekeep.IsValidBlobKey(key) {
		return false, fmt.Errorf("exists %q: %w", key, filekeep.ErrInvalidInput)
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("head %q: %w", key, err)
	}
	return true, nil
}

// ListKeys pages through the bucket and calls fn for every key.
func (s *Store) ListKeys(ctx context.Context, fn func(key string) error) error {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})

	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list keys: %w", err)
		}
		for _, obj := range page.Contents {
			if err := fn(aws.ToString(obj.Key)); err != nil {
				return fmt.Errorf("list keys: %w", err)
			}
		}
	}
	return nil
}

// PresignGet returns a time limited GET URL for key.
func (s *Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", filekeep.ErrNotSupported
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr interface{ HTTPStatusCode() int }
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}
