package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// S3API is the subset of *s3.Client used by CloudAdapter.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used by CloudAdapter.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Seams for tests.
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

// CloudConfig describes an S3-compatible bucket.
type CloudConfig struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	PathStyle    bool

	// PublicRead makes Save return a plain URL instead of a presigned one.
	PublicRead    bool
	PublicBaseURL string

	SignedURLTTL time.Duration
	OpTimeout    time.Duration
	MaxRetries   int
}

type CloudAdapter struct {
	client    S3API
	presigner Presigner
	cfg       CloudConfig
}

// NewCloudAdapter builds an S3 client from static credentials. SDK-level
// retries are disabled; withRetry owns the retry policy.
func NewCloudAdapter(ctx context.Context, cfg CloudConfig) (*CloudAdapter, error) {
	if cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, &Error{Op: "init", Backend: BackendS3, Err: ErrConfig}
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, &Error{Op: "init", Backend: BackendS3, Err: fmt.Errorf("%w: %w", ErrConfig, err)}
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.PathStyle
		o.RetryMaxAttempts = 1
	})

	return NewCloudAdapterWithClient(client, s3.NewPresignClient(client), cfg), nil
}

// NewCloudAdapterWithClient wires an adapter around an existing client.
func NewCloudAdapterWithClient(client S3API, presigner Presigner, cfg CloudConfig) *CloudAdapter {
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 15 * time.Minute
	}
	return &CloudAdapter{client: client, presigner: presigner, cfg: cfg}
}

func (a *CloudAdapter) Backend() string { return BackendS3 }

func (a *CloudAdapter) Capabilities() Capabilities { return Capabilities{SignedURLs: true} }

func (a *CloudAdapter) wrap(op, key string, err error) error {
	return &Error{Op: op, Key: key, Backend: BackendS3, Err: err}
}

func (a *CloudAdapter) do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	return withRetry(ctx, a.cfg.MaxRetries, timeout, func(attemptCtx context.Context) error {
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		// An attempt that hit its own deadline is transient as
		// long as the caller is still waiting.
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return classifyS3Error(err)
	})
}

// uploadStampKey is the user metadata entry that marks which Save call
// wrote an object.
const uploadStampKey = "upload-id"

// Save issues a conditional PUT. A 412 means the key is taken and the next
// suffixed candidate is tried, unless the object carries this call's stamp:
// then an earlier attempt that timed out on our side did land.
func (a *CloudAdapter) Save(ctx context.Context, key string, data []byte, contentType string) (*models.StoredFileDescriptor, error) {
	if err := ValidateKey(key); err != nil {
		return nil, a.wrap("save", key, err)
	}
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	stamp := uuid.NewString()

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		k := candidateKey(key, attempt)

		sent := false
		err := a.do(ctx, a.cfg.OpTimeout, func(ctx context.Context) error {
			_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
				Bucket:        aws.String(a.cfg.Bucket),
				Key:           aws.String(k),
				Body:          bytes.NewReader(data),
				ContentLength: aws.Int64(int64(len(data))),
				ContentType:   aws.String(contentType),
				IfNoneMatch:   aws.String("*"),
				Metadata:      map[string]string{uploadStampKey: stamp},
			})
			if err != nil && sent && errors.Is(classifyS3Error(err), ErrAlreadyExists) {
				owned, herr := a.stampedBy(ctx, k, stamp)
				if herr != nil {
					return herr
				}
				if owned {
					return nil
				}
			}
			sent = true
			return err
		})
		if errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, a.wrap("save", k, err)
		}

		u, err := a.objectURL(ctx, k)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		return &models.StoredFileDescriptor{
			Key:         k,
			URL:         u,
			Backend:     BackendS3,
			Size:        int64(len(data)),
			ContentType: contentType,
			CreatedAt:   now,
			ModifiedAt:  now,
		}, nil
	}

	return nil, a.wrap("save", key, ErrAlreadyExists)
}

// stampedBy reports whether the object at key was written by the Save call
// holding stamp.
func (a *CloudAdapter) stampedBy(ctx context.Context, key, stamp string) (bool, error) {
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = classifyS3Error(err)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for k, v := range out.Metadata {
		if strings.EqualFold(k, uploadStampKey) {
			return v == stamp, nil
		}
	}
	return false, nil
}

// Read opens the object. OpTimeout bounds the wait for response headers
// only; the body outlives this call and its reads are bounded by ctx.
func (a *CloudAdapter) Read(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, nil, a.wrap("read", key, err)
	}

	var (
		out  *s3.GetObjectOutput
		body io.ReadCloser
	)
	err := a.do(ctx, 0, func(ctx context.Context) error {
		readCtx, cancel := context.WithCancel(ctx)
		var timer *time.Timer
		if a.cfg.OpTimeout > 0 {
			timer = time.AfterFunc(a.cfg.OpTimeout, cancel)
		}

		o, err := a.client.GetObject(readCtx, &s3.GetObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(key),
		})
		if timer != nil && !timer.Stop() && ctx.Err() == nil {
			if err == nil {
				_ = o.Body.Close()
			}
			cancel()
			return fmt.Errorf("%w: no response within %s: %w", ErrUnavailable, a.cfg.OpTimeout, context.DeadlineExceeded)
		}
		if err != nil {
			cancel()
			return err
		}
		out, body = o, &cancelOnClose{ReadCloser: o.Body, cancel: cancel}
		return nil
	})
	if err != nil {
		return nil, nil, a.wrap("read", key, err)
	}

	info := &ObjectInfo{
		Key:         key,
		Backend:     BackendS3,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ModifiedAt:  aws.ToTime(out.LastModified),
	}
	if info.ContentType == "" {
		info.ContentType = ContentTypeForKey(key)
	}
	return body, info, nil
}

// cancelOnClose releases the request context of a streamed body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func (a *CloudAdapter) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return a.wrap("delete", key, err)
	}
	err := a.do(ctx, a.cfg.OpTimeout, func(ctx context.Context) error {
		_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return a.wrap("delete", key, err)
	}
	return nil
}

func (a *CloudAdapter) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", a.wrap("signed-url", key, err)
	}
	if ttl <= 0 {
		ttl = a.cfg.SignedURLTTL
	}
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", a.wrap("signed-url", key, classifyS3Error(err))
	}
	return req.URL, nil
}

func (a *CloudAdapter) Info(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, a.wrap("info", key, err)
	}

	var out *s3.HeadObjectOutput
	err := a.do(ctx, a.cfg.OpTimeout, func(ctx context.Context) error {
		var err error
		out, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, a.wrap("info", key, err)
	}

	ct := aws.ToString(out.ContentType)
	if ct == "" {
		ct = ContentTypeForKey(key)
	}
	return &ObjectInfo{
		Key:         key,
		Backend:     BackendS3,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: ct,
		ModifiedAt:  aws.ToTime(out.LastModified),
	}, nil
}

func (a *CloudAdapter) objectURL(ctx context.Context, key string) (string, error) {
	if !a.cfg.PublicRead {
		return a.SignedURL(ctx, key, a.cfg.SignedURLTTL)
	}
	return a.PublicURL(key), nil
}

// PublicURL is where an object is reachable when the bucket allows
// anonymous reads.
func (a *CloudAdapter) PublicURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case a.cfg.PublicBaseURL != "":
		return strings.TrimRight(a.cfg.PublicBaseURL, "/") + "/" + escaped
	case a.cfg.BaseEndpoint != "":
		return strings.TrimRight(a.cfg.BaseEndpoint, "/") + "/" + a.cfg.Bucket + "/" + escaped
	}
	region := a.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.cfg.Bucket, region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// classifyS3Error maps SDK, HTTP and network failures onto the storage
// taxonomy. The raw error stays in the chain for logs.
func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case "QuotaExceeded", "EntityTooLarge", "XMinioStorageFull", "StorageFull":
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		case "NoSuchBucket", "InvalidBucketName", "AuthorizationHeaderMalformed", "PermanentRedirect":
			return fmt.Errorf("%w: %w", ErrConfig, err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "RequestTimeTooSkewed":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		switch code := status.HTTPStatusCode(); {
		case code == 404:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case code == 412:
			return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
		case code == 401 || code == 403:
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		case code == 507:
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		case code == 429 || code >= 500:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return err
}
