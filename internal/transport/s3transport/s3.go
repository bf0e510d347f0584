// Package s3transport implements the "s3" transport on top of the AWS SDK.
//
// Repository URLs have the form
//
//	s3://bucket[/prefix][?region=eu-west-1][&endpoint=http://localhost:9000]
//
// Setting endpoint switches the client to path-style addressing against
// that base URL, which is what S3-compatible servers such as MinIO expect.
package s3transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

const (
	defaultRegion  = "us-east-1"
	connectTimeout = 60 * time.Second
)

// Protocols lists the protocol names this transport serves.
var Protocols = []string{"s3"}

// Transport downloads objects from one bucket, optionally below a key prefix.
type Transport struct {
	transport.Listeners

	timeout time.Duration

	endpoint config.Endpoint
	bucket   string
	prefix   string
	client   *s3.Client
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unconnected Transport. A non-zero timeout caps the total
// time of each S3 call, download included. With zero only stalls are
// bounded, and the bucket check on Connect gets one minute.
func New(timeout time.Duration) *Transport {
	return &Transport{timeout: timeout}
}

// location is the parsed form of an s3:// repository URL.
type location struct {
	bucket       string
	prefix       string
	region       string
	baseEndpoint string
}

func parseLocation(raw string) (location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return location{}, fmt.Errorf("parsing repository url %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return location{}, fmt.Errorf("repository url %q: scheme must be s3", raw)
	}
	if u.Host == "" {
		return location{}, fmt.Errorf("repository url %q: missing bucket", raw)
	}
	q := u.Query()
	loc := location{
		bucket:       u.Host,
		prefix:       strings.Trim(u.Path, "/"),
		region:       q.Get("region"),
		baseEndpoint: q.Get("endpoint"),
	}
	if loc.region == "" {
		loc.region = defaultRegion
	}
	return loc, nil
}

// Connect builds an S3 client for the bucket and checks that it is
// reachable with the supplied credentials.
func (t *Transport) Connect(endpoint config.Endpoint, opts config.ConnectOptions) error {
	loc, err := parseLocation(endpoint.URL)
	if err != nil {
		return err
	}

	limit := t.timeout
	if limit == 0 {
		limit = connectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), limit)
	defer cancel()

	awsCfg, err := t.buildAWSConfig(ctx, loc, opts)
	if err != nil {
		return fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if loc.baseEndpoint != "" {
			o.BaseEndpoint = aws.String(loc.baseEndpoint)
			o.UsePathStyle = true
		}
	})

	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(loc.bucket)})
	if err != nil {
		if isAuthError(err) {
			return fmt.Errorf("%w: bucket %s: %v", transport.ErrAuthentication, loc.bucket, err)
		}
		return fmt.Errorf("failed to check bucket %s: %w", loc.bucket, err)
	}

	t.endpoint = endpoint
	t.bucket = loc.bucket
	t.prefix = loc.prefix
	t.client = client
	t.Debug(fmt.Sprintf("connected to bucket %s in %s", loc.bucket, loc.region))
	return nil
}

// buildAWSConfig builds the AWS configuration from the endpoint and options
func (t *Transport) buildAWSConfig(ctx context.Context, loc location, opts config.ConnectOptions) (aws.Config, error) {
	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(loc.region),
	}

	// Use static credentials if provided
	if a := opts.Auth; a != nil && a.Username != "" && a.Password != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.Username, a.Password, a.Token),
		))
	}

	optFns = append(optFns, awsconfig.WithHTTPClient(&http.Client{
		Transport: transport.NewHTTPTransport(opts.Proxy, transport.DefaultReadTimeout),
		Timeout:   t.timeout,
	}))

	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

// Get downloads the object prefix/name into destination.
func (t *Transport) Get(name, destination string) error {
	if t.client == nil {
		return errors.New("s3 transport is not connected")
	}

	key := t.key(name)
	ev := transport.Event{Resource: name, Endpoint: t.endpoint.URL, Length: -1}
	initiated := ev
	initiated.Type = transport.TransferInitiated
	t.Fire(initiated)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if t.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, t.timeout)
		defer stop()
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		switch {
		case isNotFoundError(err):
			err = fmt.Errorf("%w: s3://%s/%s", transport.ErrResourceDoesNotExist, t.bucket, key)
		case isAuthError(err):
			err = fmt.Errorf("%w: s3://%s/%s: %v", transport.ErrAuthorization, t.bucket, key, err)
		default:
			err = fmt.Errorf("failed to get object s3://%s/%s: %w", t.bucket, key, err)
		}
		failed := ev
		failed.Type = transport.TransferFailed
		failed.Err = err
		t.Fire(failed)
		return err
	}
	defer out.Body.Close()

	if out.ContentLength != nil {
		ev.Length = aws.ToInt64(out.ContentLength)
	}
	body := transport.NewIdleTimeoutReader(out.Body, transport.DefaultReadTimeout, cancel)
	defer body.Stop()
	if _, err := transport.WriteDestination(destination, body, ev, &t.Listeners); err != nil {
		return err
	}
	return nil
}

// Disconnect forgets the client. The SDK keeps no session to tear down.
func (t *Transport) Disconnect() error {
	if t.client != nil {
		t.Debug(fmt.Sprintf("disconnected from bucket %s", t.bucket))
	}
	t.client = nil
	return nil
}

func (t *Transport) key(name string) string {
	name = strings.TrimPrefix(name, "/")
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

// isNotFoundError checks if an error is a not found error
func isNotFoundError(err error) bool {
	var nsk *s3types.NoSuchKey
	var nse *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nse) {
		return true
	}
	return httpStatus(err) == http.StatusNotFound
}

// isAuthError reports credential and permission failures.
func isAuthError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return true
		}
	}
	status := httpStatus(err)
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func httpStatus(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}
