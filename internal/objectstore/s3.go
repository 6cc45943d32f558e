// Package objectstore reads the raw JSON logs from S3.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"starload/pkg/errors"
)

const (
	// Scheme prefixes every S3 location
	Scheme = "s3://"
	// DefaultRegion is used when no region is configured
	DefaultRegion = "us-west-2"
)

// API is the part of the S3 client the store uses
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
}

// Location is a bucket and key prefix
type Location struct {
	Bucket string
	Prefix string
}

func (l Location) String() string {
	return Scheme + l.Bucket + "/" + l.Prefix
}

// IsS3 reports whether uri uses the s3:// scheme
func IsS3(uri string) bool {
	return strings.HasPrefix(strings.ToLower(uri), Scheme)
}

// ParseURI splits s3://bucket/prefix
func ParseURI(uri string) (Location, error) {
	if !IsS3(uri) {
		return Location{}, errors.New(errors.ErrCodeInvalidInput, "Not an S3 location").
			WithContext("uri", uri)
	}
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return Location{}, errors.New(errors.ErrCodeInvalidInput, "Malformed S3 location").
			WithContext("uri", uri).
			WithSuggestions("Use the form s3://bucket/prefix")
	}
	return Location{Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
}

// Options configures the S3 client
type Options struct {
	Region    string
	Endpoint  string
	Anonymous bool
}

// Store lists and reads objects
type Store struct {
	api    API
	region string
}

// Object is one listed key
type Object struct {
	Key  string
	Size int64
}

// New creates a store from the default AWS credential chain. Anonymous
// stores read public buckets without signing requests.
func New(ctx context.Context, opts Options) (*Store, error) {
	region := opts.Region
	if region == "" {
		region = DefaultRegion
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.Anonymous {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithAPI(client, region), nil
}

// NewWithAPI wraps an existing client
func NewWithAPI(api API, region string) *Store {
	if region == "" {
		region = DefaultRegion
	}
	return &Store{api: api, region: region}
}

// Region returns the configured region
func (s *Store) Region() string {
	return s.region
}

// List returns every object under loc sorted by key. Directory markers are skipped.
func (s *Store) List(ctx context.Context, loc Location) ([]Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(loc.Bucket),
	}
	if loc.Prefix != "" {
		input.Prefix = aws.String(loc.Prefix)
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(s.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err, "Failed to list objects", loc.String())
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			objects = append(objects, Object{Key: *obj.Key, Size: aws.ToInt64(obj.Size)})
		}
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Open streams one object. The caller closes the reader.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err, "Failed to fetch object", Location{Bucket: bucket, Prefix: key}.String())
	}
	return out.Body, nil
}

// Read fetches the whole object at uri
func (s *Store) Read(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	body, err := s.Open(ctx, loc.Bucket, loc.Prefix)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceAccess, "Failed to read object").
			WithContext("uri", uri)
	}
	return data, nil
}

// BucketRegion returns the region a bucket lives in
func (s *Store) BucketRegion(ctx context.Context, bucket string) (string, error) {
	out, err := s.api.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return "", classify(err, "Failed to look up bucket region", Scheme+bucket)
	}

	switch out.LocationConstraint {
	case "":
		return "us-east-1", nil
	case s3types.BucketLocationConstraintEu:
		return "eu-west-1", nil
	default:
		return string(out.LocationConstraint), nil
	}
}

// VerifyRegion fails when the bucket is not in region. COPY from a bucket in
// another region fails at load time, so this is checked up front.
func (s *Store) VerifyRegion(ctx context.Context, bucket, region string) error {
	if region == "" {
		region = s.region
	}
	actual, err := s.BucketRegion(ctx, bucket)
	if err != nil {
		return err
	}
	if actual != region {
		return errors.New(errors.ErrCodeRegionMismatch,
			fmt.Sprintf("Bucket %s is in %s, configured region is %s", bucket, actual, region)).
			WithContext("bucket", bucket).
			WithSuggestions("Set s3.region to " + actual)
	}
	return nil
}

func classify(err error, message, uri string) error {
	code := errors.ErrCodeSourceAccess
	msg := err.Error()
	switch {
	case strings.Contains(msg, "NoSuchBucket"), strings.Contains(msg, "NoSuchKey"), strings.Contains(msg, "NotFound"):
		code = errors.ErrCodeSourceNotFound
	case strings.Contains(msg, "PermanentRedirect"), strings.Contains(msg, "AuthorizationHeaderMalformed"):
		code = errors.ErrCodeRegionMismatch
	}

	appErr := errors.Wrap(err, code, message).WithContext("uri", uri)
	if code == errors.ErrCodeSourceAccess {
		appErr = appErr.WithSuggestions(
			"Check that AWS credentials are available to the process",
			"Set s3.anonymous for public buckets",
		)
	}
	return appErr
}
