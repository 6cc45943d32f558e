package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starload/pkg/errors"
)

type fakeS3 struct {
	pages    [][]string
	objects  map[string]string
	location s3types.BucketLocationConstraint
	err      error

	listCalls int
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[f.listCalls]
	f.listCalls++

	out := &s3.ListObjectsV2Output{}
	for _, key := range page {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key), Size: aws.Int64(int64(len(key)))})
	}
	if f.listCalls < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprintf("page-%d", f.listCalls))
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("operation error S3: GetObject, api error NoSuchKey: The specified key does not exist.")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) GetBucketLocation(ctx context.Context, in *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetBucketLocationOutput{LocationConstraint: f.location}, nil
}

func TestParseURI(t *testing.T) {
	loc, err := ParseURI("s3://udacity-dend/log_data")
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "udacity-dend", Prefix: "log_data"}, loc)
	assert.Equal(t, "s3://udacity-dend/log_data", loc.String())

	loc, err = ParseURI("s3://udacity-dend")
	require.NoError(t, err)
	assert.Empty(t, loc.Prefix)

	_, err = ParseURI("/data/log_data")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = ParseURI("s3:///nobucket")
	assert.Error(t, err)

	assert.True(t, IsS3("S3://Bucket/key"))
	assert.False(t, IsS3("file:///tmp"))
}

func TestListPaginates(t *testing.T) {
	api := &fakeS3{pages: [][]string{
		{"song_data/A/B/TRABC.json", "song_data/A/"},
		{"song_data/A/A/TRAAA.json"},
	}}
	store := NewWithAPI(api, "")

	objects, err := store.List(context.Background(), Location{Bucket: "b", Prefix: "song_data"})
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "song_data/A/A/TRAAA.json", objects[0].Key)
	assert.Equal(t, "song_data/A/B/TRABC.json", objects[1].Key)
	assert.Equal(t, 2, api.listCalls)
	assert.Equal(t, DefaultRegion, store.Region())
}

func TestListAccessDenied(t *testing.T) {
	store := NewWithAPI(&fakeS3{err: fmt.Errorf("api error AccessDenied: Access Denied")}, "us-west-2")

	_, err := store.List(context.Background(), Location{Bucket: "b"})
	assert.Equal(t, errors.ErrCodeSourceAccess, errors.GetErrorCode(err))
}

func TestRead(t *testing.T) {
	store := NewWithAPI(&fakeS3{objects: map[string]string{
		"log_json_path.json": `{"jsonpaths": ["$['artist']"]}`,
	}}, "us-west-2")

	data, err := store.Read(context.Background(), "s3://udacity-dend/log_json_path.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "jsonpaths")

	_, err = store.Read(context.Background(), "s3://udacity-dend/missing.json")
	assert.Equal(t, errors.ErrCodeSourceNotFound, errors.GetErrorCode(err))
}

func TestBucketRegion(t *testing.T) {
	tests := []struct {
		constraint s3types.BucketLocationConstraint
		want       string
	}{
		{"", "us-east-1"},
		{s3types.BucketLocationConstraintEu, "eu-west-1"},
		{s3types.BucketLocationConstraintUsWest2, "us-west-2"},
	}
	for _, tt := range tests {
		store := NewWithAPI(&fakeS3{location: tt.constraint}, "us-west-2")
		region, err := store.BucketRegion(context.Background(), "b")
		require.NoError(t, err)
		assert.Equal(t, tt.want, region)
	}
}

func TestVerifyRegion(t *testing.T) {
	store := NewWithAPI(&fakeS3{location: s3types.BucketLocationConstraintUsWest2}, "us-west-2")
	require.NoError(t, store.VerifyRegion(context.Background(), "udacity-dend", ""))

	err := store.VerifyRegion(context.Background(), "udacity-dend", "us-east-2")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRegionMismatch, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "us-west-2")
}
