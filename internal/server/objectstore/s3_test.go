package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/certkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	blobs   map[string][]byte
	getErr  error
	lastPut *s3.PutObjectInput
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.blobs[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPut = in
	b, _ := io.ReadAll(in.Body)
	f.blobs[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

type fakePresign struct {
	err     error
	expires time.Duration
}

func (f *fakePresign) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	f.expires = o.Expires
	return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + *in.Bucket + "/" + *in.Key + "?put"}, nil
}

func (f *fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: "https://s3.local/" + *in.Bucket + "/" + *in.Key + "?get"}, nil
}

func stubS3(t *testing.T, objects *fakeObjects, presign *fakePresign, loadErr error) *int {
	t.Helper()
	origLoad, origNew := loadDefaultAWSConfig, newS3Clients
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3Clients = origNew
	})

	calls := 0
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		calls++
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		return aws.Config{}, loadErr
	}
	newS3Clients = func(cfg aws.Config, optFns ...func(*s3.Options)) (objectAPI, presignAPI) {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		require.NotNil(t, o.BaseEndpoint)
		assert.Equal(t, "http://minio:9000", *o.BaseEndpoint)
		assert.True(t, o.UsePathStyle)
		return objects, presign
	}
	return &calls
}

func testS3Config() S3Config {
	return S3Config{Region: "eu-west-1", AccessKey: "a", SecretKey: "s", Bucket: "templates", BaseEndpoint: "http://minio:9000"}
}

func TestS3Store_EnsureInitializedOnce(t *testing.T) {
	calls := stubS3(t, &fakeObjects{blobs: map[string][]byte{}}, &fakePresign{}, nil)
	s := NewS3Store(testS3Config())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnsureInitialized(context.Background()))
	}
	assert.Equal(t, 1, *calls)
}

func TestS3Store_InitErrorIsSticky(t *testing.T) {
	calls := stubS3(t, nil, nil, errors.New("no creds"))
	s := NewS3Store(testS3Config())

	_, err := s.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "no creds")
	_, err = s.PresignPut(context.Background(), "k", time.Minute)
	assert.ErrorContains(t, err, "no creds")
	assert.Equal(t, 1, *calls)
}

func TestS3Store_PutGet(t *testing.T) {
	objects := &fakeObjects{blobs: map[string][]byte{}}
	stubS3(t, objects, &fakePresign{}, nil)
	s := NewS3Store(testS3Config())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "templates/a.png", []byte("png"), "image/png"))
	assert.Equal(t, "image/png", *objects.lastPut.ContentType)
	assert.Equal(t, "templates", *objects.lastPut.Bucket)

	b, err := s.Get(ctx, "templates/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), b)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	objects.getErr = errors.New("network")
	_, err = s.Get(ctx, "templates/a.png")
	assert.ErrorContains(t, err, "s3 get templates/a.png")
}

func TestS3Store_Presign(t *testing.T) {
	presign := &fakePresign{}
	stubS3(t, &fakeObjects{blobs: map[string][]byte{}}, presign, nil)
	s := NewS3Store(testS3Config())
	ctx := context.Background()

	url, err := s.PresignPut(ctx, "templates/x.png", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://s3.local/templates/templates/x.png?put", url)
	assert.Equal(t, 15*time.Minute, presign.expires)

	url, err = s.PresignGet(ctx, "templates/x.png", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "?get"))

	presign.err = errors.New("sign failed")
	_, err = s.PresignPut(ctx, "k", time.Minute)
	assert.EqualError(t, err, "sign failed")
}
