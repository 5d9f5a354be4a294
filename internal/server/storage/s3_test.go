package storage

import (
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
	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClients replaces client construction for the duration of the test and
// returns a counter of config loads.
func stubClients(t *testing.T) *int {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loads := 0
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		loads++
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	return &loads
}

func newTestStore() *S3Store {
	r := regions.New(map[string]string{"us-east-1": "bucket-east", "eu-west-1": "bucket-west"})
	return NewS3Store(r, S3Config{AccessKeyID: "id", SecretAccessKey: "secret", BaseEndpoint: "http://127.0.0.1:9000"})
}

func TestClient_AppliesOptionsAndCaches(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loads := 0
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		loads++
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	s := newTestStore()
	c1, bucket, err := s.client(context.Background(), "us-east-1")
	require.NoError(t, err)
	c2, _, err := s.client(context.Background(), "us-east-1")
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, loads)
	assert.Equal(t, "bucket-east", bucket)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}

func TestClient_LoadError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := newTestStore().Head(context.Background(), "us-east-1", "k")
	assert.EqualError(t, err, "load-fail")
}

func TestUnconfiguredRegion(t *testing.T) {
	stubClients(t)
	_, err := newTestStore().PresignGet(context.Background(), "mars-1", "k", time.Minute)
	assert.ErrorIs(t, err, common.ErrorMisconfigured)
}

func TestPresignPut(t *testing.T) {
	stubClients(t)
	orig := presignPutObject
	t.Cleanup(func() { presignPutObject = orig })

	presignPutObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		assert.Equal(t, "bucket-east", aws.ToString(in.Bucket))
		assert.Equal(t, "sha512/abc", aws.ToString(in.Key))
		assert.Equal(t, "application/octet-stream", aws.ToString(in.ContentType))
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		assert.Equal(t, 60*time.Second, po.Expires)
		return &v4.PresignedHTTPRequest{URL: "https://put.example/x"}, nil
	}

	u, err := newTestStore().PresignPut(context.Background(), "us-east-1", "sha512/abc", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://put.example/x", u)
}

func TestPresignGet_Error(t *testing.T) {
	stubClients(t)
	orig := presignGetObject
	t.Cleanup(func() { presignGetObject = orig })
	presignGetObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign-fail")
	}

	_, err := newTestStore().PresignGet(context.Background(), "us-east-1", "k", time.Minute)
	assert.EqualError(t, err, "presign get: sign-fail")
}

func TestHead(t *testing.T) {
	stubClients(t)
	orig := headObject
	t.Cleanup(func() { headObject = orig })

	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		if aws.ToString(in.Key) == "missing" {
			return nil, &types.NotFound{}
		}
		return &s3.HeadObjectOutput{
			ContentLength:           aws.Int64(12),
			StorageClass:            types.StorageClassReducedRedundancy,
			WebsiteRedirectLocation: aws.String("/elsewhere"),
		}, nil
	}

	s := newTestStore()
	info, err := s.Head(context.Background(), "us-east-1", "present")
	require.NoError(t, err)
	assert.Equal(t, &ObjectInfo{Size: 12, StorageClass: "REDUCED_REDUNDANCY", WebsiteRedirectLocation: "/elsewhere"}, info)

	_, err = s.Head(context.Background(), "us-east-1", "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestOpen(t *testing.T) {
	stubClients(t)
	orig := getObject
	t.Cleanup(func() { getObject = orig })
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("payload"))}, nil
	}

	rc, err := newTestStore().Open(context.Background(), "eu-west-1", "k")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))
}

func TestCopy_UsesStandardClassAndSourceBucket(t *testing.T) {
	stubClients(t)
	orig := copyObject
	t.Cleanup(func() { copyObject = orig })

	var got *s3.CopyObjectInput
	copyObject = func(c *s3.Client, ctx context.Context, in *s3.CopyObjectInput) error {
		got = in
		return nil
	}

	require.NoError(t, newTestStore().Copy(context.Background(), "us-east-1", "eu-west-1", "sha512/abc"))
	require.NotNil(t, got)
	assert.Equal(t, "bucket-west", aws.ToString(got.Bucket))
	assert.Equal(t, "bucket-east/sha512/abc", aws.ToString(got.CopySource))
	assert.Equal(t, types.StorageClassStandard, got.StorageClass)
}

func TestSetPrivateAndDelete(t *testing.T) {
	stubClients(t)
	origACL, origDel := putObjectACL, deleteObject
	t.Cleanup(func() { putObjectACL, deleteObject = origACL, origDel })

	var acl types.ObjectCannedACL
	putObjectACL = func(c *s3.Client, ctx context.Context, in *s3.PutObjectAclInput) error {
		acl = in.ACL
		return nil
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		return errors.New("denied")
	}

	s := newTestStore()
	require.NoError(t, s.SetPrivate(context.Background(), "us-east-1", "k"))
	assert.Equal(t, types.ObjectCannedACLPrivate, acl)
	assert.EqualError(t, s.Delete(context.Background(), "us-east-1", "k"), "delete object: denied")
}
