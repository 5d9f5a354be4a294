package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
)

// Seams for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	presignPutObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return s3.NewPresignClient(c).PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return s3.NewPresignClient(c).PresignGetObject(ctx, in, optFns...)
	}

	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in)
	}
	getObject = func(c *s3.Client, ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return c.GetObject(ctx, in)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput) error {
		_, err := c.DeleteObject(ctx, in)
		return err
	}
	copyObject = func(c *s3.Client, ctx context.Context, in *s3.CopyObjectInput) error {
		_, err := c.CopyObject(ctx, in)
		return err
	}
	putObjectACL = func(c *s3.Client, ctx context.Context, in *s3.PutObjectAclInput) error {
		_, err := c.PutObjectAcl(ctx, in)
		return err
	}
)

// S3Config holds credentials shared by all regions. BaseEndpoint, when set,
// points every region at an S3-compatible server with path-style addressing.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	BaseEndpoint    string
}

// S3Store implements Store over aws-sdk-go-v2, one client per region.
type S3Store struct {
	regions *regions.Regions
	cfg     S3Config

	mu      sync.Mutex
	clients map[string]*s3.Client
}

func NewS3Store(r *regions.Regions, cfg S3Config) *S3Store {
	return &S3Store{regions: r, cfg: cfg, clients: map[string]*s3.Client{}}
}

func (s *S3Store) client(ctx context.Context, region string) (*s3.Client, string, error) {
	bucket, ok := s.regions.Bucket(region)
	if !ok {
		return nil, "", common.Misconfigured("region %q is not configured", region)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[region]; ok {
		return c, bucket, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if s.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, "", err
	}

	c := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})
	s.clients[region] = c
	return c, bucket, nil
}

func (s *S3Store) PresignPut(ctx context.Context, region, key string, expiresIn time.Duration) (string, error) {
	c, bucket, err := s.client(ctx, region)
	if err != nil {
		return "", err
	}
	req, err := presignPutObject(c, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/octet-stream"),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) PresignGet(ctx context.Context, region, key string, expiresIn time.Duration) (string, error) {
	c, bucket, err := s.client(ctx, region)
	if err != nil {
		return "", err
	}
	req, err := presignGetObject(c, ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) Head(ctx context.Context, region, key string) (*ObjectInfo, error) {
	c, bucket, err := s.client(ctx, region)
	if err != nil {
		return nil, err
	}
	out, err := headObject(c, ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("head object: %w", err)
	}
	return &ObjectInfo{
		Size:                    aws.ToInt64(out.ContentLength),
		StorageClass:            string(out.StorageClass),
		WebsiteRedirectLocation: aws.ToString(out.WebsiteRedirectLocation),
	}, nil
}

func (s *S3Store) Open(ctx context.Context, region, key string) (io.ReadCloser, error) {
	c, bucket, err := s.client(ctx, region)
	if err != nil {
		return nil, err
	}
	out, err := getObject(c, ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, region, key string) error {
	c, bucket, err := s.client(ctx, region)
	if err != nil {
		return err
	}
	if err := deleteObject(c, ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcRegion, dstRegion, key string) error {
	srcBucket, ok := s.regions.Bucket(srcRegion)
	if !ok {
		return common.Misconfigured("region %q is not configured", srcRegion)
	}
	c, dstBucket, err := s.client(ctx, dstRegion)
	if err != nil {
		return err
	}
	err = copyObject(c, ctx, &s3.CopyObjectInput{
		Bucket:       aws.String(dstBucket),
		Key:          aws.String(key),
		CopySource:   aws.String(srcBucket + "/" + key),
		StorageClass: types.StorageClassStandard,
	})
	if err != nil {
		return fmt.Errorf("copy object: %w", err)
	}
	return nil
}

func (s *S3Store) SetPrivate(ctx context.Context, region, key string) error {
	c, bucket, err := s.client(ctx, region)
	if err != nil {
		return err
	}
	err = putObjectACL(c, ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		ACL:    types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("put object acl: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
