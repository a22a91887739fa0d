package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func testS3Config() S3Config {
	return S3Config{
		Bucket:       "filedrop",
		Region:       "us-east-1",
		BaseEndpoint: "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
	}
}

func TestNewS3Store_ClientSetup(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}

	var capturedBaseEndpoint string
	var capturedPathStyle bool
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		if opts.BaseEndpoint != nil {
			capturedBaseEndpoint = *opts.BaseEndpoint
		}
		capturedPathStyle = opts.UsePathStyle
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		if c == nil {
			t.Fatalf("nil client passed to presign")
		}
		return &s3.PresignClient{}
	}

	store, err := NewS3Store(context.Background(), testS3Config())
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
	if store.bucket != "filedrop" {
		t.Fatalf("bucket not applied: %q", store.bucket)
	}
	if capturedBaseEndpoint != "http://127.0.0.1:9000" {
		t.Fatalf("BaseEndpoint mismatch: %q", capturedBaseEndpoint)
	}
	if !capturedPathStyle {
		t.Fatalf("path-style addressing must be enabled for MinIO")
	}
}

func TestNewS3Store_ConfigError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Store(context.Background(), testS3Config())
	if err == nil || !strings.Contains(err.Error(), "load-fail") {
		t.Fatalf("expected wrapped load error, got %v", err)
	}
}

func newStoreWithStubbedPresign(t *testing.T) *S3Store {
	t.Helper()
	origLoad := loadDefaultAWSConfig
	origNewS3 := newS3ClientFromConfig
	origNewPre := newS3PresignClient
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return &s3.PresignClient{}
	}

	store, err := NewS3Store(context.Background(), testS3Config())
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
	return store
}

func TestS3Store_PresignPut(t *testing.T) {
	store := newStoreWithStubbedPresign(t)

	origPresign := presignPutObject
	t.Cleanup(func() { presignPutObject = origPresign })

	var captured *s3.PutObjectInput
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		captured = in
		return &v4.PresignedHTTPRequest{URL: "https://signed.example/put", Method: "PUT"}, nil
	}

	req, err := store.PresignPut(context.Background(), "users/u1/k", "image/png", 512, 15*time.Minute)
	if err != nil {
		t.Fatalf("PresignPut error: %v", err)
	}
	if req.URL != "https://signed.example/put" || req.Method != "PUT" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if captured == nil || *captured.Bucket != "filedrop" || *captured.Key != "users/u1/k" {
		t.Fatalf("input not forwarded: %+v", captured)
	}
	if captured.ContentLength == nil || *captured.ContentLength != 512 {
		t.Fatalf("declared size must cap the upload: %+v", captured.ContentLength)
	}
}

func TestS3Store_PresignPut_Error(t *testing.T) {
	store := newStoreWithStubbedPresign(t)

	origPresign := presignPutObject
	t.Cleanup(func() { presignPutObject = origPresign })

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign-fail")
	}

	_, err := store.PresignPut(context.Background(), "k", "", 1, time.Minute)
	if err == nil || !strings.Contains(err.Error(), "presign put error") {
		t.Fatalf("expected wrapped presign error, got %v", err)
	}
}

func TestS3Store_PresignGet(t *testing.T) {
	store := newStoreWithStubbedPresign(t)

	origPresign := presignGetObject
	t.Cleanup(func() { presignGetObject = origPresign })

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		if *in.Key != "users/u1/k" {
			t.Fatalf("key not forwarded: %q", *in.Key)
		}
		return &v4.PresignedHTTPRequest{URL: "https://signed.example/get", Method: "GET"}, nil
	}

	req, err := store.PresignGet(context.Background(), "users/u1/k", time.Hour)
	if err != nil {
		t.Fatalf("PresignGet error: %v", err)
	}
	if req.Method != "GET" {
		t.Fatalf("unexpected method: %q", req.Method)
	}
	if req.ExpiresAt.Before(time.Now().Add(59 * time.Minute)) {
		t.Fatalf("expiry not derived from ttl: %v", req.ExpiresAt)
	}
}

func TestS3Store_PresignUploadPart(t *testing.T) {
	store := newStoreWithStubbedPresign(t)

	origPresign := presignUploadPart
	t.Cleanup(func() { presignUploadPart = origPresign })

	var captured *s3.UploadPartInput
	presignUploadPart = func(pc *s3.PresignClient, ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		captured = in
		return &v4.PresignedHTTPRequest{URL: "https://signed.example/part", Method: "PUT"}, nil
	}

	_, err := store.PresignUploadPart(context.Background(), "k", "upload-1", 7, time.Minute)
	if err != nil {
		t.Fatalf("PresignUploadPart error: %v", err)
	}
	if captured == nil || *captured.UploadId != "upload-1" || *captured.PartNumber != 7 {
		t.Fatalf("input not forwarded: %+v", captured)
	}
}
