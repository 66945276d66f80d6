package minio

import (
	"context"
	"errors"
	"testing"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/bucketmeta/pkg/provider"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"missing endpoint", Config{}, "endpoint is required"},
		{"scheme in endpoint", Config{Endpoint: "http://localhost:9000"}, "without scheme"},
		{"access key without secret", Config{Endpoint: "localhost:9000", AccessKey: "minioadmin"}, "provided together"},
		{"valid", Config{Endpoint: "localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin"}, ""},
		{"anonymous", Config{Endpoint: "play.min.io", UseSSL: true}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewOpener(t *testing.T) {
	o, err := NewOpener(Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)

	p, err := o.Open(context.Background(), "bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", p.(*Provider).bucket)

	_, err = o.Open(context.Background(), "")
	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestSentinelFor(t *testing.T) {
	tests := []struct {
		name string
		resp miniogo.ErrorResponse
		want error
	}{
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey"}, provider.ErrNotFound},
		{"no such bucket", miniogo.ErrorResponse{Code: "NoSuchBucket"}, provider.ErrBucketNotFound},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied"}, provider.ErrAccessDenied},
		{"bad key", miniogo.ErrorResponse{Code: "InvalidAccessKeyId"}, provider.ErrInvalidCredentials},
		{"slow down", miniogo.ErrorResponse{Code: "SlowDown"}, provider.ErrThrottled},
		{"unavailable", miniogo.ErrorResponse{Code: "ServiceUnavailable"}, provider.ErrProviderUnavailable},
		{"status 403", miniogo.ErrorResponse{StatusCode: 403}, provider.ErrAccessDenied},
		{"status 429", miniogo.ErrorResponse{StatusCode: 429}, provider.ErrThrottled},
		{"unknown", miniogo.ErrorResponse{Code: "Weird", StatusCode: 418}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sentinelFor(tt.resp))
		})
	}
}

func TestWrapError_KeepsContext(t *testing.T) {
	p := &Provider{bucket: "b"}
	err := p.wrapError("List", "", miniogo.ErrorResponse{Code: "NoSuchBucket", Message: "gone"})

	var provErr *provider.ProviderError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, provider.ProviderMinIO, provErr.Provider)
	assert.Equal(t, "b", provErr.Bucket)
	assert.True(t, provider.IsBucketNotFound(err))
}
