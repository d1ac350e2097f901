package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMinioAPI mocks the minioAPI interface
type MockMinioAPI struct {
	mock.Mock
}

func (m *MockMinioAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinioAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockMinioAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinioAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockMinioAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Error(0)
}

func (m *MockMinioAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func newTestClient(t *testing.T, api *MockMinioAPI) *Client {
	t.Helper()
	client, err := NewClientWithAPI(context.Background(), api, "photos", "https://cdn.example.com/")
	require.NoError(t, err)
	return client
}

func TestNewClientWithAPI(t *testing.T) {
	t.Run("existing bucket is reused", func(t *testing.T) {
		api := &MockMinioAPI{}
		api.On("BucketExists", mock.Anything, "photos").Return(true, nil)

		_, err := NewClientWithAPI(context.Background(), api, "photos", "https://cdn.example.com")
		require.NoError(t, err)
		api.AssertNotCalled(t, "MakeBucket")
	})

	t.Run("missing bucket is created", func(t *testing.T) {
		api := &MockMinioAPI{}
		api.On("BucketExists", mock.Anything, "photos").Return(false, nil)
		api.On("MakeBucket", mock.Anything, "photos", mock.Anything).Return(nil)

		_, err := NewClientWithAPI(context.Background(), api, "photos", "https://cdn.example.com")
		require.NoError(t, err)
		api.AssertExpectations(t)
	})

	t.Run("bucket check failure surfaces", func(t *testing.T) {
		api := &MockMinioAPI{}
		api.On("BucketExists", mock.Anything, "photos").Return(false, errors.New("connection refused"))

		_, err := NewClientWithAPI(context.Background(), api, "photos", "https://cdn.example.com")
		assert.Error(t, err)
	})
}

func TestClient_Upload(t *testing.T) {
	api := &MockMinioAPI{}
	api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
	api.On("PutObject", mock.Anything, "photos", "user-1/pic.jpg", mock.Anything, int64(4), mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
		return opts.ContentType == "image/jpeg"
	})).Return(minio.UploadInfo{Key: "user-1/pic.jpg", Size: 4}, nil)

	client := newTestClient(t, api)

	url, err := client.Upload(context.Background(), "user-1/pic.jpg", bytes.NewReader([]byte("data")), 4, "image/jpeg")
	require.NoError(t, err)
	// The trailing slash on the public URL must not double up.
	assert.Equal(t, "https://cdn.example.com/photos/user-1/pic.jpg", url)
	api.AssertExpectations(t)
}

func TestClient_Upload_Failure(t *testing.T) {
	api := &MockMinioAPI{}
	api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
	api.On("PutObject", mock.Anything, "photos", "key", mock.Anything, int64(0), mock.Anything).
		Return(minio.UploadInfo{}, errors.New("disk full"))

	client := newTestClient(t, api)

	_, err := client.Upload(context.Background(), "key", strings.NewReader(""), 0, "image/png")
	assert.ErrorContains(t, err, "failed to upload object")
}

func TestClient_Download(t *testing.T) {
	api := &MockMinioAPI{}
	api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
	api.On("GetObject", mock.Anything, "photos", "key", mock.Anything).
		Return(io.NopCloser(strings.NewReader("payload")), nil)

	client := newTestClient(t, api)

	rc, err := client.Download(context.Background(), "key")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestClient_Delete(t *testing.T) {
	api := &MockMinioAPI{}
	api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
	api.On("RemoveObject", mock.Anything, "photos", "key", mock.Anything).Return(nil)

	client := newTestClient(t, api)

	require.NoError(t, client.Delete(context.Background(), "key"))
	api.AssertExpectations(t)
}

func TestClient_Exists(t *testing.T) {
	t.Run("present object", func(t *testing.T) {
		api := &MockMinioAPI{}
		api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
		api.On("StatObject", mock.Anything, "photos", "key", mock.Anything).
			Return(minio.ObjectInfo{Key: "key"}, nil)

		client := newTestClient(t, api)

		ok, err := client.Exists(context.Background(), "key")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing object is not an error", func(t *testing.T) {
		api := &MockMinioAPI{}
		api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
		api.On("StatObject", mock.Anything, "photos", "key", mock.Anything).
			Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound})

		client := newTestClient(t, api)

		ok, err := client.Exists(context.Background(), "key")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("transport failure surfaces", func(t *testing.T) {
		api := &MockMinioAPI{}
		api.On("BucketExists", mock.Anything, "photos").Return(true, nil)
		api.On("StatObject", mock.Anything, "photos", "key", mock.Anything).
			Return(minio.ObjectInfo{}, errors.New("connection reset"))

		client := newTestClient(t, api)

		_, err := client.Exists(context.Background(), "key")
		assert.Error(t, err)
	})
}
