package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	objects map[string]string
	fail    error
}

func (f *fakeUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(b)
	return &manager.UploadOutput{}, nil
}

func outputs(t *testing.T) (file, dir string) {
	t.Helper()
	root := t.TempDir()
	file = filepath.Join(root, "model.imgl")
	require.NoError(t, os.WriteFile(file, []byte("IMGL"), 0o644))
	dir = filepath.Join(root, "web")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "group1-shard1of1.bin"), []byte("w"), 0o644))
	return file, dir
}

func TestPublishToS3(t *testing.T) {
	file, dir := outputs(t)
	fake := &fakeUploader{objects: map[string]string{}}
	target := Target{Store: &S3ObjectStore{bucket: "models", uploader: fake}, Prefix: "clf/v1"}

	locs, err := Publish(context.Background(), target, []string{file, dir})
	require.NoError(t, err)
	sort.Strings(locs)
	assert.Equal(t, []string{
		"s3://models/clf/v1/model.imgl",
		"s3://models/clf/v1/web/group1-shard1of1.bin",
		"s3://models/clf/v1/web/model.json",
	}, locs)
	assert.Equal(t, "IMGL", fake.objects["models/clf/v1/model.imgl"])
}

func TestPublishS3Failure(t *testing.T) {
	file, _ := outputs(t)
	fake := &fakeUploader{fail: errors.New("denied")}
	_, err := Publish(context.Background(), Target{Store: &S3ObjectStore{bucket: "b", uploader: fake}}, []string{file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/model.imgl")
}

func TestPublishLocal(t *testing.T) {
	file, dir := outputs(t)
	dest := t.TempDir()
	target, err := Open(context.Background(), "file://"+dest, S3Config{})
	require.NoError(t, err)

	_, err = Publish(context.Background(), target, []string{file, dir})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "model.imgl"))
	assert.FileExists(t, filepath.Join(dest, "web", "model.json"))
}

func TestOpenRejects(t *testing.T) {
	_, err := Open(context.Background(), "ftp://host/x", S3Config{})
	assert.Error(t, err)
	_, err = Open(context.Background(), "s3:///nobucket", S3Config{})
	assert.Error(t, err)
}

func TestLocalRejectsEscapingKey(t *testing.T) {
	s := NewLocalObjectStore(t.TempDir())
	err := s.PutObject(context.Background(), "../evil", nil)
	assert.Error(t, err)
}
