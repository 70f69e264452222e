package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		suffix   string
	}{
		{name: "plain", filename: "talk.mp3", suffix: "/talk.mp3"},
		{name: "strips directories", filename: "../../etc/passwd", suffix: "/passwd"},
		{name: "windows path", filename: `C:\Users\me\rec.wav`, suffix: "/rec.wav"},
		{name: "replaces spaces", filename: "my talk.ogg", suffix: "/my_talk.ogg"},
		{name: "empty", filename: "", suffix: "/audio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := UploadKey(tt.filename)
			assert.True(t, strings.HasPrefix(key, "uploads/"), key)
			assert.True(t, strings.HasSuffix(key, tt.suffix), key)
			assert.Len(t, strings.Split(key, "/"), 3)
		})
	}

	assert.NotEqual(t, UploadKey("a"), UploadKey("a"))
}

func TestDiskStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "uploads/1/a.wav", []byte("RIFF"), "audio/wav"))

	data, err := store.Get(ctx, "uploads/1/a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)

	require.NoError(t, store.Put(ctx, "uploads/1/a.wav", []byte("RIFF2"), ""))
	data, err = store.Get(ctx, "uploads/1/a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF2"), data)

	_, err = store.Get(ctx, "uploads/missing")
	assert.ErrorIs(t, err, common.ErrBlobNotFound)

	for _, bad := range []string{"", "../escape", "/abs/path"} {
		assert.Error(t, store.Put(ctx, bad, []byte("x"), ""), bad)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.Get(canceled, "uploads/1/a.wav")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	store := &S3Store{client: fake, bucket: "audio"}

	require.NoError(t, store.Put(ctx, "uploads/1/a.mp3", []byte("ID3"), "audio/mpeg"))
	assert.Equal(t, []byte("ID3"), fake.objects["audio/uploads/1/a.mp3"])
	assert.Equal(t, "audio/mpeg", fake.types["uploads/1/a.mp3"])

	data, err := store.Get(ctx, "uploads/1/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)

	_, err = store.Get(ctx, "uploads/missing")
	assert.ErrorIs(t, err, common.ErrBlobNotFound)
}

func TestS3Store_GetErrors(t *testing.T) {
	notFound := &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: http.StatusNotFound}},
			Err:      errors.New("not found"),
		},
	}

	tests := []struct {
		name         string
		err          error
		wantNotFound bool
	}{
		{name: "http 404", err: notFound, wantNotFound: true},
		{name: "other failure", err: errors.New("connection reset"), wantNotFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &S3Store{client: &fakeS3{getErr: tt.err}, bucket: "audio"}
			_, err := store.Get(context.Background(), "k")
			require.Error(t, err)
			assert.Equal(t, tt.wantNotFound, errors.Is(err, common.ErrBlobNotFound))
		})
	}
}
