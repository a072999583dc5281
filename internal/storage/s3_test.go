package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in memory and records the last put.
type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
	err     error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.lastPut = in
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_SaveOpenDelete(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "case-docs", "/uploads/")
	ctx := context.Background()

	n, err := s.Save(ctx, "case-1/doc-1.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil || n != 13 {
		t.Fatalf("Save = (%d, %v)", n, err)
	}
	if _, ok := fake.objects["case-docs/uploads/case-1/doc-1.pdf"]; !ok {
		t.Fatalf("object not stored under prefix: %v", fake.objects)
	}
	if got := aws.ToInt64(fake.lastPut.ContentLength); got != 13 {
		t.Fatalf("ContentLength = %d", got)
	}
	if fake.lastPut.ServerSideEncryption != types.ServerSideEncryptionAwsKms {
		t.Fatalf("SSE = %q", fake.lastPut.ServerSideEncryption)
	}
	if aws.ToString(fake.lastPut.IfNoneMatch) != "*" {
		t.Fatalf("puts must not overwrite existing objects")
	}

	rc, err := s.Open(ctx, "case-1/doc-1.pdf")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "%PDF-1.4 body" {
		t.Fatalf("body = %q", body)
	}

	if err := s.Delete(ctx, "case-1/doc-1.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Open(ctx, "case-1/doc-1.pdf"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Open after delete err = %v; want ErrBlobNotFound", err)
	}
	if err := s.Delete(ctx, "case-1/doc-1.pdf"); err != nil {
		t.Fatalf("deleting a missing key should be a no-op, got %v", err)
	}
}

func TestS3Store_RejectsEscapingKeys(t *testing.T) {
	fake := newFakeS3()
	s := newS3Store(fake, "case-docs", "")
	for _, key := range []string{"", "../x", "a/../../x", "/etc/passwd"} {
		if _, err := s.Save(context.Background(), key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Save(%q) err = %v; want ErrInvalidKey", key, err)
		}
	}
	if len(fake.objects) != 0 {
		t.Fatalf("nothing should reach the bucket: %v", fake.objects)
	}
}

func TestS3Store_WrapsClientErrors(t *testing.T) {
	boom := errors.New("throttled")
	fake := newFakeS3()
	fake.err = boom
	s := newS3Store(fake, "case-docs", "")
	ctx := context.Background()

	if _, err := s.Save(ctx, "c/d", strings.NewReader("x")); !errors.Is(err, boom) {
		t.Fatalf("Save err = %v", err)
	}
	if _, err := s.Open(ctx, "c/d"); !errors.Is(err, boom) || errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("Open err = %v", err)
	}
	if err := s.Delete(ctx, "c/d"); !errors.Is(err, boom) {
		t.Fatalf("Delete err = %v", err)
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Options{Bucket: " "}); !errors.Is(err, ErrNoBucket) {
		t.Fatalf("err = %v; want ErrNoBucket", err)
	}
}

func TestLocalFS_OpenMissingIsNotFound(t *testing.T) {
	s, err := NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFS: %v", err)
	}
	if _, err := s.Open(context.Background(), "case-9/none.pdf"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err = %v; want ErrBlobNotFound", err)
	}
}
