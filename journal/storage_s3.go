/*
Copyright (C) 2026  txdb contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package journal

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config names the bucket and credentials an S3Storage uses. It
// generalizes the teacher's S3Factory (storage/persistence-s3.go).
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string // set for S3-compatible stores (MinIO, etc.)
	Bucket          string
	Prefix          string // object key prefix, e.g. "<dbname>/journal"
	ForcePathStyle  bool
}

// S3Storage is a Storage backed by an S3 (or S3-compatible) bucket.
// Objects are not append-only, so — exactly as the teacher's comment on
// S3Storage puts it — "we buffer and replace objects on sync": each
// segment is held in memory and re-uploaded in full on every Sync,
// which FileJournal.Append calls after every record.
type S3Storage struct {
	cfg    S3Config
	mu     sync.Mutex
	client *s3.Client
}

// NewS3Storage builds the AWS SDK client lazily on first use, mirroring
// ensureOpen in the teacher's S3Storage.
func NewS3Storage(cfg S3Config) *S3Storage {
	return &S3Storage{cfg: cfg}
}

func (s *S3Storage) ensureClient(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	var opts []func(*config.LoadOptions) error
	if s.cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKeyID, s.cfg.SecretAccessKey, "")))
	}
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		}
		o.UsePathStyle = s.cfg.ForcePathStyle
	})
	return s.client, nil
}

func (s *S3Storage) key(segment string) string {
	if s.cfg.Prefix == "" {
		return segment
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + segment
}

// OpenAppend returns a buffered writer that uploads the full segment
// contents to S3 on every Sync/Close call.
func (s *S3Storage) OpenAppend(segment string) (io.WriteCloser, error) {
	ctx := context.Background()
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	return &s3AppendWriter{storage: s, client: client, segment: segment}, nil
}

func (s *S3Storage) OpenRead(segment string) (io.ReadCloser, error) {
	ctx := context.Background()
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(segment)),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Storage) List() ([]string, error) {
	ctx := context.Background()
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}
	prefix := s.cfg.Prefix
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	var names []string
	var token *string
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			names = append(names, strings.TrimPrefix(*obj.Key, prefix))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3Storage) Remove(segment string) error {
	ctx := context.Background()
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}
	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(segment)),
	})
	return err
}

var _ Storage = (*S3Storage)(nil)

type s3AppendWriter struct {
	storage *S3Storage
	client  *s3.Client
	segment string
	buf     bytes.Buffer
}

func (w *s3AppendWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

// Sync re-uploads the whole buffered segment, replacing the object.
func (w *s3AppendWriter) Sync() error {
	ctx := context.Background()
	body := bytes.NewReader(w.buf.Bytes())
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.storage.cfg.Bucket),
		Key:    aws.String(w.storage.key(w.segment)),
		Body:   body,
	})
	return err
}

func (w *s3AppendWriter) Close() error {
	return w.Sync()
}
