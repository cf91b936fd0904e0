// Package s3 把对象库放在 S3 兼容的对象存储 (AWS S3、MinIO) 中
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"gitdb/pkg/core"
	"gitdb/pkg/storage"
	"gitdb/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// typeMetaKey 记录对象类型，便于在控制台里区分文档内容与树/提交
const typeMetaKey = "gitdb-type"

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string

	// Prefix 是仓库在桶内的命名空间，多个仓库可以共享一个桶
	// 对象 Key 为 <Prefix>/objects/aa/bbcc...
	Prefix string
}

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	client *s3.Client
	bucket string
	root   string // <Prefix>/objects
}

// NewAdapter 初始化 S3 客户端，桶不存在时尝试创建
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 只支持 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	a := newWithClient(client, cfg.Bucket, cfg.Prefix)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
			// 并发创建或权限不足时继续运行，由后续的读写暴露真正的问题
			slog.Warn("failed to ensure bucket exists",
				slog.String("bucket", a.bucket),
				slog.String("err", err.Error()),
			)
		}
	}
	return a, nil
}

func newWithClient(client *s3.Client, bucket, prefix string) *Adapter {
	return &Adapter{
		client: client,
		bucket: bucket,
		root:   path.Join(strings.Trim(prefix, "/"), "objects"),
	}
}

// objectKey: "aabbcc..." -> "<root>/aa/bbcc..."
func (s *Adapter) objectKey(hash types.Hash) string {
	h := string(hash)
	if len(h) < 2 {
		return path.Join(s.root, h)
	}
	return path.Join(s.root, h[:2], h[2:])
}

// hashOf 是 objectKey 的逆运算
func (s *Adapter) hashOf(key string) (types.Hash, bool) {
	rest, ok := strings.CutPrefix(key, s.root+"/")
	if !ok {
		return "", false
	}
	shard, name, ok := strings.Cut(rest, "/")
	if !ok || len(shard) != 2 {
		return "", false
	}
	return types.Hash(shard + name), true
}

func contentType(t core.ObjectType) string {
	if t == core.TypeBlob {
		return "application/octet-stream"
	}
	return "application/cbor"
}

// Put 上传对象；对象已存在时什么都不做
func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	// HEAD 比 PUT 便宜，内容寻址的对象不需要重复上传
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return fmt.Errorf("s3 put existence check failed: %w", err)
	}
	if exists {
		return nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(obj.ID())),
		Body:        bytes.NewReader(obj.Bytes()),
		ContentType: aws.String(contentType(obj.Type())),
		Metadata:    map[string]string{typeMetaKey: string(obj.Type())},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s failed: %w", obj.ID().Short(), err)
	}
	return nil
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(hash)),
	})
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, hash.Short())
	}
	if err != nil {
		return nil, fmt.Errorf("s3 get %s failed: %w", hash.Short(), err)
	}
	return resp.Body, nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(hash)),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// ExpandHash 用 ListObjectsV2 按前缀查找，最多列两个 Key 就能判断唯一性
func (s *Adapter) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	prefix := string(short)
	if len(prefix) < storage.MinPrefixLen {
		return "", fmt.Errorf("%w: %q", storage.ErrPrefixTooShort, prefix)
	}

	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.objectKey(types.Hash(prefix))),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return "", fmt.Errorf("s3 list failed: %w", err)
	}

	switch len(resp.Contents) {
	case 0:
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, prefix)
	case 1:
		hash, ok := s.hashOf(aws.ToString(resp.Contents[0].Key))
		if !ok {
			return "", fmt.Errorf("%w: %s", storage.ErrNotFound, prefix)
		}
		return hash, nil
	default:
		return "", fmt.Errorf("%w: %s", storage.ErrAmbiguousHash, prefix)
	}
}

// isNotFound 识别 GetObject 的 NoSuchKey 与 HeadObject 的 NotFound
// 某些 S3 兼容实现只返回带 404 的通用错误
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "StatusCode: 404")
}
