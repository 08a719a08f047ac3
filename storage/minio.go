package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"djmix/config"
	"djmix/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RecordingPrefix is the object prefix finished mixes are archived under.
const RecordingPrefix = "recordings/"

// ObjectInfo describes one archived object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BucketStats summarizes the archive.
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Archive uploads finished recordings to a MinIO bucket.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive wraps an existing client.
func NewArchive(client *minio.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// Connect builds a client from cfg and makes sure the bucket exists.
func Connect(ctx context.Context, cfg *config.Config) (*Archive, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created recording bucket", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("MinIO archive ready",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))
	return NewArchive(client, cfg.MinioBucket), nil
}

// ObjectKey maps a local recording path to its key in the bucket.
func ObjectKey(localPath string) string {
	return path.Join(RecordingPrefix, filepath.Base(localPath))
}

// Archive uploads the file at localPath and returns its object key.
func (a *Archive) Archive(ctx context.Context, localPath string) (string, error) {
	key := ObjectKey(localPath)
	info, err := a.client.FPutObject(ctx, a.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: inferContentType(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	logger.Info("Recording archived",
		logger.String("bucket", a.bucket),
		logger.String("key", key),
		logger.Int64("size", info.Size))
	return key, nil
}

// List returns the objects under prefix, newest first, with totals.
func (a *Archive) List(ctx context.Context, prefix string) ([]ObjectInfo, *BucketStats, error) {
	var (
		objects []ObjectInfo
		stats   BucketStats
	)
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		objects = append(objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ContentType:  inferContentType(obj.Key),
		})
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	sortNewestFirst(objects)
	return objects, &stats, nil
}

func sortNewestFirst(objects []ObjectInfo) {
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

func inferContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
