// Package storage 提供了与对象存储服务（如 MinIO）交互的功能，用于归档上传的原始 PDF。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"pdfchat-go/internal/config"
	"pdfchat-go/pkg/log"
)

// Archive 保存上传的原始文件，并为下载生成预签名链接。
type Archive struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewArchive 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewArchive(ctx context.Context, cfg config.MinIOConfig) (*Archive, error) {
	// 1. 初始化 MinIO 客户端
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", cfg.BucketName)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Archive{client: client, bucket: cfg.BucketName, expiry: expiry}, nil
}

// ObjectName 返回文档在存储桶中的对象名。
func ObjectName(documentID, fileName string) string {
	return path.Join("documents", documentID, path.Base("/"+fileName))
}

// Put 上传原始文件。
func (a *Archive) Put(ctx context.Context, documentID, fileName string, data []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, ObjectName(documentID, fileName), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return fmt.Errorf("上传文件到 MinIO 失败: %w", err)
	}
	return nil
}

// Remove 删除原始文件。
func (a *Archive) Remove(ctx context.Context, documentID, fileName string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, ObjectName(documentID, fileName), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("从 MinIO 删除文件失败: %w", err)
	}
	return nil
}

// PresignedURL 生成一个有时效的下载链接。
func (a *Archive) PresignedURL(ctx context.Context, documentID, fileName string) (string, error) {
	presignedURL, err := a.client.PresignedGetObject(ctx, a.bucket, ObjectName(documentID, fileName), a.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return presignedURL.String(), nil
}
