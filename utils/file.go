package utils

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// DiskBucket stores evidence screenshots under a local directory. It stands in
// for R2 when no bucket is configured.
type DiskBucket struct {
	Root    string
	BaseURL string
}

// NewDiskBucket creates root if it doesn't exist.
func NewDiskBucket(root, baseURL string) (*DiskBucket, error) {
	if err := os.MkdirAll(root, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to ensure upload dir: %w", err)
	}
	return &DiskBucket{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// UploadEvidence saves the file under key and returns BaseURL/key.
func (b *DiskBucket) UploadEvidence(_ context.Context, key string, fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxEvidenceBytes {
		return "", fmt.Errorf("evidence file too large: %d bytes", fileHeader.Size)
	}
	destPath := filepath.Join(b.Root, filepath.FromSlash(key))
	if !strings.HasPrefix(destPath, filepath.Clean(b.Root)+string(os.PathSeparator)) {
		return "", fmt.Errorf("illegal evidence key: %s", key)
	}
	if err := SaveFile(fileHeader, destPath); err != nil {
		return "", err
	}
	return b.BaseURL + "/" + key, nil
}

// SaveFile saves the uploaded file to the given destination path
func SaveFile(fileHeader *multipart.FileHeader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), os.ModePerm); err != nil {
		return err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, file)
	return err
}
