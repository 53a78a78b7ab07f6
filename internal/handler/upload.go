package handler

import (
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// saveUploadedImage 把上传的图片存进 dir，返回存储文件名。
// 文件名用 uuid 重新生成，避免重名和路径穿越。
func saveUploadedImage(c *gin.Context, file *multipart.FileHeader, dir string, maxSizeMB int) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		return "", fmt.Errorf("unsupported image type %q", ext)
	}
	if maxSizeMB > 0 && file.Size > int64(maxSizeMB)*1024*1024 {
		return "", fmt.Errorf("image too large: %d bytes", file.Size)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	if err := c.SaveUploadedFile(file, filepath.Join(dir, name)); err != nil {
		return "", err
	}
	return name, nil
}

// removeUploadedImage 删除旧图片，文件不存在时静默跳过
func removeUploadedImage(dir, name string) {
	if name == "" {
		return
	}
	_ = os.Remove(filepath.Join(dir, name))
}

// imageURL 把存储文件名变成前端可访问的 URL
func imageURL(name string) string {
	if name == "" {
		return ""
	}
	return "/uploads/" + name
}
