package controllers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bnnchamploo/bandle-garden/config"
	"github.com/bnnchamploo/bandle-garden/utils"
)

// UploadController stores post images and avatars on local disk under
// the configured upload directory.
type UploadController struct{}

// NewUploadController creates a new UploadController instance.
func NewUploadController() *UploadController {
	return &UploadController{}
}

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// UploadImage accepts one image and returns its public URL. Files are
// renamed to a uuid to avoid collisions and filename-based attacks.
func (u *UploadController) UploadImage(ctx *gin.Context) {
	if _, ok := getUserID(ctx); !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	file, header, err := ctx.Request.FormFile("image")
	if err != nil {
		file, header, err = ctx.Request.FormFile("file")
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40050, "no file uploaded")
			return
		}
	}
	defer file.Close()

	const maxSize = 5 * 1024 * 1024
	if header.Size > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40051, "file size exceeds 5MB")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExts[ext] {
		utils.Error(ctx, http.StatusBadRequest, 40052, "only image files are allowed")
		return
	}

	now := time.Now()
	baseDir := filepath.Join(config.Get().UploadDir, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to create upload directory")
		return
	}

	name := uuid.NewString() + ext
	dstPath := filepath.Join(baseDir, name)
	out, err := os.Create(dstPath)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to save file")
		return
	}
	defer out.Close()

	lr := &io.LimitedReader{R: file, N: maxSize + 1}
	written, err := io.Copy(out, lr)
	if err != nil || written > maxSize {
		_ = out.Close()
		_ = os.Remove(dstPath)
		if written > maxSize {
			utils.Error(ctx, http.StatusBadRequest, 40051, "file size exceeds 5MB")
		} else {
			utils.Error(ctx, http.StatusInternalServerError, 50052, "failed to write file")
		}
		return
	}

	url := fmt.Sprintf("/uploads/%s/%s/%s", now.Format("2006"), now.Format("01"), name)
	utils.Success(ctx, gin.H{"url": url})
}
