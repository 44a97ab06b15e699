package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/draw"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"sameem/internal/config"
	"sameem/internal/models"
	"sameem/internal/repository"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultAvatarDir      = "/tmp/sameem/uploads/avatars"
	DefaultAvatarMaxBytes = 5 * 1024 * 1024
	AvatarSize            = 256
	AvatarWebPQuality     = 80
)

// UploadAvatarInput is the input for replacing a user's avatar.
type UploadAvatarInput struct {
	UserID      uint
	ContentType string
	Content     []byte
}

// AvatarService normalizes uploaded avatars: center-crop to a square, scale
// down to a fixed edge, and store a single WebP per content hash.
type AvatarService struct {
	userRepo repository.UserRepository
	dir      string
	maxBytes int64
}

// NewAvatarService returns a new AvatarService.
func NewAvatarService(userRepo repository.UserRepository, cfg *config.Config) *AvatarService {
	dir := DefaultAvatarDir
	maxBytes := int64(DefaultAvatarMaxBytes)
	if cfg != nil {
		if cfg.AvatarDir != "" {
			dir = cfg.AvatarDir
		}
		if cfg.AvatarMaxBytes > 0 {
			maxBytes = cfg.AvatarMaxBytes
		}
	}
	return &AvatarService{userRepo: userRepo, dir: dir, maxBytes: maxBytes}
}

// Upload validates, normalizes and stores the avatar, then points the user's
// profile at it. The previous avatar file is left in place; identical
// uploads share a file because the name is the content hash.
func (s *AvatarService) Upload(ctx context.Context, in UploadAvatarInput) (*models.User, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedAvatarMIME(detectedType) {
		return nil, models.NewValidationError("Invalid image type")
	}
	if provided := normalizeAvatarContentType(in.ContentType); strings.HasPrefix(provided, "image/") &&
		!avatarContentTypesMatch(provided, detectedType) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}

	user, err := s.userRepo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	square := centerCropSquare(decoded)
	scaled := scaleToEdge(square, AvatarSize)

	encoded := bytes.NewBuffer(nil)
	if err := webp.Encode(encoded, scaled, &webp.Options{Quality: AvatarWebPQuality}); err != nil {
		return nil, models.NewInternalError(err)
	}

	hash := avatarContentHash(in.UserID, encoded.Bytes())
	rel := hash + ".webp"
	if err := writeAvatarFile(filepath.Join(s.dir, rel), encoded.Bytes()); err != nil {
		return nil, models.NewInternalError(err)
	}

	user.Avatar = s.AvatarURL(rel)
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AvatarURL builds the public URL for a stored avatar file.
func (s *AvatarService) AvatarURL(filename string) string {
	return "/media/avatars/" + filename
}

// ResolveForServing maps an avatar filename to its on-disk path. Filenames
// are strictly hash.webp, which rules out path traversal.
func (s *AvatarService) ResolveForServing(filename string) (string, error) {
	base := strings.TrimSuffix(filename, ".webp")
	if base == filename || !isHexHash(base) {
		return "", models.NewValidationError("Invalid avatar filename")
	}
	full := filepath.Join(s.dir, filename)
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", models.NewNotFoundError("Avatar", filename)
		}
		return "", models.NewInternalError(err)
	}
	return full, nil
}

func centerCropSquare(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return src
	}

	edge := w
	if h < edge {
		edge = h
	}
	x := b.Min.X + (w-edge)/2
	y := b.Min.Y + (h-edge)/2

	dst := image.NewRGBA(image.Rect(0, 0, edge, edge))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

func scaleToEdge(src image.Image, edge int) image.Image {
	b := src.Bounds()
	if b.Dx() <= edge && b.Dy() <= edge {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, edge, edge))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

func isAllowedAvatarMIME(contentType string) bool {
	switch normalizeAvatarContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeAvatarContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func avatarContentTypesMatch(provided, detected string) bool {
	p := normalizeAvatarContentType(provided)
	d := normalizeAvatarContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func avatarContentHash(userID uint, content []byte) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "%d:", userID)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func isHexHash(s string) bool {
	if len(s) == 0 || len(s) > 128 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func writeAvatarFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
