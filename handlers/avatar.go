package handlers

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"

	"nexor/config"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var allowedAvatarTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
}

// HandleAvatarUpload replaces the logged-in user's avatar with the uploaded
// image, scaled down to fit the avatar box and stored as JPEG.
func HandleAvatarUpload(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleAvatarUpload")
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxAvatarSize+1<<20)
	if err := r.ParseMultipartForm(config.MaxAvatarSize); err != nil {
		respondError(w, http.StatusBadRequest, "Upload is too large or malformed.", app)
		return
	}

	userID := currentUserID(r, app)
	data, err := processAvatar(r, logger)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), app)
		return
	}

	sum := sha256.Sum256(data)
	filename := fmt.Sprintf("avatar_%d_%s.jpeg", userID, hex.EncodeToString(sum[:6]))
	ref, err := app.Storage().SaveFile(filename, data, "image/jpeg")
	if err != nil {
		logger.Error("Failed to save avatar", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Storage error", app)
		return
	}

	previous := ""
	if user := currentUser(r, app); user != nil {
		previous = user.Avatar
	}
	if err := app.DB().SetAvatar(userID, ref); err != nil {
		logger.Error("Failed to record avatar", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "Database error", app)
		return
	}
	if previous != "" && previous != config.DefaultAvatar && previous != ref {
		if err := app.Storage().DeleteFile(previous); err != nil {
			logger.Warn("Failed to delete previous avatar", "path", previous, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"avatar": ref}, app)
}

// processAvatar validates the "avatar" form file by magic bytes and
// dimensions, then returns it auto-oriented, fitted to AvatarSize and
// re-encoded as JPEG.
func processAvatar(r *http.Request, logger *slog.Logger) ([]byte, error) {
	file, header, err := r.FormFile("avatar")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, fmt.Errorf("no file uploaded")
		}
		return nil, fmt.Errorf("could not get form file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Error("Failed to close upload file", "error", err)
		}
	}()

	limitedReader := &io.LimitedReader{R: file, N: config.MaxAvatarSize + 1}
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("could not read file data: %w", err)
	}
	if limitedReader.N == 0 {
		return nil, fmt.Errorf("file is larger than the %dMB limit", config.MaxAvatarSize/1024/1024)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	contentType := http.DetectContentType(data)
	if !allowedAvatarTypes[contentType] {
		logger.Warn("User uploaded file with invalid MIME type", "detected_type", contentType, "filename", header.Filename)
		return nil, fmt.Errorf("unsupported file type: %s. Only JPG, PNG, GIF, and WebP are allowed", contentType)
	}

	reader := bytes.NewReader(data)
	cfg, _, err := image.DecodeConfig(reader)
	if err != nil {
		return nil, fmt.Errorf("invalid image format, could not decode config: %w", err)
	}
	if cfg.Width > config.MaxAvatarDim || cfg.Height > config.MaxAvatarDim {
		return nil, fmt.Errorf("image dimensions (%dx%d) exceed maximum (%dx%d)", cfg.Width, cfg.Height, config.MaxAvatarDim, config.MaxAvatarDim)
	}
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("could not reset reader position: %w", err)
	}

	img, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image with orientation correction: %w", err)
	}
	img = imaging.Fit(img, config.AvatarSize, config.AvatarSize, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode avatar: %w", err)
	}
	return out.Bytes(), nil
}
