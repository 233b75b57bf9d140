package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// PhotoStore uploads request photos and returns a URL clients can load.
type PhotoStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, objectName string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// IsInline reports whether photo carries its bytes as a data URL rather than pointing at a remote file.
func IsInline(photo string) bool {
	return strings.HasPrefix(photo, "data:")
}

// DecodeDataURL splits "data:image/jpeg;base64,...." into bytes and content type.
func DecodeDataURL(photo string) ([]byte, string, error) {
	if !IsInline(photo) {
		return nil, "", fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(photo[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("data URL has no payload")
	}

	contentType := "image/jpeg"
	params := strings.Split(header, ";")
	if params[0] != "" {
		contentType = params[0]
	}
	if len(params) < 2 || params[len(params)-1] != "base64" {
		return nil, "", fmt.Errorf("only base64 data URLs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	return data, contentType, nil
}

// RequestPrefix is the folder holding every photo of one request.
func RequestPrefix(requestID string) string {
	return "requests/" + requestID + "/"
}

// PhotoObjectName lays photos out as requests/{requestId}/photo_{index}_{unixMillis}{ext}.
func PhotoObjectName(requestID string, index int, contentType string, now time.Time) string {
	return fmt.Sprintf("%sphoto_%d_%d%s", RequestPrefix(requestID), index, now.UnixMilli(), extension(contentType))
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
