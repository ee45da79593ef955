package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/inference-worker/internal/installer/storage"
)

func DecodeCursor(cursorStr string) (*storage.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	createdAt, requestID, ok := strings.Cut(string(decoded), "|")
	if !ok || requestID == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var nanos int64
	if _, err := fmt.Sscanf(createdAt, "%d", &nanos); err != nil {
		return nil, fmt.Errorf("invalid created_at in cursor: %w", err)
	}

	return &storage.Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		RequestID: requestID,
	}, nil
}

func EncodeCursor(cursor *storage.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.RequestID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
