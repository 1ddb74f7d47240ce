package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FilesystemNotifier drops every message as a JSON file in a directory, one file per mail.
type FilesystemNotifier struct {
	directory string
}

func NewFilesystemNotifier(directory string) (*FilesystemNotifier, error) {
	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create mailbox directory: %w", err)
	}
	return &FilesystemNotifier{directory: directory}, nil
}

func (f *FilesystemNotifier) Notify(_ context.Context, msg Message) error {
	entry := struct {
		Message
		Timestamp string `json:"timestamp"`
	}{
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	content, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	path := filepath.Join(f.directory, fmt.Sprintf("%d.json", time.Now().UnixNano()))
	if err = os.WriteFile(path, content, 0600); err != nil {
		return fmt.Errorf("failed to write notification file: %w", err)
	}

	zap.L().Info("Notification written to filesystem",
		zap.String("path", path),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
