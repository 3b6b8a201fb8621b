package domain

import (
	"context"
	"time"
)

type Storage interface {
	Upload(ctx context.Context, localPath string, key string) error
}

// RemoteLister is implemented by targets that support remote retention.
type RemoteLister interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}
