//go:build gcp

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/Mindburn-Labs/relay/pkg/blob"
	"github.com/Mindburn-Labs/relay/pkg/config"
)

func openGCSBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	store, err := blob.NewGCSStore(ctx, cfg.EventsBucket)
	if err != nil {
		return nil, fmt.Errorf("open gcs: %w", err)
	}
	log.Printf("[relay] gcs: bucket %s", cfg.EventsBucket)
	return store, nil
}
