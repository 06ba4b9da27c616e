//go:build !gcp

package main

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/relay/pkg/blob"
	"github.com/Mindburn-Labs/relay/pkg/config"
)

func openGCSBlobStore(_ context.Context, _ *config.Config) (blob.Store, error) {
	return nil, errors.New("gcs backend requires a build with -tags gcp")
}
