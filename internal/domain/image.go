package domain

import (
	"context"
	"time"
)

// Image is an uploaded satellite image awaiting analysis.
type Image struct {
	ID          string
	Filename    string
	ContentType string
	Data        []byte
	UploadedAt  time.Time
}

// ImageAnalyzer is the upstream image-classification service. It returns the
// free-form analysis text for one image; location may be empty.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, img Image, location string) (string, error)
}
