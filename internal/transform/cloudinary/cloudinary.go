// Package cloudinary implements the remote transformer: the image is uploaded
// to Cloudinary with a cartoonify transformation and the CDN URL of the
// derived asset is returned.
package cloudinary

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	sdk "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/ahmethakanbesel/cartoon-api/internal/job"
	"github.com/ahmethakanbesel/cartoon-api/internal/transform"
)

const (
	defaultFolder         = "cartoon-uploads"
	defaultTransformation = "e_cartoonify/e_outline:100"
)

// Uploader is the subset of the Cloudinary upload API used here.
type Uploader interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

type Transformer struct {
	api            Uploader
	folder         string
	transformation string
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithFolder sets the Cloudinary folder uploads land in.
func WithFolder(folder string) Option {
	return func(t *Transformer) {
		if folder != "" {
			t.folder = folder
		}
	}
}

// WithTransformation overrides the eager transformation string.
func WithTransformation(tr string) Option {
	return func(t *Transformer) {
		if tr != "" {
			t.transformation = tr
		}
	}
}

// WithUploader replaces the SDK client, e.g. with a fake in tests.
func WithUploader(u Uploader) Option {
	return func(t *Transformer) { t.api = u }
}

// New creates a Transformer authenticated with the account credentials.
func New(cloudName, apiKey, apiSecret string, opts ...Option) (*Transformer, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary: cloud name, api key and api secret are required")
	}

	t := &Transformer{
		folder:         defaultFolder,
		transformation: defaultTransformation,
	}
	for _, o := range opts {
		o(t)
	}

	if t.api == nil {
		cld, err := sdk.NewFromParams(cloudName, apiKey, apiSecret)
		if err != nil {
			return nil, fmt.Errorf("cloudinary: %w", err)
		}
		t.api = &cld.Upload
	}
	return t, nil
}

func (t *Transformer) Name() string { return transform.Cloudinary }

func (t *Transformer) Transform(ctx context.Context, image []byte, onProgress func(int)) (string, error) {
	onProgress(30)

	contentType, _ := transform.Sniff(image)
	dataURI := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)

	params := uploader.UploadParams{
		Folder:         t.folder,
		Transformation: t.transformation,
	}
	if id, ok := job.IDFromContext(ctx); ok {
		params.PublicID = id
	}

	res, err := t.api.Upload(ctx, dataURI, params)
	if err != nil {
		return "", fmt.Errorf("cloudinary: %w", err)
	}
	if res == nil {
		return "", errors.New("cloudinary: empty upload response")
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary: upload response has no secure_url")
	}

	onProgress(90)
	return res.SecureURL, nil
}
