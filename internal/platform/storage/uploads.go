package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const defaultUploadTTL = 15 * time.Minute

var (
	// ErrContentTypeNotAllowed rejects non-image uploads.
	ErrContentTypeNotAllowed = errors.New("storage: content type not allowed")
	// ErrInvalidFileName rejects empty or unsafe file names.
	ErrInvalidFileName = errors.New("storage: invalid file name")
	// ErrNotConfigured is returned when no bucket or signer is configured.
	ErrNotConfigured = errors.New("storage: uploads not configured")
)

var (
	allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic"}
	unsafeFileChars   = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// UploadURL is a short-lived signed PUT target plus the object's eventual public location.
type UploadURL struct {
	URL       string
	Method    string
	Object    string
	PublicURL string
	Headers   map[string]string
	ExpiresAt time.Time
}

// UploadSigner issues signed upload URLs into one bucket.
type UploadSigner struct {
	bucket string
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewUploadSigner binds a signer to bucket. ttl <= 0 uses 15 minutes.
func NewUploadSigner(bucket string, signer Signer, ttl time.Duration, now func() time.Time) (*UploadSigner, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || signer == nil {
		return nil, ErrNotConfigured
	}
	if ttl <= 0 {
		ttl = defaultUploadTTL
	}
	if now == nil {
		now = time.Now
	}
	return &UploadSigner{bucket: bucket, signer: signer, ttl: ttl, now: now}, nil
}

// SignReviewImage returns a PUT URL for reviews/{shopperID}/{uploadID}/{fileName}.
func (u *UploadSigner) SignReviewImage(ctx context.Context, shopperID, uploadID, fileName, contentType string) (UploadURL, error) {
	if u == nil {
		return UploadURL{}, ErrNotConfigured
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !slices.Contains(allowedImageTypes, contentType) {
		return UploadURL{}, fmt.Errorf("%w: %s", ErrContentTypeNotAllowed, contentType)
	}
	name := unsafeFileChars.ReplaceAllString(path.Base(strings.TrimSpace(fileName)), "_")
	name = strings.Trim(name, "._")
	if name == "" || len(name) > 128 {
		return UploadURL{}, ErrInvalidFileName
	}
	object := path.Join("reviews", shopperID, uploadID, name)

	expires := u.now().Add(u.ttl)
	signed, err := gcs.SignedURL(u.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: u.signer.Email(),
		SignBytes: func(payload []byte) ([]byte, error) {
			return u.signer.SignBytes(ctx, payload)
		},
		Method:      "PUT",
		Expires:     expires,
		ContentType: contentType,
		Scheme:      gcs.SigningSchemeV4,
	})
	if err != nil {
		return UploadURL{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return UploadURL{
		URL:       signed,
		Method:    "PUT",
		Object:    object,
		PublicURL: fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, (&url.URL{Path: object}).EscapedPath()),
		Headers:   map[string]string{"Content-Type": contentType},
		ExpiresAt: expires,
	}, nil
}
