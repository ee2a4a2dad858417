package s3uploader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const maxImageBytes = 20 << 20

type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies remote images into an S3 bucket.
type Uploader struct {
	client putter
	http   *http.Client
	bucket string
	region string
	prefix string
}

func New(accessKey, secretKey, region, bucket, prefix string) (*Uploader, error) {
	creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(creds),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &Uploader{
		client: s3.NewFromConfig(cfg),
		http:   http.DefaultClient,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Upload downloads sourceURL and stores it under a key derived from the URL,
// so relaying the same image twice overwrites one object.
func (u *Uploader) Upload(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, http.NoBody)
	if err != nil {
		return "", err
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unexpected content type %q", contentType)
	}

	key := ObjectKey(u.prefix, sourceURL)

	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   io.LimitReader(resp.Body, maxImageBytes),
	}

	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if resp.ContentLength > 0 && resp.ContentLength <= maxImageBytes {
		input.ContentLength = aws.Int64(resp.ContentLength)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	return u.PublicURL(key), nil
}

func (u *Uploader) PublicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}

// ObjectKey names the object for a source URL: a hash of the URL plus its
// file extension.
func ObjectKey(prefix, sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	name := hex.EncodeToString(sum[:16])

	if parsed, err := url.Parse(sourceURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); len(ext) > 1 && len(ext) <= 5 {
			name += ext
		}
	}

	if prefix == "" {
		return name
	}

	return prefix + "/" + name
}
