package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"twcc/internal/config"
	"twcc/internal/twcc"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps snapshots as objects under <prefix>/<userID>/. Writes are
// conditional on the key not existing, so a snapshot is never overwritten.
// The run claim is a <prefix>/<userID>/.lock object created the same way.
type S3Store struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	cipher   twcc.Cipher
	idgen    twcc.IDGenerator
}

// NewS3Store creates a store over an existing client.
func NewS3Store(client S3API, bucket, prefix string, cipher twcc.Cipher, idgen twcc.IDGenerator) *S3Store {
	if cipher == nil {
		cipher = twcc.PlainCipher{}
	}
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		cipher:   cipher,
		idgen:    idgen,
	}
}

// NewS3StoreFromConfig builds the S3 client from the snapshot config. Static
// credentials are used when both key environment variables are set;
// otherwise the default AWS credential chain applies.
func NewS3StoreFromConfig(ctx context.Context, cfg config.SnapshotConfig, cipher twcc.Cipher, idgen twcc.IDGenerator) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 snapshot store requires s3_bucket to be set")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyEnv != "" && cfg.S3SecretKeyEnv != "" {
		ak, sk := os.Getenv(cfg.S3AccessKeyEnv), os.Getenv(cfg.S3SecretKeyEnv)
		if ak != "" && sk != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")))
		}
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3PathStyle
	})
	return NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix, cipher, idgen), nil
}

func (s *S3Store) userPrefix(userID string) string {
	if s.prefix == "" {
		return userID + "/"
	}
	return s.prefix + "/" + userID + "/"
}

func (s *S3Store) entries(ctx context.Context, userID string) ([]entry, error) {
	prefix := s.userPrefix(userID)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []entry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.Contains(name, "/") {
				continue
			}
			e, ok := parseSnapshotName(name)
			if !ok {
				continue
			}
			e.size = aws.ToInt64(obj.Size)
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *S3Store) LoadLatest(ctx context.Context, userID string) (*twcc.Snapshot, error) {
	entries, err := s.entries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: user %s", twcc.ErrNotFound, userID)
	}

	latest := entries[len(entries)-1]
	key := s.userPrefix(userID) + latest.name
	c, err := openerFor(latest, s.cipher)
	if err != nil {
		return nil, &twcc.CorruptSnapshotError{UserID: userID, Key: key, Err: err}
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s disappeared after listing", twcc.ErrNotFound, key)
		}
		return nil, fmt.Errorf("getting s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	return open(userID, key, out.Body, c)
}

func (s *S3Store) Save(ctx context.Context, snap *twcc.Snapshot) (string, error) {
	entries, err := s.entries(ctx, snap.UserID)
	if err != nil {
		return "", err
	}
	data, err := seal(snap, s.cipher)
	if err != nil {
		return "", err
	}

	name := snapshotName(nextStamp(entries, snap.CapturedAt), s.idgen.New(), s.cipher.Suffix())
	key := s.userPrefix(snap.UserID) + name
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return "", fmt.Errorf("snapshot %s already exists", key)
		}
		return "", fmt.Errorf("uploading s3://%s/%s: %w", s.bucket, key, err)
	}
	return key, nil
}

func (s *S3Store) List(ctx context.Context, userID string) ([]twcc.SnapshotInfo, error) {
	entries, err := s.entries(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefix := s.userPrefix(userID)
	return infos(userID, entries, func(name string) string { return prefix + name }), nil
}

// Claim creates the lock object only if it does not exist yet.
func (s *S3Store) Claim(ctx context.Context, userID string) (twcc.Claim, error) {
	key := path.Join(strings.TrimSuffix(s.userPrefix(userID), "/"), ".lock")
	body := fmt.Sprintf("since=%s\n", time.Now().UTC().Format(time.RFC3339))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s exists", twcc.ErrRunInProgress, s.bucket, key)
		}
		return nil, fmt.Errorf("creating lock object: %w", err)
	}
	return &s3Claim{s: s, key: key}, nil
}

type s3Claim struct {
	s        *S3Store
	key      string
	released bool
}

func (c *s3Claim) Release() error {
	if c.released {
		return nil
	}
	c.released = true
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := c.s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.s.bucket),
		Key:    aws.String(c.key),
	})
	if err != nil {
		return fmt.Errorf("deleting lock object: %w", err)
	}
	return nil
}

// isPreconditionFailed matches the error S3 returns when a conditional
// write loses against an existing object.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

// Compile-time check that S3Store implements twcc.SnapshotStore
var _ twcc.SnapshotStore = (*S3Store)(nil)
