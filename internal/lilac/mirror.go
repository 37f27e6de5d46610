package lilac

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps an S3-compatible client for the binary mirror.
// Cloudflare R2 and plain S3 both work; the endpoint decides.
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
	Prefix     string
}

// MirrorEntry is one artifact in the mirror index.
type MirrorEntry struct {
	File  string `json:"file"`
	B3Sum string `json:"b3sum"`
	Size  int64  `json:"size"`
}

// NewMirrorClient initializes the mirror client from the [mirror] config
// section. Returns nil without error when the section is absent.
func NewMirrorClient(cfg *Config) (*MirrorClient, error) {
	endpoint := cfg.Get("mirror.endpoint")
	accessKey := cfg.Get("mirror.access_key_id")
	secretKey := cfg.Get("mirror.secret_access_key")
	bucketName := cfg.Get("mirror.bucket")

	if endpoint == "" && bucketName == "" {
		return nil, nil
	}
	if accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("mirror credentials missing in configuration (mirror.access_key_id, mirror.secret_access_key, mirror.bucket)")
	}

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRegion("auto"),
	}
	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &MirrorClient{
		Client:     client,
		BucketName: bucketName,
		Prefix:     cfg.Get("mirror.prefix"),
	}, nil
}

// UploadArtifacts pushes each artifact and its signature, then refreshes
// the JSON index.
func (m *MirrorClient) UploadArtifacts(ctx context.Context, files []string) error {
	var entries []MirrorEntry
	for _, file := range files {
		for _, path := range []string{file, file + ".sig"} {
			if err := m.uploadLocalFile(ctx, path); err != nil {
				return err
			}
		}
		sum, err := Blake3Sum(file)
		if err != nil {
			return err
		}
		st, err := os.Stat(file)
		if err != nil {
			return err
		}
		entries = append(entries, MirrorEntry{
			File:  filepath.Base(file),
			B3Sum: sum,
			Size:  st.Size(),
		})
	}
	return m.updateIndex(ctx, entries)
}

func (m *MirrorClient) key(name string) string {
	if m.Prefix == "" {
		return name
	}
	return strings.TrimSuffix(m.Prefix, "/") + "/" + name
}

func (m *MirrorClient) uploadLocalFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	if strings.HasSuffix(path, ".zst") {
		contentType = "application/zstd"
	}

	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(m.key(filepath.Base(path))),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// updateIndex merges the new entries into repo-index.json on the mirror.
func (m *MirrorClient) updateIndex(ctx context.Context, entries []MirrorEntry) error {
	index := make(map[string]MirrorEntry)

	out, err := m.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.BucketName),
		Key:    aws.String(m.key("repo-index.json")),
	})
	if err == nil {
		var existing []MirrorEntry
		if decErr := json.NewDecoder(out.Body).Decode(&existing); decErr == nil {
			for _, e := range existing {
				index[e.File] = e
			}
		}
		out.Body.Close()
	} else {
		debugf("mirror index not found or error fetching: %v\n", err)
	}

	for _, e := range entries {
		index[e.File] = e
	}

	merged := make([]MirrorEntry, 0, len(index))
	for _, name := range sortedKeys(index) {
		merged = append(merged, index[name])
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(m.key("repo-index.json")),
		Body:          strings.NewReader(string(data)),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	return err
}
