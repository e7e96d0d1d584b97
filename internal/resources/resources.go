// Package resources turns a resource bundle location into a local directory.
//
// Local paths are used in place. Archives stored in S3 are downloaded once,
// extracted into the cache directory and reused by later runs.
package resources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrUnsupported = errors.New("unsupported resource location")
	ErrUnsafePath  = errors.New("archive entry escapes target directory")
	ErrNoClient    = errors.New("no S3 client configured")
)

// GetObjectAPI is the part of *s3.Client the resolver needs.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Resolver struct {
	client   GetObjectAPI
	cacheDir string
	locks    *xsync.MapOf[string, *sync.Mutex]
	logger   *slog.Logger
}

// New creates a resolver that extracts remote bundles under cacheDir. client may
// be nil when only local bundles are expected.
func New(client GetObjectAPI, cacheDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		client:   client,
		cacheDir: cacheDir,
		locks:    xsync.NewMapOf[string, *sync.Mutex](),
		logger:   logger,
	}
}

// object names an archive in a bucket.
type object struct {
	bucket string
	key    string
}

func (o object) compressed() bool { return strings.HasSuffix(o.key, ".tar.zst") }

// Resolve returns the local directory holding the bundle at location.
func (r *Resolver) Resolve(ctx context.Context, location string) (string, error) {
	obj, remote, err := parseLocation(location)
	if err != nil {
		return "", err
	}
	if !remote {
		return location, nil
	}
	if r.client == nil {
		return "", fmt.Errorf("%w: cannot fetch %s", ErrNoClient, location)
	}

	target := r.targetDir(location)
	mu, _ := r.locks.LoadOrCompute(target, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	defer mu.Unlock()

	if info, err := os.Stat(target); err == nil && info.IsDir() {
		r.logger.Debug("using cached resources", "location", location, "dir", target)
		return target, nil
	}

	r.logger.Info("downloading resources...", "bucket", obj.bucket, "key", obj.key)
	if err := r.fetch(ctx, obj, target); err != nil {
		return "", fmt.Errorf("failed to fetch resources %s: %w", location, err)
	}
	r.logger.Info("extracted resources", "dir", target)
	return target, nil
}

func (r *Resolver) targetDir(location string) string {
	sum := sha256.Sum256([]byte(location))
	return filepath.Join(r.cacheDir, "resources", hex.EncodeToString(sum[:]))
}

// parseLocation reports whether location names a remote archive and, if so,
// where it is stored.
func parseLocation(location string) (object, bool, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" {
		return object{}, false, nil
	}

	var obj object
	switch u.Scheme {
	case "s3":
		obj = object{bucket: u.Host, key: strings.TrimPrefix(u.Path, "/")}
	case "https":
		// bucket.s3.region.amazonaws.com
		hostParts := strings.Split(u.Host, ".")
		if len(hostParts) < 3 || hostParts[1] != "s3" {
			return object{}, false, fmt.Errorf("%w: invalid s3 url host format: %s", ErrUnsupported, u.Host)
		}
		obj = object{bucket: hostParts[0], key: strings.TrimPrefix(u.Path, "/")}
	default:
		return object{}, false, fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}

	if obj.bucket == "" || obj.key == "" {
		return object{}, false, fmt.Errorf("%w: missing bucket or key in %s", ErrUnsupported, location)
	}
	if !strings.HasSuffix(obj.key, ".tar") && !obj.compressed() {
		return object{}, false, fmt.Errorf("%w: %s is not a .tar or .tar.zst archive", ErrUnsupported, obj.key)
	}
	return obj, true, nil
}
