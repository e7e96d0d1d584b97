package resources

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
)

// fetch downloads obj and extracts it to target. Extraction goes to a temporary
// sibling first, so target only ever appears complete.
func (r *Resolver) fetch(ctx context.Context, obj object, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.MkdirTemp(filepath.Dir(target), ".extract-*")
	if err != nil {
		return fmt.Errorf("failed to create tmp directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.bucket),
		Key:    aws.String(obj.key),
	})
	if err != nil {
		return fmt.Errorf("failed to download from s3: %w (bucket: %s, key: %s)", err, obj.bucket, obj.key)
	}
	defer out.Body.Close()

	var body io.Reader = out.Body
	if obj.compressed() || aws.ToString(out.ContentType) == "application/zstd" {
		d, err := zstd.NewReader(out.Body)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer d.Close()
		body = d
	}

	if err := extract(tar.NewReader(body), tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to move resources into cache: %w", err)
	}
	return nil
}

func extract(tr *tar.Reader, dir string) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}
		if !filepath.IsLocal(hdr.Name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		path := filepath.Join(dir, hdr.Name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
		case tar.TypeXGlobalHeader:
		default:
			return fmt.Errorf("%w: entry %s has unsupported type %q", ErrUnsupported, hdr.Name, hdr.Typeflag)
		}
	}
}

func writeFile(path string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
