// Package storage publishes committed conversion outputs to an object
// store: a local directory or an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ObjectStore receives published files.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error
	// Location renders key as a URL for logs.
	Location(key string) string
}

// Target is a parsed publish destination.
type Target struct {
	Store  ObjectStore
	Prefix string
}

// Open parses dest as s3://bucket/prefix, file:///dir or a plain directory.
func Open(ctx context.Context, dest string, s3cfg S3Config) (Target, error) {
	u, err := url.Parse(dest)
	if err != nil {
		return Target{}, fmt.Errorf("parse publish destination: %w", err)
	}
	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return Target{}, fmt.Errorf("publish destination %q has no bucket", dest)
		}
		store, err := NewS3ObjectStore(ctx, u.Host, s3cfg)
		if err != nil {
			return Target{}, err
		}
		return Target{Store: store, Prefix: strings.Trim(u.Path, "/")}, nil
	case "file":
		return Target{Store: NewLocalObjectStore(u.Path)}, nil
	case "":
		return Target{Store: NewLocalObjectStore(dest)}, nil
	}
	return Target{}, fmt.Errorf("unsupported publish scheme %q", u.Scheme)
}

// Publish uploads every path to t. A directory is uploaded recursively
// under its own base name; a file is uploaded under its base name.
// It returns the locations written.
func Publish(ctx context.Context, t Target, paths []string) ([]string, error) {
	var out []string
	put := func(local, key string) error {
		f, err := os.Open(local)
		if err != nil {
			return err
		}
		defer f.Close()
		key = path.Join(t.Prefix, key)
		if err := t.Store.PutObject(ctx, key, f); err != nil {
			return err
		}
		out = append(out, t.Store.Location(key))
		return nil
	}
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return out, err
		}
		if !fi.IsDir() {
			if err := put(p, filepath.Base(p)); err != nil {
				return out, err
			}
			continue
		}
		root := filepath.Clean(p)
		err = filepath.WalkDir(root, func(local string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(filepath.Dir(root), local)
			if err != nil {
				return err
			}
			return put(local, filepath.ToSlash(rel))
		})
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
