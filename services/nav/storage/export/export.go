// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes navigator history as JSON Lines to a local file or
// a Google Cloud Storage object.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/AleutianNav/services/nav/history"
)

// ErrBadDestination is returned for destinations that cannot be parsed.
var ErrBadDestination = errors.New("bad export destination")

const gcsScheme = "gs://"

// Destination is a parsed export target. Exactly one of Path or Bucket is
// set.
type Destination struct {
	Path   string
	Bucket string
	Object string
}

// IsGCS reports whether the destination is a bucket object.
func (d Destination) IsGCS() bool { return d.Bucket != "" }

func (d Destination) String() string {
	if d.IsGCS() {
		return gcsScheme + d.Bucket + "/" + d.Object
	}
	return d.Path
}

// ParseDestination reads "gs://bucket/object" or a file path.
func ParseDestination(s string) (Destination, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Destination{}, fmt.Errorf("%w: empty", ErrBadDestination)
	}
	if !strings.HasPrefix(s, gcsScheme) {
		return Destination{Path: filepath.Clean(s)}, nil
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(s, gcsScheme), "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return Destination{}, fmt.Errorf("%w: %q needs gs://bucket/object", ErrBadDestination, s)
	}
	return Destination{Bucket: bucket, Object: object}, nil
}

// Encode writes entries one JSON object per line.
func Encode(w io.Writer, entries []history.Entry) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("encode entry %s: %w", entries[i].ID, err)
		}
	}
	return bw.Flush()
}

// Exporter copies recent history to a destination.
type Exporter struct {
	// ClientOptions are passed to the storage client for gs:// targets.
	ClientOptions []option.ClientOption
}

// Export reads up to limit entries (0 for all) and writes them to dest.
//
// Outputs:
//
//	int - Entries written.
//	error - Read, parse or write failure. A failed file export removes the
//	  partial file.
func (x *Exporter) Export(ctx context.Context, rec history.Recorder, dest string, limit int) (int, error) {
	d, err := ParseDestination(dest)
	if err != nil {
		return 0, err
	}
	entries, err := rec.Recent(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("read history: %w", err)
	}
	if d.IsGCS() {
		err = x.writeGCS(ctx, d, entries)
	} else {
		err = writeFile(d.Path, entries)
	}
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func writeFile(path string, entries []history.Entry) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	return Encode(f, entries)
}

func (x *Exporter) writeGCS(ctx context.Context, d Destination, entries []history.Entry) error {
	client, err := storage.NewClient(ctx, x.ClientOptions...)
	if err != nil {
		return fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	defer client.Close()

	w := client.Bucket(d.Bucket).Object(d.Object).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if err := Encode(w, entries); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", d, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", d, err)
	}
	return nil
}
