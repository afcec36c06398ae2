// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package normalize

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/venslabs/roundup/pkg/channel"
	"github.com/venslabs/roundup/pkg/diag"
	"github.com/venslabs/roundup/pkg/finding"
)

// ReadArtifact detects the format of r and normalizes it.
func ReadArtifact(ctx context.Context, r io.Reader, ch, artifact string, diags *diag.Collector) ([]finding.Finding, error) {
	br := bufio.NewReader(r)
	format, err := DetectFormat(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", artifact, err)
	}
	slog.DebugContext(ctx, "Reading scanner artifact", "artifact", artifact, "format", format)
	switch format {
	case FormatTrivy:
		return ReadTrivy(ctx, br, ch, artifact, diags)
	default:
		return ReadVulnix(ctx, br, ch, artifact, diags)
	}
}

// ArtifactPath returns the scanner artifact of ch inside dir, preferring the plain JSON
// file over a zstd compressed one.
func ArtifactPath(dir string, ch channel.Channel) (string, error) {
	plain := filepath.Join(dir, ch.ArtifactName())
	for _, p := range []string{plain, plain + ".zst"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w for channel %s in %s", ErrMissingArtifact, ch.Name, dir)
}

// LoadFile opens a scanner artifact, transparently decompressing "*.zst".
func LoadFile(ctx context.Context, path, ch string, diags *diag.Collector) ([]finding.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if filepath.Ext(path) == ".zst" {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return ReadArtifact(ctx, r, ch, filepath.Base(path), diags)
}

// LoadChannels reads the artifacts of all channels in parallel. The result is indexed
// like chans and is only returned once every channel has been read.
func LoadChannels(ctx context.Context, dir string, chans channel.Set, diags *diag.Collector) ([][]finding.Finding, error) {
	out := make([][]finding.Finding, len(chans))
	g, ctx := errgroup.WithContext(ctx)
	for i, ch := range chans {
		g.Go(func() error {
			p, err := ArtifactPath(dir, ch)
			if err != nil {
				return err
			}
			found, err := LoadFile(ctx, p, ch.Name, diags)
			if err != nil {
				return err
			}
			finding.Sort(found)
			slog.InfoContext(ctx, "Loaded scanner artifact", "channel", ch.Name, "findings", len(found))
			out[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
