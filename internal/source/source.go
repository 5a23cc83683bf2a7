// Package source collects raw NFS-e documents from files, directories and
// ZIP archives, including archives nested inside archives.
//
// Only entries named *.xml become documents. Archives are recognized by
// content, not by name. Failures that lose a whole archive, or an entry
// that cannot be read, are reported as skipped inputs so the batch goes on.
package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
	"github.com/ginjaninja78/nfse-tax-audit/pkg/utils"
)

const (
	// DefaultMaxDepth bounds archive nesting.
	DefaultMaxDepth = 8

	// DefaultMaxEntryBytes bounds the decompressed size of one entry.
	DefaultMaxEntryBytes = 64 << 20
)

// Options configures a Collector.
type Options struct {
	// MaxDepth is the deepest archive nesting still expanded. The outermost
	// archive is depth 1.
	MaxDepth int

	// MaxEntryBytes caps the decompressed size of a single archive entry.
	MaxEntryBytes int64

	// ZipCodePage is the IANA name of the code page used for archive entry
	// names not flagged as UTF-8, e.g. "cp850" or "windows-1252". Empty
	// keeps names as stored.
	ZipCodePage string
}

// Result is what a collection run produced.
type Result struct {
	Documents []types.RawDocument
	Skipped   []types.Skip
}

// Collector gathers documents. It holds no per-run state and is safe for
// concurrent use.
type Collector struct {
	maxDepth int
	maxEntry int64
	codePage encoding.Encoding
}

// New creates a Collector.
func New(opts Options) (*Collector, error) {
	c := &Collector{maxDepth: opts.MaxDepth, maxEntry: opts.MaxEntryBytes}
	if c.maxDepth <= 0 {
		c.maxDepth = DefaultMaxDepth
	}
	if c.maxEntry <= 0 {
		c.maxEntry = DefaultMaxEntryBytes
	}
	if opts.ZipCodePage != "" {
		cp, err := ianaindex.IANA.Encoding(opts.ZipCodePage)
		if err != nil {
			return nil, fmt.Errorf("unknown zip code page %q: %w", opts.ZipCodePage, err)
		}
		if cp == nil {
			return nil, fmt.Errorf("unsupported zip code page %q", opts.ZipCodePage)
		}
		c.codePage = cp
	}
	return c, nil
}

// FromPaths collects documents from files and directories. Directories are
// walked recursively; their files are visited in natural order ("nota2"
// before "nota10"). A path that does not exist is an error.
func (c *Collector) FromPaths(ctx context.Context, paths []string) (*Result, error) {
	res := &Result{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("input source was not found (%s): %w", p, err)
		}
		if !info.IsDir() {
			if err := c.fromFile(ctx, p, filepath.Base(p), res); err != nil {
				return nil, err
			}
			continue
		}

		files, err := utils.ListFiles(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			rel, err := filepath.Rel(p, f)
			if err != nil {
				rel = filepath.Base(f)
			}
			if err := c.fromFile(ctx, f, filepath.ToSlash(rel), res); err != nil {
				return nil, err
			}
		}
	}
	return res, nil
}

// FromBlob collects documents from one in-memory upload.
func (c *Collector) FromBlob(ctx context.Context, name string, data []byte) (*Result, error) {
	res := &Result{}
	if err := c.add(ctx, name, data, 0, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Collector) fromFile(ctx context.Context, file, name string, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Str("file", file).Err(err).Msg("skipping file")
		res.Skipped = append(res.Skipped, types.Skip{Name: name, Reason: err})
		return nil
	}
	return c.add(ctx, name, data, 0, res)
}

// add classifies one blob found at the given archive depth.
func (c *Collector) add(ctx context.Context, name string, data []byte, depth int, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := zerolog.Ctx(ctx)

	switch {
	case isZip(data):
		return c.expand(ctx, name, data, depth+1, res)
	case isXMLName(name):
		res.Documents = append(res.Documents, types.RawDocument{Name: name, Content: data})
	case hasExt(name, ".zip"):
		logger.Warn().Str("file", name).Msg("file named as archive is not a zip")
		res.Skipped = append(res.Skipped, types.Skip{Name: name, Reason: fmt.Errorf("%w: not a zip file", types.ErrArchive)})
	case depth == 0:
		logger.Debug().Str("file", name).Msg("skipping file, not recognized as xml or zip")
		res.Skipped = append(res.Skipped, types.Skip{Name: name, Reason: types.ErrUnsupportedInput})
	default:
		logger.Debug().Str("entry", name).Msg("ignoring archive entry, not xml")
	}
	return nil
}

// expand walks one archive and adds every entry found in it.
func (c *Collector) expand(ctx context.Context, name string, data []byte, depth int, res *Result) error {
	logger := zerolog.Ctx(ctx).With().Str("archive", name).Logger()

	if depth > c.maxDepth {
		logger.Warn().Int("depth", depth).Msg("archive nested too deep, skipping")
		res.Skipped = append(res.Skipped, types.Skip{
			Name:   name,
			Reason: fmt.Errorf("%w: depth %d exceeds %d", types.ErrArchiveDepth, depth, c.maxDepth),
		})
		return nil
	}

	// unsafe names are filtered by Walk
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		logger.Warn().Err(err).Msg("unable to open archive")
		res.Skipped = append(res.Skipped, types.Skip{Name: name, Reason: fmt.Errorf("%w: %v", types.ErrArchive, err)})
		return nil
	}

	unsafe := func(entry string) {
		logger.Warn().Str("entry", entry).Msg("skipping entry with unsafe path")
		res.Skipped = append(res.Skipped, types.Skip{
			Name:   name + "/" + entry,
			Reason: fmt.Errorf("%w: unsafe entry path %q", types.ErrArchive, entry),
		})
	}

	return Walk(zr, func(f *zip.File) error {
		entry := c.entryName(f, logger)
		full := name + "/" + entry

		if !isXMLName(entry) && !hasExt(entry, ".zip") {
			zipped, err := sniffZip(f)
			if err != nil || !zipped {
				logger.Debug().Str("entry", entry).Msg("ignoring archive entry, not xml")
				return nil
			}
		}

		content, err := c.readEntry(f)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("unable to read archive entry")
			res.Skipped = append(res.Skipped, types.Skip{Name: full, Reason: fmt.Errorf("%w: %v", types.ErrArchive, err)})
			return nil
		}
		return c.add(ctx, full, content, depth, res)
	}, unsafe)
}

// entryName decodes names stored in a legacy code page.
func (c *Collector) entryName(f *zip.File, logger zerolog.Logger) string {
	name := f.FileHeader.Name
	if c.codePage == nil || !f.FileHeader.NonUTF8 {
		return name
	}
	n, err := c.codePage.NewDecoder().String(name)
	if err != nil {
		cp, _ := ianaindex.IANA.Name(c.codePage)
		logger.Warn().Str("charset", cp).Str("entry", name).Err(err).
			Msg("unable to convert archive name from specified encoding")
		return name
	}
	return n
}

func (c *Collector) readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, c.maxEntry+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxEntry {
		return nil, fmt.Errorf("entry larger than %d bytes", c.maxEntry)
	}
	return data, nil
}

// sniffLen is enough of an entry to recognize its magic bytes.
const sniffLen = 262

// sniffZip reports whether an entry holds a zip archive without
// decompressing more than its first bytes.
func sniffZip(f *zip.File) (bool, error) {
	r, err := f.Open()
	if err != nil {
		return false, err
	}
	defer r.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return isZip(head[:n]), nil
}

func isZip(data []byte) bool {
	return filetype.Is(data, "zip")
}

func isXMLName(name string) bool {
	return hasExt(name, ".xml")
}

func hasExt(name, ext string) bool {
	return strings.EqualFold(path.Ext(name), ext)
}
