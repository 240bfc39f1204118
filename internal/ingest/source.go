package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/filestore"
)

// Opener opens dataset sources from the local filesystem or, for s3://
// paths, from an object store.
type Opener struct {
	store         filestore.Store
	defaultBucket string
}

// NewOpener returns an Opener. store may be nil, in which case only local
// paths can be opened.
func NewOpener(store filestore.Store, defaultBucket string) *Opener {
	return &Opener{store: store, defaultBucket: defaultBucket}
}

// Stat checks that the file at p exists and returns its size, or -1 when
// the backend does not report one.
func (o *Opener) Stat(ctx context.Context, p string) (int64, error) {
	if !filestore.IsRemote(p) {
		fi, err := os.Stat(p)
		if err != nil {
			return 0, localError(err, "cannot stat "+p)
		}
		if fi.IsDir() {
			return 0, errs.Newf(errs.ErrKindInvalidInput, "%s is a directory", p)
		}
		return fi.Size(), nil
	}

	loc, err := o.locate(p)
	if err != nil {
		return 0, err
	}
	info, err := o.store.StatObject(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// Open returns a reader over the decoded text of src. Gzip input is
// recognised by its magic bytes and decompressed; the declared charset is
// then transcoded to UTF-8.
func (o *Opener) Open(ctx context.Context, src Source) (io.ReadCloser, error) {
	enc, err := charset(src.Charset)
	if err != nil {
		return nil, err
	}

	raw, err := o.openRaw(ctx, src.Path)
	if err != nil {
		return nil, err
	}
	rc := &stack{Reader: raw, closers: []io.Closer{raw}}

	br := bufio.NewReader(raw)
	rc.Reader = br
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = rc.Close()
			return nil, errs.Wrap(errs.ErrKindEncoding, "corrupt gzip stream in "+src.Path, err)
		}
		rc.Reader = zr
		rc.closers = append(rc.closers, zr)
	}

	if enc != nil {
		rc.Reader = enc.NewDecoder().Reader(rc.Reader)
	}
	rc.Reader = &ctxReader{ctx: ctx, r: rc.Reader}
	return rc, nil
}

func (o *Opener) openRaw(ctx context.Context, p string) (io.ReadCloser, error) {
	if !filestore.IsRemote(p) {
		f, err := os.Open(p)
		if err != nil {
			return nil, localError(err, "cannot open "+p)
		}
		return f, nil
	}

	loc, err := o.locate(p)
	if err != nil {
		return nil, err
	}
	return o.store.GetObject(ctx, loc.Bucket, loc.Key)
}

func (o *Opener) locate(p string) (filestore.Location, error) {
	if o.store == nil {
		return filestore.Location{}, errs.Newf(errs.ErrKindInvalidInput, "%s needs an object store, none is configured", p)
	}
	return filestore.ParseLocation(p, o.defaultBucket)
}

// charset resolves a declared charset. UTF-8 returns nil: the parser
// validates UTF-8 itself, and a decoder would hide invalid bytes behind
// replacement characters.
func charset(name string) (encoding.Encoding, error) {
	switch strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(name)) {
	case "", "utf8":
		return nil, nil
	case "latin1", "iso88591":
		return charmap.ISO8859_1, nil
	case "windows1252", "cp1252":
		return charmap.Windows1252, nil
	case "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "utf16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported charset %q", name)
	}
	return enc, nil
}

func localError(err error, msg string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
	}
	return errs.Wrap(errs.ErrKindInvalidInput, msg, err)
}

// stack closes its closers innermost first and reports the first failure.
type stack struct {
	io.Reader
	closers []io.Closer
}

func (s *stack) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// ctxReader stops a parse once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, errs.Wrap(errs.ErrKindTimeout, "ingest cancelled", err)
	}
	return c.r.Read(p)
}
