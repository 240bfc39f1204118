// Package ingest loads a dataset described by a Manifest: it opens every
// source file (local or object store, optionally gzip-compressed and in a
// declared charset), parses them concurrently and then builds and publishes
// the tables through a single schema.Builder.
package ingest

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/ExprDB/internal/catalog"
	"github.com/koustreak/ExprDB/internal/errs"
	"github.com/koustreak/ExprDB/internal/filestore"
	"github.com/koustreak/ExprDB/internal/flatfile"
)

// Default table names for the two mandatory tables.
const (
	DefaultDesignName = "design"
	DefaultDataName   = "data"
)

// Manifest lists the files of one dataset. Design and Data may both be
// left empty to add annotation tables to an already published dataset.
type Manifest struct {
	Design      Table   `koanf:"design" yaml:"design,omitempty" json:"design,omitempty"`
	Data        Table   `koanf:"data" yaml:"data,omitempty" json:"data,omitempty"`
	Annotations []Table `koanf:"annotations" yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// Table names one source file and the table it becomes.
type Table struct {
	// Name defaults to "design" / "data" for the mandatory tables and to the
	// file's base name for annotation tables. It is sanitized either way.
	Name string `koanf:"name" yaml:"name,omitempty" json:"name,omitempty"`

	// Category groups annotation tables. Ignored for design and data.
	Category string `koanf:"category" yaml:"category,omitempty" json:"category,omitempty"`

	Source `koanf:",squash" yaml:",inline"`
}

// Source describes how to read one file.
type Source struct {
	// Path is a local path or s3://bucket/key.
	Path string `koanf:"path" yaml:"path" json:"path"`

	// Delimiter is a single character, or "tab" / "comma". Defaults to tab
	// for .tsv, .tab and .txt files and to comma otherwise.
	Delimiter string `koanf:"delimiter" yaml:"delimiter,omitempty" json:"delimiter,omitempty"`

	// Header defaults to true.
	Header *bool `koanf:"header" yaml:"header,omitempty" json:"header,omitempty"`

	// Charset defaults to utf-8.
	Charset string `koanf:"charset" yaml:"charset,omitempty" json:"charset,omitempty"`

	NullTokens []string `koanf:"null_tokens" yaml:"null_tokens,omitempty" json:"null_tokens,omitempty"`
	LazyQuotes bool     `koanf:"lazy_quotes" yaml:"lazy_quotes,omitempty" json:"lazy_quotes,omitempty"`
}

// LoadManifest reads a YAML manifest. Relative local paths are resolved
// against the manifest's directory.
func LoadManifest(file string) (Manifest, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return Manifest{}, localError(err, "failed to read manifest")
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return Manifest{}, errs.Wrap(errs.ErrKindInvalidInput, "invalid manifest "+file, err)
	}
	m.Rebase(filepath.Dir(file))
	return m, nil
}

// Rebase makes relative local paths relative to dir.
func (m *Manifest) Rebase(dir string) {
	rebase := func(t *Table) {
		if t.Path == "" || filestore.IsRemote(t.Path) || filepath.IsAbs(t.Path) {
			return
		}
		t.Path = filepath.Join(dir, t.Path)
	}
	rebase(&m.Design)
	rebase(&m.Data)
	for i := range m.Annotations {
		rebase(&m.Annotations[i])
	}
}

// Empty reports whether the manifest names no files at all.
func (m Manifest) Empty() bool {
	return m.Design.Path == "" && m.Data.Path == "" && len(m.Annotations) == 0
}

// job is one resolved manifest entry.
type job struct {
	kind     catalog.TableKind
	category string
	name     string
	src      Source
	opts     flatfile.Options
}

// plan validates the manifest and resolves table names and parse options,
// in build order: design, data, then annotations as listed.
func (m Manifest) plan() ([]job, error) {
	if m.Empty() {
		return nil, errs.New(errs.ErrKindInvalidInput, "manifest names no files")
	}
	if (m.Design.Path == "") != (m.Data.Path == "") {
		return nil, errs.New(errs.ErrKindInvalidInput, "design and data files must be given together")
	}

	var jobs []job
	add := func(kind catalog.TableKind, t Table, fallback string) error {
		if t.Path == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "%s table has no path", kind)
		}
		name := t.Name
		if name == "" {
			name = fallback
		}
		name = SanitizeName(name)
		if name == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "cannot derive a table name for %s", t.Path)
		}
		category := strings.TrimSpace(t.Category)
		if kind == catalog.KindAnnotation && category == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "annotation table %q has no category", name)
		}
		opts, err := t.Source.options()
		if err != nil {
			return err
		}
		jobs = append(jobs, job{kind: kind, category: category, name: name, src: t.Source, opts: opts})
		return nil
	}

	if m.Design.Path != "" {
		if err := add(catalog.KindDesign, m.Design, DefaultDesignName); err != nil {
			return nil, err
		}
		if err := add(catalog.KindData, m.Data, DefaultDataName); err != nil {
			return nil, err
		}
	}
	for _, a := range m.Annotations {
		if err := add(catalog.KindAnnotation, a, baseName(a.Path)); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if _, dup := seen[j.name]; dup {
			return nil, errs.Newf(errs.ErrKindDuplicateTable, "table %q appears twice in the manifest", j.name)
		}
		seen[j.name] = struct{}{}
	}
	return jobs, nil
}

// options turns the source description into parser options.
func (s Source) options() (flatfile.Options, error) {
	delim, err := s.delimiter()
	if err != nil {
		return flatfile.Options{}, err
	}
	header := true
	if s.Header != nil {
		header = *s.Header
	}
	return flatfile.Options{
		Delimiter:  delim,
		Header:     header,
		LazyQuotes: s.LazyQuotes,
		NullTokens: s.NullTokens,
		KeyFirst:   true,
	}, nil
}

func (s Source) delimiter() (rune, error) {
	switch d := s.Delimiter; strings.ToLower(d) {
	case "":
		switch strings.ToLower(path.Ext(trimCompression(s.Path))) {
		case ".tsv", ".tab", ".txt":
			return '\t', nil
		}
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	default:
		r, size := utf8.DecodeRuneInString(d)
		if size != len(d) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
			return 0, errs.Newf(errs.ErrKindInvalidInput, "invalid delimiter %q for %s", d, s.Path)
		}
		return r, nil
	}
}

// SanitizeName lowercases s and maps it onto [a-z0-9_]. Runs of other
// characters collapse to one underscore; a leading digit gets a "t_" prefix.
func SanitizeName(s string) string {
	var sb strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			if pending && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			pending = false
			sb.WriteRune(r)
			continue
		}
		pending = true
	}
	out := sb.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "t_" + out
	}
	return out
}

// baseName is the file name without directories and extensions,
// e.g. "s3://b/annot/GO_terms.tsv.gz" -> "GO_terms".
func baseName(p string) string {
	if filestore.IsRemote(p) {
		p = p[len(filestore.Scheme):]
	}
	base := path.Base(filepath.ToSlash(trimCompression(p)))
	return strings.TrimSuffix(base, path.Ext(base))
}

func trimCompression(p string) string {
	if strings.HasSuffix(strings.ToLower(p), ".gz") {
		return p[:len(p)-3]
	}
	return p
}
