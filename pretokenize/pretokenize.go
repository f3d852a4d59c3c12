// Package pretokenize provides the span splitters that sit in front of
// training and encoding: a regexp2-based pattern splitter (the GPT-4 word
// pattern by default) and a whitespace splitter for corpus preparation.
//
// Pattern splitters tile the input: the concatenation of the produced spans
// is exactly the input text, which is what keeps decode(encode(x)) == x.
package pretokenize

import (
	"strings"
	"sync"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/segtok/segtok/tokenizers/api"
)

// GPT4Pattern is the default word-splitting pattern. regexp2 has no
// possessive quantifiers, so the possessive runs of the original pattern are
// written as atomic groups. Alternatives, first match wins: contractions;
// letter runs with one optional leading non-letter byte; 1-3 digit runs;
// punctuation runs with trailing newlines; newline runs; whitespace not
// followed by non-whitespace; remaining whitespace runs.
const GPT4Pattern = `'(?i:[sdmt]|ll|ve|re)|(?>[^\r\n\p{L}\p{N}]?)\p{L}+|\p{N}{1,3}| ?(?>[^\s\p{L}\p{N}]+)[\r\n]*|\s*[\r\n]|\s+(?!\S)|\s+`

// Pattern splits text by repeatedly taking the first match of a regexp2
// pattern. The zero value is not usable; build one with NewPattern.
type Pattern struct {
	re        *regexp2.Regexp
	source    string
	normalize bool
	form      norm.Form
}

var _ api.Splitter = (*Pattern)(nil)

// NewPattern compiles a splitter from a regexp2 pattern.
func NewPattern(pattern string) (*Pattern, error) {
	re, err := regexp2.Compile(pattern, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling pretokenize pattern %q", pattern)
	}
	return &Pattern{re: re, source: pattern}, nil
}

// MustPattern is NewPattern for patterns known to compile.
func MustPattern(pattern string) *Pattern {
	p, err := NewPattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

var (
	defaultOnce    sync.Once
	defaultPattern *Pattern
)

// Default returns the shared GPT4Pattern splitter.
func Default() *Pattern {
	defaultOnce.Do(func() {
		defaultPattern = MustPattern(GPT4Pattern)
	})
	return defaultPattern
}

// WithNormalizer applies a Unicode normalization form to the text before
// splitting. Round trips then hold modulo that normalization. It returns a
// derived splitter; the receiver is unchanged, so Default() stays pristine.
func (p *Pattern) WithNormalizer(form norm.Form) *Pattern {
	derived := *p
	derived.normalize = true
	derived.form = form
	return &derived
}

// Source returns the pattern this splitter was compiled from.
func (p *Pattern) Source() string { return p.source }

// Split implements api.Splitter.
func (p *Pattern) Split(text string) ([]string, error) {
	if p.normalize {
		text = p.form.String(text)
	}
	if text == "" {
		return nil, nil
	}
	var spans []string
	m, err := p.re.FindStringMatch(text)
	if err != nil {
		return nil, errors.Wrap(err, "pretokenize match failed")
	}
	for m != nil {
		spans = append(spans, m.String())
		m, err = p.re.FindNextMatch(m)
		if err != nil {
			return nil, errors.Wrap(err, "pretokenize match failed")
		}
	}
	return spans, nil
}

// fieldsSplitter drops all whitespace. Useful to prepare training corpora,
// unusable for lossless encoding.
type fieldsSplitter struct{}

var _ api.Splitter = fieldsSplitter{}

func (fieldsSplitter) Split(text string) ([]string, error) {
	return strings.Fields(text), nil
}

// Whitespace returns the whitespace-dropping splitter.
func Whitespace() api.Splitter { return fieldsSplitter{} }

// FromConfig resolves a configured pattern string into a splitter, falling
// back to the default pattern when empty. The second return is the pattern
// to persist in trained models.
func FromConfig(pattern string) (api.Splitter, string, error) {
	if pattern == "" {
		return Default(), GPT4Pattern, nil
	}
	p, err := NewPattern(pattern)
	if err != nil {
		return nil, "", err
	}
	return p, pattern, nil
}
