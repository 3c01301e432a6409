// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package iter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"gopkg.isalang.org/isac/internal/isa"
	"gopkg.isalang.org/isac/internal/optional"
)

// NewUnicodeFileBody converts a FileBody into an iterator of code points.
func NewUnicodeFileBody(b isa.FileBody) isa.Iterator[isa.CodePoint] {
	return NewUnicodeFileBodyCtx(context.Background(), b)
}

// NewUnicodeFileBodyCtx is the same as NewUnicodeFileBody but uses the given
// context for all read operations for cancellation or other purposes.
func NewUnicodeFileBodyCtx(ctx context.Context, b isa.FileBody) isa.Iterator[isa.CodePoint] {
	return newFileBody(ctx, b)
}

// NewUnicodeString iterates the code points of in-memory text.
func NewUnicodeString(s string) isa.Iterator[isa.CodePoint] {
	return &unicodeString{s: s}
}

type unicodeString struct {
	s      string
	offset int
}

func (u *unicodeString) Next(ctx context.Context) optional.Optional[isa.CodePoint] {
	if u.offset >= len(u.s) {
		return optional.None[isa.CodePoint]()
	}
	r, size := utf8.DecodeRuneInString(u.s[u.offset:])
	u.offset = u.offset + size
	return optional.Some(isa.CodePoint(r))
}

func (u *unicodeString) Close(context.Context) error {
	return nil
}

// ReadAll decodes an entire file body into a string.
func ReadAll(ctx context.Context, b isa.FileBody) (string, error) {
	points, err := Collect(ctx, NewUnicodeFileBodyCtx(ctx, b))
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, p := range points {
		_, _ = builder.WriteRune(rune(p))
	}
	return builder.String(), nil
}

type fileBody struct {
	readCloser io.ReadCloser
	scanner    *bufio.Scanner
}

func newFileBody(ctx context.Context, r isa.FileBody) *fileBody {
	rc := &fileBodyIO{
		ctx:  ctx,
		body: r,
	}
	scanner := bufio.NewScanner(rc)
	scanner.Split(bufio.ScanRunes)
	return &fileBody{
		readCloser: rc,
		scanner:    scanner,
	}
}

func (f *fileBody) Next(ctx context.Context) optional.Optional[isa.CodePoint] {
	ok := f.scanner.Scan()
	if !ok {
		return optional.None[isa.CodePoint]()
	}
	r, _ := utf8.DecodeRune(f.scanner.Bytes())
	return optional.Some(isa.CodePoint(r))
}

func (f *fileBody) Close(context.Context) error {
	_ = f.readCloser.Close()
	err := f.scanner.Err()
	if err != nil {
		return err
	}
	return nil
}

type fileBodyIO struct {
	ctx  context.Context
	body isa.FileBody
}

func (self *fileBodyIO) Read(p []byte) (int, error) {
	b, err := self.body.Read(self.ctx, int32(len(p)))
	if err != nil && !errors.Is(err, io.EOF) {
		return len(b), err
	}
	copy(p, b)
	if errors.Is(err, io.EOF) {
		return len(b), io.EOF
	}
	return len(b), nil
}

func (self *fileBodyIO) Close() error {
	return self.body.Close(self.ctx)
}
