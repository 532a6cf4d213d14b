package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/roach88/bookshelf/internal/engine"
)

// ErrFileNotFound is returned when no file exists for a book and format.
var ErrFileNotFound = errors.New("book file not found")

// DirResolver finds book files laid out as <Root>/<book id>.<ext>.
type DirResolver struct {
	Root string
}

// Resolve returns the file for book in format, or an error wrapping
// ErrFileNotFound.
func (r DirResolver) Resolve(_ context.Context, book BookInfo, format engine.Format) (File, error) {
	path := filepath.Join(r.Root, strconv.FormatInt(book.ID, 10)+"."+format.Extension())

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, fmt.Errorf("%s: %w", path, ErrFileNotFound)
	}
	if err != nil {
		return File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory: %w", path, ErrFileNotFound)
	}

	return File{
		Path:        path,
		Name:        attachmentName(book, format),
		ContentType: format.ContentType(),
	}, nil
}

// attachmentName derives a file name from the title, falling back to the id.
func attachmentName(book BookInfo, format engine.Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		case unicode.IsSpace(r):
			return '_'
		}
		return -1
	}, strings.TrimSpace(book.Title))
	name = strings.Trim(name, "._")
	if name == "" {
		name = strconv.FormatInt(book.ID, 10)
	}
	return name + "." + format.Extension()
}
