// Package catalog seeds the engine from a YAML file of books and users.
package catalog

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/bookshelf/internal/engine"
)

// Catalog is the seed file layout.
type Catalog struct {
	Books []Book `yaml:"books"`
	Users []User `yaml:"users"`
}

type Book struct {
	ID           int64    `yaml:"id"`
	Title        string   `yaml:"title"`
	Authors      []string `yaml:"authors"`
	Series       string   `yaml:"series"`
	SeriesNumber int      `yaml:"series_number"`
	Genres       []string `yaml:"genres"`
	Language     string   `yaml:"language"`
}

type User struct {
	GoogleID string   `yaml:"google_id"`
	Email    string   `yaml:"email"`
	Name     string   `yaml:"name"`
	Status   string   `yaml:"status"`
	Admin    bool     `yaml:"admin"`
	Devices  []Device `yaml:"devices"`
}

type Device struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Load reads a catalog file. Unknown keys are rejected.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog")
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return cat, nil
}

// Parse decodes catalog YAML. An empty document is an empty catalog.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	return &cat, nil
}

// Summary counts what Apply wrote.
type Summary struct {
	Books   int
	Users   int
	Devices int
}

// Apply submits the catalog to e. It can be applied repeatedly: books are
// upserted, existing users keep their ids, and devices already registered
// under the same email are skipped.
func Apply(e *engine.Engine, cat *Catalog, now time.Time) (Summary, error) {
	var sum Summary

	books := make([]engine.Book, 0, len(cat.Books))
	for _, b := range cat.Books {
		books = append(books, engine.Book{
			ID:           engine.BookID(b.ID),
			Title:        b.Title,
			Authors:      b.Authors,
			Series:       b.Series,
			SeriesNumber: b.SeriesNumber,
			Genres:       b.Genres,
			Language:     b.Language,
		})
	}
	n, err := engine.Submit(e, engine.LoadBooks{Books: books})
	if err != nil {
		return sum, errors.Wrap(err, "load books")
	}
	sum.Books = n.Value

	for _, u := range cat.Users {
		res, err := engine.Submit(e, engine.UpsertUser{GoogleID: u.GoogleID, Email: u.Email, Name: u.Name})
		if err != nil {
			return sum, errors.Wrapf(err, "user %q", u.GoogleID)
		}
		id := res.Value.ID
		sum.Users++

		if u.Status != "" || u.Admin {
			status := res.Value.Status
			if u.Status != "" {
				if status, err = engine.ParseUserStatus(u.Status); err != nil {
					return sum, errors.Wrapf(err, "user %q", u.GoogleID)
				}
			}
			admin := u.Admin
			if _, err := engine.Submit(e, engine.ChangeUserStatus{UserID: id, Status: status, Admin: &admin}); err != nil {
				return sum, errors.Wrapf(err, "user %q", u.GoogleID)
			}
		}

		for _, d := range u.Devices {
			_, err := engine.Submit(e, engine.CreateDevice{UserID: id, Name: d.Name, Email: d.Email, At: now})
			if errors.Is(err, engine.ErrDuplicate) {
				continue
			}
			if err != nil {
				return sum, errors.Wrapf(err, "user %q device %q", u.GoogleID, d.Email)
			}
			sum.Devices++
		}
	}

	slog.Info("catalog applied", "books", sum.Books, "users", sum.Users, "devices", sum.Devices)
	return sum, nil
}
