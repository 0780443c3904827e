// Package resource maps site files to items: absolute item paths, parsed
// metadata and lazy resolution from storage.
package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/starford/sitefeed/internal/checksum"
	"github.com/starford/sitefeed/internal/models"
	"github.com/starford/sitefeed/internal/parser"
	"github.com/starford/sitefeed/internal/storage"
)

// IndexFile is the file holding a container's own metadata.
const IndexFile = "_index.md"

// Default formats when the frontmatter names none.
const (
	FormatFolder  = "folder"
	FormatWebPage = "webpage"
)

// Root is the absolute path of the site root.
const Root = "/"

// AbsPath maps a storage path ("news/launch.md", "news/_index.md") to the
// absolute item path ("/news/launch", "/news").
func AbsPath(file string) string {
	file = strings.TrimPrefix(path.Clean("/"+file), "/")
	dir, base := path.Split(file)
	if base == IndexFile {
		return path.Clean("/" + dir)
	}
	return path.Clean("/" + dir + strings.TrimSuffix(base, ".md"))
}

// IsContainerFile reports whether file holds container metadata.
func IsContainerFile(file string) bool {
	return path.Base(file) == IndexFile
}

// Candidates returns the storage paths that may hold the item at abs, in
// lookup order.
func Candidates(abs string) []string {
	abs = path.Clean("/" + abs)
	if abs == Root {
		return []string{IndexFile}
	}
	rel := strings.TrimPrefix(abs, "/")
	return []string{rel + ".md", rel + "/" + IndexFile}
}

// Parent returns the parent path of abs, empty for the root.
func Parent(abs string) string {
	if abs == Root {
		return ""
	}
	return path.Dir(abs)
}

// Ancestors returns every ancestor of abs from the root down, excluding abs.
func Ancestors(abs string) []string {
	var out []string
	for p := Parent(abs); p != ""; p = Parent(p) {
		out = append(out, p)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Name returns the last element of abs, empty for the root.
func Name(abs string) string {
	if abs == Root {
		return ""
	}
	return path.Base(abs)
}

// Join resolves name inside the container at abs.
func Join(abs, name string) string {
	return path.Join(abs, name)
}

// FromFile parses data stored at file into an item.
func FromFile(file string, data []byte, modTime time.Time) (*models.Item, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("resource: parse %s: %w", file, err)
	}
	abs := AbsPath(file)

	format := res.Format
	if format == "" {
		format = FormatWebPage
		if IsContainerFile(file) {
			format = FormatFolder
		}
	}
	state := res.State
	if state == "" {
		state = models.StatePublic
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}

	return &models.Item{
		Brain: models.Brain{
			Path:        abs,
			ParentPath:  Parent(abs),
			Name:        Name(abs),
			Title:       res.Title,
			Format:      format,
			State:       state,
			Owner:       res.Owner,
			Preview:     res.Preview,
			Tags:        tags,
			Ancestors:   Ancestors(abs),
			ModTime:     modTime,
			PubDatetime: res.PubDatetime,
		},
		Body:        res.Body,
		Description: res.Description,
		Thumbnail:   res.Thumbnail,
		Capability:  res.Capability,
		Frontmatter: res.Frontmatter,
		Checksum:    checksum.Sum(data),
		File:        file,
	}, nil
}

// Resolver loads items from storage by absolute path.
type Resolver struct {
	store storage.Provider
}

// NewResolver creates a Resolver over store.
func NewResolver(store storage.Provider) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the item at abs, or (nil, nil) when no file backs it.
func (r *Resolver) Resolve(_ context.Context, abs string) (*models.Item, error) {
	for _, file := range Candidates(abs) {
		meta, err := r.store.Stat(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		data, err := r.store.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return FromFile(file, data, meta.UpdatedAt)
	}
	return nil, nil
}
