package changelog

import (
	"path"
	"strings"
)

// Identity is the (id, author, path) triple that names a changeset in a
// changelog and in the ledger.
type Identity struct {
	ID     string `json:"id"`
	Author string `json:"author"`
	Path   string `json:"path"`
}

// NewIdentity builds an identity with a normalized path
func NewIdentity(id, author, filePath string) Identity {
	return Identity{ID: id, Author: author, Path: NormalizePath(filePath)}
}

// Key is the comparison key: id and author are case-insensitive, the path
// is normalized. Every identity comparison in the engine goes through Key.
func (i Identity) Key() string {
	return strings.ToLower(strings.TrimSpace(i.ID)) + "::" +
		strings.ToLower(strings.TrimSpace(i.Author)) + "::" +
		NormalizePath(i.Path)
}

// Equal reports whether two identities name the same changeset
func (i Identity) Equal(other Identity) bool {
	return i.Key() == other.Key()
}

func (i Identity) String() string {
	return i.Path + "::" + i.ID + "::" + i.Author
}

// NormalizePath strips classpath-style prefixes and leading "./" or "/",
// and converts separators to forward slashes.
func NormalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if len(p) >= len("classpath:") && strings.EqualFold(p[:len("classpath:")], "classpath:") {
		p = p[len("classpath:"):]
	}
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return p
}
