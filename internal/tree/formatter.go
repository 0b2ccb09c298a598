// Package tree reshapes recursive git tree listings into the presentation
// forms the HTTP API serves. All transformations are pure and deterministic.
package tree

import (
	"fmt"
	"strings"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

// Formatter rewrites blob locations into content-fetch URLs rooted at
// baseURL while reshaping tree listings.
type Formatter struct {
	baseURL string
}

func NewFormatter(baseURL string) *Formatter {
	return &Formatter{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Node is one node of a reconstructed hierarchy. Blob nodes carry sha, size
// and a content URL; tree nodes only name and children.
type Node struct {
	Name          string  `json:"name,omitempty"`
	Type          string  `json:"type,omitempty"`
	SHA           string  `json:"sha,omitempty"`
	Size          *int    `json:"size,omitempty"`
	SizeFormatted string  `json:"sizeFormatted,omitempty"`
	URL           string  `json:"url,omitempty"`
	Children      []*Node `json:"children,omitempty"`
}

// Statistics aggregates a hierarchy. TotalSize is the sum of all blob sizes.
type Statistics struct {
	Files              int    `json:"files"`
	Directories        int    `json:"directories"`
	TotalSize          int    `json:"totalSize"`
	TotalSizeFormatted string `json:"totalSizeFormatted"`
}

// Hierarchy is the default tree shape: a nested name/children structure plus
// aggregate statistics.
type Hierarchy struct {
	SHA        string     `json:"sha"`
	Truncated  bool       `json:"truncated"`
	Repository string     `json:"repository"`
	Tree       *Node      `json:"tree"`
	Statistics Statistics `json:"statistics"`
}

// ListEntry is one row of the flat listing. Depth is the slash count of the
// path; ParentPath is empty for top-level entries.
type ListEntry struct {
	Path          string `json:"path"`
	Type          string `json:"type"`
	SHA           string `json:"sha"`
	Name          string `json:"name"`
	Depth         int    `json:"depth"`
	ParentPath    string `json:"parentPath"`
	Size          *int   `json:"size,omitempty"`
	SizeFormatted string `json:"sizeFormatted,omitempty"`
	URL           string `json:"url,omitempty"`
}

// DirEntry is one entry of a directory bucket.
type DirEntry struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	Type          string `json:"type"`
	SHA           string `json:"sha"`
	Size          *int   `json:"size,omitempty"`
	SizeFormatted string `json:"sizeFormatted,omitempty"`
	URL           string `json:"url,omitempty"`
}

// Grouped buckets entries by their parent directory, root entries under "/".
type Grouped struct {
	Repository     string                `json:"repository"`
	Directories    map[string][]DirEntry `json:"directories"`
	DirectoryCount int                   `json:"directoryCount"`
}

// NestedNode preserves the full path at every level of the nested shape.
type NestedNode struct {
	Path          string        `json:"path"`
	Type          string        `json:"type"`
	SHA           string        `json:"sha,omitempty"`
	Size          *int          `json:"size,omitempty"`
	SizeFormatted string        `json:"sizeFormatted,omitempty"`
	URL           string        `json:"url,omitempty"`
	Children      []*NestedNode `json:"children,omitempty"`
}

// Hierarchy reconstructs the nested structure by splitting each path on "/"
// and inserting into a trie. The trie lives in a path-keyed arena with a
// parent-to-children adjacency; nodes hold no parent references.
func (f *Formatter) Hierarchy(t model.Tree, owner, repo string) Hierarchy {
	arena := make(map[string]*Node, len(t.Entries))
	root := &Node{}

	for _, e := range t.Entries {
		parts := strings.Split(e.Path, "/")
		prefix := ""
		for i, part := range parts {
			nodePath := part
			if prefix != "" {
				nodePath = prefix + "/" + part
			}

			node, ok := arena[nodePath]
			if !ok {
				node = &Node{Name: part, Type: "tree"}
				arena[nodePath] = node
				if prefix == "" {
					root.Children = append(root.Children, node)
				} else {
					parent := arena[prefix]
					parent.Children = append(parent.Children, node)
				}
			}

			if i == len(parts)-1 {
				node.Type = e.Type
				if e.Type == "blob" {
					size := e.Size
					node.SHA = e.SHA
					node.Size = &size
					node.SizeFormatted = formatSize(size)
					node.URL = f.contentURL(owner, repo, e.Path)
				}
			}
			prefix = nodePath
		}
	}

	var stats Statistics
	for _, node := range arena {
		if node.Type == "blob" {
			stats.Files++
			if node.Size != nil {
				stats.TotalSize += *node.Size
			}
		} else {
			stats.Directories++
		}
	}
	stats.TotalSizeFormatted = formatSize(stats.TotalSize)

	return Hierarchy{
		SHA:        t.SHA,
		Truncated:  t.Truncated,
		Repository: owner + "/" + repo,
		Tree:       root,
		Statistics: stats,
	}
}

// FlatList yields exactly one entry per input node.
func (f *Formatter) FlatList(t model.Tree, owner, repo string) []ListEntry {
	entries := make([]ListEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		entry := ListEntry{
			Path:       e.Path,
			Type:       e.Type,
			SHA:        e.SHA,
			Name:       baseName(e.Path),
			Depth:      strings.Count(e.Path, "/"),
			ParentPath: parentPath(e.Path),
		}
		if e.Type == "blob" {
			size := e.Size
			entry.Size = &size
			entry.SizeFormatted = formatSize(size)
			entry.URL = f.contentURL(owner, repo, e.Path)
		}
		entries = append(entries, entry)
	}
	return entries
}

// GroupedByDirectory buckets every entry under its parent directory.
func (f *Formatter) GroupedByDirectory(t model.Tree, owner, repo string) Grouped {
	directories := make(map[string][]DirEntry)
	for _, e := range t.Entries {
		dir := parentPath(e.Path)
		if dir == "" {
			dir = "/"
		}

		entry := DirEntry{
			Name: baseName(e.Path),
			Path: e.Path,
			Type: e.Type,
			SHA:  e.SHA,
		}
		if e.Type == "blob" {
			size := e.Size
			entry.Size = &size
			entry.SizeFormatted = formatSize(size)
			entry.URL = f.contentURL(owner, repo, e.Path)
		}
		directories[dir] = append(directories[dir], entry)
	}

	return Grouped{
		Repository:     owner + "/" + repo,
		Directories:    directories,
		DirectoryCount: len(directories),
	}
}

// Nested builds the deep shape in two passes: a path-keyed item map plus a
// parent-to-children adjacency, then recursive assembly from the root. Every
// node keeps its full path. Intermediate directories with no tree entry of
// their own are synthesized, so every listed entry stays reachable.
func (f *Formatter) Nested(t model.Tree, owner, repo string) *NestedNode {
	root := &NestedNode{Path: "/", Type: "tree"}

	items := make(map[string]*NestedNode, len(t.Entries))
	children := make(map[string][]string)

	for _, e := range t.Entries {
		parts := strings.Split(e.Path, "/")
		prefix := ""
		for i, part := range parts {
			nodePath := part
			if prefix != "" {
				nodePath = prefix + "/" + part
			}

			node, ok := items[nodePath]
			if !ok {
				node = &NestedNode{Path: nodePath, Type: "tree"}
				items[nodePath] = node
				parent := prefix
				if parent == "" {
					parent = "/"
				}
				children[parent] = append(children[parent], nodePath)
			}

			if i == len(parts)-1 {
				node.Type = e.Type
				node.SHA = e.SHA
				if e.Type == "blob" {
					size := e.Size
					node.Size = &size
					node.SizeFormatted = formatSize(size)
					node.URL = f.contentURL(owner, repo, e.Path)
				}
			}
			prefix = nodePath
		}
	}

	for _, path := range children["/"] {
		root.Children = append(root.Children, assembleNested(path, items, children))
	}
	return root
}

func assembleNested(path string, items map[string]*NestedNode, children map[string][]string) *NestedNode {
	node := items[path]
	for _, childPath := range children[path] {
		node.Children = append(node.Children, assembleNested(childPath, items, children))
	}
	return node
}

func (f *Formatter) contentURL(owner, repo, path string) string {
	return fmt.Sprintf("%s/projects/github/content/%s/%s?filePath=%s", f.baseURL, owner, repo, path)
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func parentPath(path string) string {
	if i := strings.LastIndex(path, "/"); i > 0 {
		return path[:i]
	}
	return ""
}

func formatSize(bytes int) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
	}
}
