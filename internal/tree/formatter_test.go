package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsrifathridoy/talenthium/internal/model"
)

func sampleTree() model.Tree {
	return model.Tree{
		SHA:       "root-sha",
		Truncated: false,
		Entries: []model.TreeEntry{
			{Path: "README.md", Type: "blob", SHA: "b1", Size: 100},
			{Path: "src", Type: "tree", SHA: "t1"},
			{Path: "src/main.go", Type: "blob", SHA: "b2", Size: 2048},
			{Path: "src/util", Type: "tree", SHA: "t2"},
			{Path: "src/util/strings.go", Type: "blob", SHA: "b3", Size: 512},
		},
	}
}

func TestFormatter_Hierarchy(t *testing.T) {
	f := NewFormatter("http://localhost:8084")
	h := f.Hierarchy(sampleTree(), "acme", "widgets")

	assert.Equal(t, "root-sha", h.SHA)
	assert.Equal(t, "acme/widgets", h.Repository)

	// Statistics aggregate blobs and directories from the whole trie, and
	// the size total equals the sum of all blob sizes.
	assert.Equal(t, 3, h.Statistics.Files)
	assert.Equal(t, 2, h.Statistics.Directories)
	assert.Equal(t, 100+2048+512, h.Statistics.TotalSize)
	assert.Equal(t, "2.60 KB", h.Statistics.TotalSizeFormatted)

	require.Len(t, h.Tree.Children, 2)
	readme := h.Tree.Children[0]
	assert.Equal(t, "README.md", readme.Name)
	assert.Equal(t, "blob", readme.Type)
	assert.Equal(t, "http://localhost:8084/projects/github/content/acme/widgets?filePath=README.md", readme.URL)

	src := h.Tree.Children[1]
	assert.Equal(t, "tree", src.Type)
	require.Len(t, src.Children, 2)
	util := src.Children[1]
	assert.Equal(t, "util", util.Name)
	require.Len(t, util.Children, 1)
	assert.Equal(t, "strings.go", util.Children[0].Name)
}

func TestFormatter_FlatList(t *testing.T) {
	f := NewFormatter("http://localhost:8084")
	entries := f.FlatList(sampleTree(), "acme", "widgets")

	// One output entry per input node, always.
	require.Len(t, entries, len(sampleTree().Entries))

	assert.Equal(t, 0, entries[0].Depth)
	assert.Equal(t, "", entries[0].ParentPath)

	strings := entries[4]
	assert.Equal(t, "strings.go", strings.Name)
	assert.Equal(t, 2, strings.Depth)
	assert.Equal(t, "src/util", strings.ParentPath)
	require.NotNil(t, strings.Size)
	assert.Equal(t, 512, *strings.Size)
	assert.Equal(t, "512 B", strings.SizeFormatted)

	// Directories carry no size or URL.
	assert.Nil(t, entries[1].Size)
	assert.Empty(t, entries[1].URL)
}

func TestFormatter_GroupedByDirectory(t *testing.T) {
	f := NewFormatter("")
	g := f.GroupedByDirectory(sampleTree(), "acme", "widgets")

	assert.Equal(t, "acme/widgets", g.Repository)
	assert.Equal(t, 3, g.DirectoryCount)

	require.Contains(t, g.Directories, "/")
	require.Contains(t, g.Directories, "src")
	require.Contains(t, g.Directories, "src/util")

	assert.Len(t, g.Directories["/"], 2)
	assert.Len(t, g.Directories["src"], 2)
	assert.Equal(t, "strings.go", g.Directories["src/util"][0].Name)
}

func TestFormatter_Nested(t *testing.T) {
	f := NewFormatter("")
	root := f.Nested(sampleTree(), "acme", "widgets")

	assert.Equal(t, "/", root.Path)
	assert.Equal(t, "tree", root.Type)
	require.Len(t, root.Children, 2)

	src := root.Children[1]
	// Full paths are preserved at every level of the nested shape.
	assert.Equal(t, "src", src.Path)
	require.Len(t, src.Children, 2)
	assert.Equal(t, "src/main.go", src.Children[0].Path)
	assert.Equal(t, "src/util", src.Children[1].Path)
	require.Len(t, src.Children[1].Children, 1)
	assert.Equal(t, "src/util/strings.go", src.Children[1].Children[0].Path)
}

func TestFormatter_Nested_SynthesizesMissingDirectories(t *testing.T) {
	f := NewFormatter("")
	tree := model.Tree{
		SHA: "root-sha",
		Entries: []model.TreeEntry{
			{Path: "docs/guide/intro.md", Type: "blob", SHA: "b9", Size: 64},
		},
	}

	root := f.Nested(tree, "acme", "widgets")

	// Neither docs nor docs/guide has a listing entry; both are built as
	// plain tree nodes and the blob stays reachable from the root.
	require.Len(t, root.Children, 1)
	docs := root.Children[0]
	assert.Equal(t, "docs", docs.Path)
	assert.Equal(t, "tree", docs.Type)
	assert.Empty(t, docs.SHA)
	require.Len(t, docs.Children, 1)
	guide := docs.Children[0]
	assert.Equal(t, "docs/guide", guide.Path)
	require.Len(t, guide.Children, 1)
	intro := guide.Children[0]
	assert.Equal(t, "docs/guide/intro.md", intro.Path)
	assert.Equal(t, "blob", intro.Type)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "1023 B", formatSize(1023))
	assert.Equal(t, "1.00 KB", formatSize(1024))
	assert.Equal(t, "1.50 MB", formatSize(3*1024*1024/2))
}
