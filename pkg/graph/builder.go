package graph

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// ErrNoLineage is returned by Build when the target carries no document.
var ErrNoLineage = errors.New("no lineage recorded")

// DefaultMaxDepth bounds recursion through ancestors.
const DefaultMaxDepth = 64

const defaultCacheSize = 256

// Loader reads the lineage document attached to a file. It returns
// (nil, nil) when there is none. *store.Store satisfies it.
type Loader interface {
	Load(path string) (*provenance.Document, error)
}

// Options configures a Builder.
type Options struct {
	// FollowDisk looks up ancestors on disk when an input carries no
	// embedded history.
	FollowDisk bool
	// MaxDepth bounds recursion. Zero means DefaultMaxDepth.
	MaxDepth int
	// CacheSize bounds the documents memoised for FollowDisk.
	CacheSize int
}

// Builder reconstructs lineage graphs.
type Builder struct {
	loader Loader
	opts   Options
	cache  *lru.Cache[string, *provenance.Document]
}

// NewBuilder creates a Builder reading documents through loader.
func NewBuilder(loader Loader, opts Options) (*Builder, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, *provenance.Document](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}
	return &Builder{loader: loader, opts: opts, cache: cache}, nil
}

// Build loads target's lineage and walks its ancestry. Unreadable
// ancestors end their branch; the rest of the graph is still returned.
func (b *Builder) Build(target string) (*Graph, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}

	doc, err := b.loader.Load(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to load lineage for %s: %w", target, err)
	}
	if doc == nil {
		return nil, ErrNoLineage
	}

	g := newGraph()
	g.root = nodeID("target", abs)
	g.addNode(Node{ID: g.root, Label: filepath.Base(abs), Kind: NodeTarget})

	b.walk(g, g.root, doc, 1)

	log.Component("graph").Debug("built lineage graph",
		"target", abs, "nodes", len(g.nodes), "edges", len(g.edges))
	return g, nil
}

// walk adds the program that produced doc under parent, then its inputs.
func (b *Builder) walk(g *Graph, parent string, doc *provenance.Document, depth int) {
	program := doc.Program()
	progID := nodeID("program", parent, program)
	label := doc.ProgramName()
	if label == "" {
		label = "unknown program"
	}
	g.addNode(Node{ID: progID, Label: label, Kind: NodeProgram})
	g.addEdge(progID, parent)

	for _, ref := range doc.InputRefs() {
		switch r := ref.(type) {
		case provenance.FileRef:
			leaf := nodeID("file", filepath.Base(r.Path))
			g.addNode(Node{ID: leaf, Label: filepath.Base(r.Path), Kind: NodeFile})
			g.addEdge(leaf, progID)

			history := r.History
			if history == nil && b.opts.FollowDisk {
				history = b.lookup(r)
			}
			if history == nil {
				continue
			}
			if depth >= b.opts.MaxDepth {
				log.Component("graph").Warn("lineage depth limit reached", "path", r.Path, "depth", depth)
				continue
			}
			b.walk(g, leaf, history, depth+1)

		case provenance.RemoteRef:
			leaf := nodeID("remote", r.URL)
			g.addNode(Node{ID: leaf, Label: r.URL, Kind: NodeRemote, Host: hostOf(r.URL)})
			g.addEdge(leaf, progID)
		}
	}
}

// lookup loads an input's lineage from disk, memoised by path and hash.
func (b *Builder) lookup(ref provenance.FileRef) *provenance.Document {
	key := ref.Path + "\x00" + ref.ContentHash
	if doc, ok := b.cache.Get(key); ok {
		return doc
	}

	doc, err := b.loader.Load(ref.Path)
	if err != nil {
		log.Component("graph").Debug("skipping unreadable ancestor", "path", ref.Path, "error", err)
		doc = nil
	}
	b.cache.Add(key, doc)
	return doc
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
