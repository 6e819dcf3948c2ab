// Package provenance defines the lineage data model: references to the
// inputs a process consumed, the outputs it produced and the lineage
// document attached to each output.
package provenance

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates InputRef variants on the wire.
type Kind string

const (
	KindFile   Kind = "file"
	KindRemote Kind = "remote"
)

// InputRef is a tracked input: either a local file or a remote resource.
type InputRef interface {
	// Kind reports the variant.
	Kind() Kind
	// Key is the identity used for set membership.
	Key() string
}

// FileRef is a local file input. Identity is (Path, ContentHash).
type FileRef struct {
	Path        string
	ContentHash string
	// History is the lineage of the run that produced this file, if known.
	History *Document
}

// Kind implements InputRef.
func (FileRef) Kind() Kind { return KindFile }

// Key implements InputRef.
func (f FileRef) Key() string { return "file\x00" + f.Path + "\x00" + f.ContentHash }

// RemoteRef is a network resource input. Identity is URL.
type RemoteRef struct {
	URL string
}

// Kind implements InputRef.
func (RemoteRef) Kind() Kind { return KindRemote }

// Key implements InputRef.
func (r RemoteRef) Key() string { return "remote\x00" + r.URL }

// wireRef is the serialized form shared by both variants.
type wireRef struct {
	Kind        Kind      `json:"kind"`
	Path        string    `json:"path,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	History     *Document `json:"history,omitempty"`
	URL         string    `json:"url,omitempty"`
}

func toWire(ref InputRef) (wireRef, error) {
	switch r := ref.(type) {
	case FileRef:
		return wireRef{Kind: KindFile, Path: r.Path, ContentHash: r.ContentHash, History: r.History}, nil
	case *FileRef:
		return toWire(*r)
	case RemoteRef:
		return wireRef{Kind: KindRemote, URL: r.URL}, nil
	case *RemoteRef:
		return toWire(*r)
	default:
		return wireRef{}, fmt.Errorf("unsupported input reference %T", ref)
	}
}

func fromWire(w wireRef) (InputRef, error) {
	kind := w.Kind
	if kind == "" {
		// Older documents carry no discriminator.
		if w.URL != "" {
			kind = KindRemote
		} else {
			kind = KindFile
		}
	}

	switch kind {
	case KindFile:
		if w.Path == "" {
			return nil, fmt.Errorf("file reference without path")
		}
		return FileRef{Path: w.Path, ContentHash: w.ContentHash, History: w.History}, nil
	case KindRemote:
		if w.URL == "" {
			return nil, fmt.Errorf("remote reference without url")
		}
		return RemoteRef{URL: w.URL}, nil
	default:
		return nil, fmt.Errorf("unknown input kind %q", kind)
	}
}

// MarshalRef encodes a single reference.
func MarshalRef(ref InputRef) ([]byte, error) {
	w, err := toWire(ref)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalRef decodes a single reference.
func UnmarshalRef(data []byte) (InputRef, error) {
	var w wireRef
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode input reference: %w", err)
	}
	return fromWire(w)
}
