package provenance

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// Document is the lineage record of one program invocation, attached to
// each output the invocation produced.
type Document struct {
	InvocationID   string         `json:"invocation_id,omitempty"`
	InvocationArgs []string       `json:"invocation_args"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Environment    Environment    `json:"environment"`
	Inputs         *RefSet        `json:"inputs"`
	Outputs        []OutputRecord `json:"outputs"`
	SourceControl  SourceControl  `json:"source_control"`
	Platform       Platform       `json:"platform"`
	Runtime        Runtime        `json:"runtime"`
}

// OutputRecord is a finalized output. Size and ModTimeNS are captured at
// hashing time and gate reuse of ContentHash by later readers.
type OutputRecord struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
	ModTimeNS   int64  `json:"mtime_ns"`
}

// Environment identifies who ran the invocation and where.
type Environment struct {
	User        string `json:"user"`
	Host        string `json:"host"`
	ContainerID string `json:"container_id,omitempty"`
	Pod         string `json:"pod,omitempty"`
}

// SourceControl is either repository state or an error explaining its absence.
type SourceControl struct {
	Branch  string              `json:"branch,omitempty"`
	Commit  string              `json:"commit,omitempty"`
	Dirty   bool                `json:"dirty"`
	Remotes map[string][]string `json:"remotes,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// MarshalJSON emits only {"error": ...} for the error variant.
func (s SourceControl) MarshalJSON() ([]byte, error) {
	if s.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{s.Error})
	}
	type plain SourceControl
	return json.Marshal(plain(s))
}

// Platform describes the operating system and hardware.
type Platform struct {
	System    string `json:"system"`
	Release   string `json:"release"`
	Version   string `json:"version"`
	Machine   string `json:"machine"`
	Processor string `json:"processor"`
}

// Runtime describes the language runtime and the modules linked into the binary.
type Runtime struct {
	Version  string            `json:"version"`
	Packages map[string]string `json:"packages,omitempty"`
}

// Program returns the invoking program (first invocation argument) or "".
func (d *Document) Program() string {
	if d == nil || len(d.InvocationArgs) == 0 {
		return ""
	}
	return d.InvocationArgs[0]
}

// ProgramName is the base name of Program.
func (d *Document) ProgramName() string {
	p := d.Program()
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

// InputRefs returns the inputs in deterministic order.
func (d *Document) InputRefs() []InputRef {
	if d == nil {
		return nil
	}
	return d.Inputs.Sorted()
}

// OutputFor returns the record for path and how many records name it.
func (d *Document) OutputFor(path string) (OutputRecord, int) {
	if d == nil {
		return OutputRecord{}, 0
	}
	var (
		found OutputRecord
		count int
	)
	for _, o := range d.Outputs {
		if o.Path == path {
			if count == 0 {
				found = o
			}
			count++
		}
	}
	return found, count
}

// Marshal encodes the document as compact UTF-8 JSON.
func (d *Document) Marshal() ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("cannot marshal nil document")
	}
	return json.Marshal(d)
}

// ParseDocument decodes a lineage document.
func ParseDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse lineage document: %w", err)
	}
	if d.Inputs == nil {
		d.Inputs = &RefSet{}
	}
	return &d, nil
}
