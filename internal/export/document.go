// Package export moves the whole store in and out of a portable document.
//
// A document holds every row of every kind with ids and timestamps
// verbatim, so importing an export into an empty store reproduces it.
// JSON is the canonical encoding; YAML renders the same tree.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/tpm/internal/errors"
	"github.com/randalmurphal/tpm/internal/model"
	"github.com/randalmurphal/tpm/internal/store"
)

// Version is the document format version this package reads and writes.
const Version = "1.0"

// arrayKeys are the top-level arrays every document must carry.
var arrayKeys = []string{"orgs", "projects", "tickets", "tasks", "notes", "task_dependencies"}

// Document is a full dump of the store.
type Document struct {
	Version      string             `json:"version"`
	ExportedAt   time.Time          `json:"exported_at"`
	Orgs         []model.Org        `json:"orgs"`
	Projects     []model.Project    `json:"projects"`
	Tickets      []model.Ticket     `json:"tickets"`
	Tasks        []model.Task       `json:"tasks"`
	Notes        []model.Note       `json:"notes"`
	Dependencies []model.Dependency `json:"task_dependencies"`
	Stats        store.Counts       `json:"stats"`
}

// Count tallies the records in the document.
func (d *Document) Count() store.Counts {
	return store.Counts{
		Orgs:         len(d.Orgs),
		Projects:     len(d.Projects),
		Tickets:      len(d.Tickets),
		Tasks:        len(d.Tasks),
		Notes:        len(d.Notes),
		Dependencies: len(d.Dependencies),
	}
}

// Export reads the whole store in one snapshot.
func Export(ctx context.Context, s *store.Store) (*Document, error) {
	doc := &Document{Version: Version, ExportedAt: time.Now().UTC()}
	err := s.Snapshot(ctx, func(sn *store.Snapshot) error {
		var err error
		if doc.Orgs, err = sn.Orgs(); err != nil {
			return err
		}
		if doc.Projects, err = sn.Projects(); err != nil {
			return err
		}
		if doc.Tickets, err = sn.Tickets(); err != nil {
			return err
		}
		if doc.Tasks, err = sn.Tasks(); err != nil {
			return err
		}
		if doc.Notes, err = sn.Notes(); err != nil {
			return err
		}
		doc.Dependencies, err = sn.Dependencies()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("export snapshot: %w", err)
	}
	doc.fillEmpty()
	doc.Stats = doc.Count()
	return doc, nil
}

// fillEmpty keeps empty kinds encoding as [] so Decode accepts them.
func (d *Document) fillEmpty() {
	if d.Orgs == nil {
		d.Orgs = []model.Org{}
	}
	if d.Projects == nil {
		d.Projects = []model.Project{}
	}
	if d.Tickets == nil {
		d.Tickets = []model.Ticket{}
	}
	if d.Tasks == nil {
		d.Tasks = []model.Task{}
	}
	if d.Notes == nil {
		d.Notes = []model.Note{}
	}
	if d.Dependencies == nil {
		d.Dependencies = []model.Dependency{}
	}
}

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates s. An empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", errors.InvalidEnum("export", "format", s, []string{string(FormatJSON), string(FormatYAML)})
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, format Format) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	switch format {
	case FormatJSON, "":
		data = append(data, '\n')
	case FormatYAML:
		if data, err = jsonToYAML(data); err != nil {
			return err
		}
	default:
		return errors.InvalidEnum("export", "format", string(format), []string{string(FormatJSON), string(FormatYAML)})
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// jsonToYAML re-renders a JSON document as block-style YAML, keeping key
// order. JSON parses as YAML, so only the node styles need resetting.
func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("convert document to yaml: %w", err)
	}
	resetStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, fmt.Errorf("encode yaml document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml document: %w", err)
	}
	return buf.Bytes(), nil
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}

// Decode parses a JSON or YAML document and checks its shape.
func Decode(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.Invalid("document", "body", "the document is empty")
	}
	if data[0] != '{' {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	if err := checkShape(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Invalid("document", "body", err.Error()).WithCause(err)
	}
	return &doc, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, errors.Invalid("document", "body", "not valid JSON or YAML").WithCause(err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Invalid("document", "body", err.Error()).WithCause(err)
	}
	return out, nil
}

// checkShape probes the version and the six arrays before decoding.
func checkShape(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.Invalid("document", "body", "not valid JSON")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return errors.Invalid("document", "body", "the document must be an object")
	}

	version := gjson.GetBytes(data, "version")
	if !version.Exists() {
		return errors.Required("document", "version")
	}
	if version.String() != Version {
		return errors.Invalid("document", "version",
			fmt.Sprintf("unsupported version %q, expected %q", version.String(), Version))
	}

	for _, key := range arrayKeys {
		res := gjson.GetBytes(data, key)
		if !res.Exists() {
			return errors.Required("document", key)
		}
		if !res.IsArray() {
			return errors.Invalid("document", key, "must be an array")
		}
	}
	return nil
}
