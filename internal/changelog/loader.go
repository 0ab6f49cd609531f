package changelog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/lockplane/changeplane/internal/change"
)

//go:embed changelog.schema.json
var documentSchema string

// document mirrors changelog.schema.json
type document struct {
	ChangeLog []documentEntry `json:"changelog"`
}

type documentEntry struct {
	ChangeSet *documentChangeSet `json:"changeset,omitempty"`
	Include   *documentInclude   `json:"include,omitempty"`
}

type documentChangeSet struct {
	ID             scalar                       `json:"id"`
	Author         string                       `json:"author"`
	Comment        string                       `json:"comment"`
	Contexts       string                       `json:"contexts"`
	Labels         string                       `json:"labels"`
	Dbms           string                       `json:"dbms"`
	RunAlways      bool                         `json:"run_always"`
	RunOnChange    bool                         `json:"run_on_change"`
	Ignore         bool                         `json:"ignore"`
	ValidChecksums []string                     `json:"valid_checksums"`
	Changes        []map[string]json.RawMessage `json:"changes"`
	Rollback       []map[string]json.RawMessage `json:"rollback"`
	Visitors       []SQLVisitor                 `json:"sql_visitors"`
}

type documentInclude struct {
	File     string `json:"file"`
	Ignore   bool   `json:"ignore"`
	Contexts string `json:"contexts"`
	Labels   string `json:"labels"`
}

// scalar accepts a JSON string or number
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = scalar(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = scalar(num.String())
	return nil
}

// Loader reads changelog documents (.json, .yaml, .yml) and resolves
// includes relative to the including file.
type Loader struct {
	// ReadFile defaults to os.ReadFile
	ReadFile func(name string) ([]byte, error)
}

// Load reads a changelog from disk with the default loader
func Load(file string) (*ChangeLog, error) {
	return (&Loader{}).Load(file)
}

// Load reads and validates the changelog at file and everything it includes
func (ld *Loader) Load(file string) (*ChangeLog, error) {
	cl, err := ld.load(filepath.ToSlash(file), nil)
	if err != nil {
		return nil, err
	}
	if err := cl.Validate(); err != nil {
		return nil, err
	}
	return cl, nil
}

func (ld *Loader) load(file string, parent *ChangeLog) (*ChangeLog, error) {
	read := ld.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(filepath.FromSlash(file))
	if err != nil {
		return nil, fmt.Errorf("failed to read changelog %s: %w", file, err)
	}

	cl := New(file)
	if parent != nil {
		// attach early so cycles are detected before recursing
		if err := parent.Include(cl); err != nil {
			return nil, err
		}
	}
	doc, err := parseDocument(file, data)
	if err != nil {
		return nil, err
	}

	for i, e := range doc.ChangeLog {
		switch {
		case e.ChangeSet != nil:
			cs, err := e.ChangeSet.build()
			if err != nil {
				return nil, fmt.Errorf("%s: changeset %d: %w", file, i+1, err)
			}
			cl.Add(cs)
		case e.Include != nil:
			target := e.Include.File
			if !path.IsAbs(target) {
				target = path.Join(path.Dir(file), target)
			}
			child, err := ld.load(target, cl)
			if err != nil {
				return nil, err
			}
			child.Ignore = e.Include.Ignore
			child.Contexts = e.Include.Contexts
			child.Labels = e.Include.Labels
		}
	}
	return cl, nil
}

// parseDocument decodes and schema-validates a single changelog document. Includes
// are not resolved.
func parseDocument(file string, data []byte) (*document, error) {
	var raw any
	switch strings.ToLower(path.Ext(file)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	default:
		return nil, fmt.Errorf("unsupported changelog format %q (use .json, .yaml or .yml)", path.Ext(file))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s: %w", file, err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%s is not a valid changelog:\n  - %s", file, strings.Join(problems, "\n  - "))
	}

	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", file, err)
	}
	return &doc, nil
}

func (d *documentChangeSet) build() (*ChangeSet, error) {
	changes, err := decodeStatements(d.Changes)
	if err != nil {
		return nil, err
	}
	rollback, err := decodeStatements(d.Rollback)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	return &ChangeSet{
		ID:             string(d.ID),
		Author:         d.Author,
		Comments:       d.Comment,
		Statements:     changes,
		Rollback:       rollback,
		Contexts:       d.Contexts,
		Labels:         d.Labels,
		Dbms:           d.Dbms,
		AlwaysRun:      d.RunAlways,
		RunOnChange:    d.RunOnChange,
		Ignore:         d.Ignore,
		ValidCheckSums: d.ValidChecksums,
		Visitors:       d.Visitors,
	}, nil
}

func decodeStatements(raw []map[string]json.RawMessage) ([]change.Statement, error) {
	var stmts []change.Statement
	for _, item := range raw {
		for t, body := range item {
			stmt, err := change.Decode(change.StatementType(t), body)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}
