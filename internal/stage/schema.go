package stage

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaStage validates every .json document under a directory against a
// JSON Schema. It is the built-in validate stage: extraction writes
// structured notes as JSON, and indexing assumes they are well-formed.
type SchemaStage struct {
	name       string
	schemaPath string
	docsDir    string
	schema     *jsonschema.Schema
}

// NewSchemaStage compiles the schema eagerly so a broken schema fails at
// startup rather than on the first pipeline run. docsDir may be empty, in
// which case the target locator from the request is validated instead.
func NewSchemaStage(name, schemaPath, docsDir string) (*SchemaStage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "validate"
	}
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("schema stage %s: compile %s: %w", name, schemaPath, err)
	}
	return &SchemaStage{
		name:       name,
		schemaPath: schemaPath,
		docsDir:    docsDir,
		schema:     schema,
	}, nil
}

func (s *SchemaStage) Name() string {
	return s.name
}

func (s *SchemaStage) Run(ctx context.Context, req Request) Result {
	root := s.docsDir
	if root == "" {
		root = req.Locator
	}

	checked := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		doc, decodeErr := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if decodeErr != nil {
			return fmt.Errorf("%s: %w", path, decodeErr)
		}
		if validateErr := s.schema.Validate(doc); validateErr != nil {
			return fmt.Errorf("%s: %w", path, validateErr)
		}
		checked++
		return nil
	})
	if err != nil {
		return Result{OK: false, Message: tailMessage(fmt.Sprintf("%s: %v", s.name, err))}
	}
	return Result{OK: true, Message: fmt.Sprintf("%d documents valid against %s", checked, filepath.Base(s.schemaPath))}
}
