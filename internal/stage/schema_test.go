package stage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const noteSchema = `{
	"type": "object",
	"required": ["title", "body"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"body": {"type": "string"}
	}
}`

func writeSchemaFixture(t *testing.T) (schemaPath, docsDir string) {
	t.Helper()
	dir := t.TempDir()
	schemaPath = filepath.Join(dir, "note.schema.json")
	if err := os.WriteFile(schemaPath, []byte(noteSchema), 0o644); err != nil {
		t.Fatalf("write schema failed: %v", err)
	}
	docsDir = filepath.Join(dir, "notes")
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		t.Fatalf("mkdir docs failed: %v", err)
	}
	return schemaPath, docsDir
}

func TestSchemaStageValidDocuments(t *testing.T) {
	schemaPath, docsDir := writeSchemaFixture(t)
	for _, name := range []string{"one.json", "two.json"} {
		doc := `{"title": "t", "body": "b"}`
		if err := os.WriteFile(filepath.Join(docsDir, name), []byte(doc), 0o644); err != nil {
			t.Fatalf("write doc failed: %v", err)
		}
	}
	// Non-JSON files are ignored.
	if err := os.WriteFile(filepath.Join(docsDir, "readme.md"), []byte("# hi"), 0o644); err != nil {
		t.Fatalf("write readme failed: %v", err)
	}

	st, err := NewSchemaStage("validate", schemaPath, docsDir)
	if err != nil {
		t.Fatalf("new schema stage failed: %v", err)
	}
	result := st.Run(context.Background(), Request{Locator: docsDir})
	if !result.OK {
		t.Fatalf("expected success, got %s", result.Message)
	}
	if !strings.Contains(result.Message, "2 documents") {
		t.Fatalf("expected two documents counted, got %q", result.Message)
	}
}

func TestSchemaStageRejectsInvalidDocument(t *testing.T) {
	schemaPath, docsDir := writeSchemaFixture(t)
	if err := os.WriteFile(filepath.Join(docsDir, "bad.json"), []byte(`{"title": ""}`), 0o644); err != nil {
		t.Fatalf("write doc failed: %v", err)
	}
	st, err := NewSchemaStage("validate", schemaPath, docsDir)
	if err != nil {
		t.Fatalf("new schema stage failed: %v", err)
	}
	result := st.Run(context.Background(), Request{Locator: docsDir})
	if result.OK {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(result.Message, "bad.json") {
		t.Fatalf("expected failing document in message, got %q", result.Message)
	}
}

func TestSchemaStageRejectsMalformedJSON(t *testing.T) {
	schemaPath, docsDir := writeSchemaFixture(t)
	if err := os.WriteFile(filepath.Join(docsDir, "broken.json"), []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("write doc failed: %v", err)
	}
	st, err := NewSchemaStage("validate", schemaPath, docsDir)
	if err != nil {
		t.Fatalf("new schema stage failed: %v", err)
	}
	if result := st.Run(context.Background(), Request{Locator: docsDir}); result.OK {
		t.Fatalf("expected failure for malformed json")
	}
}

func TestNewSchemaStageBadSchema(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "broken.schema.json")
	if err := os.WriteFile(schemaPath, []byte(`{"type": 42}`), 0o644); err != nil {
		t.Fatalf("write schema failed: %v", err)
	}
	if _, err := NewSchemaStage("validate", schemaPath, dir); err == nil {
		t.Fatalf("expected compile error for invalid schema")
	}
}
