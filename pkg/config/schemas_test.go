package config

import (
	"context"
	"testing"
)

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	names := sr.ListSchemas()
	if len(names) != 2 || names[0] != "config" || names[1] != "external" {
		t.Fatalf("Expected [config external], got %v", names)
	}
	for _, name := range names {
		schema, ok := sr.GetSchema(name)
		if !ok {
			t.Fatalf("Built-in schema %s not found", name)
		}
		if schema.Err() != nil {
			t.Errorf("Built-in schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("layer", `{name: =~"^[a-z]+$"}`); err != nil {
		t.Fatalf("Failed to register schema: %v", err)
	}
	if _, ok := sr.GetSchema("layer"); !ok {
		t.Fatal("Expected to find layer schema")
	}
	if err := sr.RegisterSchema("broken", `{name: }`); err == nil {
		t.Error("Expected compile error")
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "layer", map[string]interface{}{"name": "construction"}); err != nil {
		t.Errorf("Expected valid layer, got: %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "layer", map[string]interface{}{"name": "Construction 2"}); err == nil {
		t.Error("Expected invalid layer name")
	}
	if err := sr.ValidateAgainstSchema(ctx, "missing", nil); err == nil {
		t.Error("Expected error for unknown schema")
	}
}

func TestSchemaRegistry_ValidateExternal(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name     string
		external map[string]interface{}
		wantErr  bool
	}{
		{
			name: "segment",
			external: map[string]interface{}{
				"name": "rail",
				"kind": "segment",
				"from": []interface{}{0, 0, 0},
				"to":   []interface{}{10, 0, 0.5},
			},
		},
		{
			name: "circle",
			external: map[string]interface{}{
				"name":   "ring",
				"kind":   "circle",
				"center": []interface{}{0, 0, 0},
				"radius": 2.5,
			},
		},
		{
			name:     "bad name",
			external: map[string]interface{}{"name": "9lives", "kind": "segment"},
			wantErr:  true,
		},
		{
			name: "short vector",
			external: map[string]interface{}{
				"name": "rail",
				"kind": "segment",
				"from": []interface{}{0, 0},
			},
			wantErr: true,
		},
		{
			name: "unknown field",
			external: map[string]interface{}{
				"name":  "rail",
				"kind":  "segment",
				"color": "red",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, "external", tt.external)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got: %v", tt.wantErr, err)
			}
		})
	}
}
