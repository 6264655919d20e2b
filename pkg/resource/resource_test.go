package resource

import (
	"reflect"
	"testing"
)

func TestResource_Clone(t *testing.T) {
	src := Resource{"name": "Luke", "films": []any{"a"}}
	cp := src.Clone()
	cp["name"] = "Leia"

	if src["name"] != "Luke" {
		t.Errorf("Clone mutated source: name = %v", src["name"])
	}
	if Resource(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestResource_String(t *testing.T) {
	r := Resource{"name": "R2-D2", "height": 96.0}

	if got := r.String("name"); got != "R2-D2" {
		t.Errorf("String(name) = %q", got)
	}
	if got := r.String("height"); got != "" {
		t.Errorf("String(height) = %q, want empty", got)
	}
	if got := r.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
}

func TestProjection_Apply(t *testing.T) {
	raw := Resource{
		"name":          "Sand Crawler",
		"model":         "Digger Crawler",
		"vehicle_class": "wheeled",
		"crew":          "46",
	}

	tests := []struct {
		name string
		proj Projection
		want Resource
	}{
		{
			name: "zero projection keeps everything",
			proj: Projection{},
			want: raw,
		},
		{
			name: "select with missing field",
			proj: Projection{Fields: []string{"name", "pilots"}},
			want: Resource{"name": "Sand Crawler", "pilots": nil},
		},
		{
			name: "select and rename",
			proj: Projection{
				Fields: []string{"name", "vehicle_class"},
				Rename: map[string]string{"vehicle_class": "class"},
			},
			want: Resource{"name": "Sand Crawler", "class": "wheeled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.proj.Apply(raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, ok := raw["class"]; ok {
		t.Error("Apply mutated the source resource")
	}
}

func TestProjection_RenameNullField(t *testing.T) {
	raw := Resource{"name": "Snowspeeder", "vehicle_class": nil}
	p := Projection{
		Fields: []string{"name", "vehicle_class"},
		Rename: map[string]string{"vehicle_class": "class"},
	}

	got := p.Apply(raw)

	if !got.Has("class") {
		t.Errorf("Apply() dropped renamed null field: %v", got)
	}
	if got.Has("vehicle_class") {
		t.Errorf("Apply() kept source field: %v", got)
	}
	if !raw.Has("vehicle_class") {
		t.Errorf("Apply() mutated source: %v", raw)
	}
}
