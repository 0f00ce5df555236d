package bridge

import (
	"encoding/json"
	"testing"
)

func TestParseColorSpace(t *testing.T) {
	tests := []struct {
		input   string
		want    ColorSpace
		wantErr bool
	}{
		{input: "srgb", want: SRGB},
		{input: "P3_D65", want: P3D65},
		{input: "hlg-bt2020", want: HLGBT2020},
		{input: " apple_log ", want: AppleLog},
		{input: "rec2100_pq", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseColorSpace(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseColorSpace(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseColorSpace(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseColorSpace(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAllColorSpacesHaveNames(t *testing.T) {
	for _, c := range AllColorSpaces() {
		if _, ok := colorSpaceNames[c]; !ok {
			t.Errorf("selector %d has no wire name", int(c))
		}
		parsed, err := ParseColorSpace(c.String())
		if err != nil {
			t.Errorf("ParseColorSpace(%q) failed: %v", c.String(), err)
		}
		if parsed != c {
			t.Errorf("ParseColorSpace(%q) = %v, want %v", c.String(), parsed, c)
		}
	}
}

func TestUnknownColorSpaceString(t *testing.T) {
	if got := ColorSpace(42).String(); got != "ColorSpace(42)" {
		t.Errorf("String() = %q, want ColorSpace(42)", got)
	}
	if _, err := ColorSpace(42).MarshalText(); err == nil {
		t.Error("Expected MarshalText to reject unknown selector")
	}
}

func TestColorSpaceJSON(t *testing.T) {
	var req struct {
		ColorSpace ColorSpace `json:"color_space"`
	}
	if err := json.Unmarshal([]byte(`{"color_space":"hlg_bt2020"}`), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.ColorSpace != HLGBT2020 {
		t.Errorf("ColorSpace = %v, want hlg_bt2020", req.ColorSpace)
	}

	if err := json.Unmarshal([]byte(`{"color_space":"cmyk"}`), &req); err == nil {
		t.Error("Expected error for unknown selector")
	}
}
