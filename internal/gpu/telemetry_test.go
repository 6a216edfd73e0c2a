package gpu

import "testing"

func TestParseCSVLine(t *testing.T) {
	got, err := parseCSVLine("24576, 8192, 16384, 35\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.TotalMB != 24576 || got.UsedMB != 8192 || got.FreeMB != 16384 || got.UtilizationPct != 35 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
}

func TestParseCSVLineMultiGPU(t *testing.T) {
	out := "24576, 8192, 16384, 35\n12288, 1024, 11264, 5\n"
	got, err := parseCSVLine(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.TotalMB != 24576 {
		t.Fatalf("expected the first device, got %+v", got)
	}
}

func TestParseCSVLineMalformed(t *testing.T) {
	for _, out := range []string{
		"",
		"24576, 8192",
		"24576, 8192, N/A, 35",
		"no gpu found",
	} {
		if _, err := parseCSVLine(out); err == nil {
			t.Errorf("expected parse error for %q", out)
		}
	}
}
