package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestComposeVolumeName(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	name := ComposeVolumeName("flock-", id)
	if name != "flock-11111111-2222-3333-4444-555555555555" {
		t.Errorf("Unexpected volume name: %s", name)
	}

	// No prefix configured
	name = ComposeVolumeName("", id)
	if name != id.String() {
		t.Errorf("Unexpected volume name without prefix: %s", name)
	}
}

func TestDatasetIDFromVolumeName(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		volName   string
		want      string
		expectErr bool
	}{
		{
			name:    "prefixed name",
			prefix:  "flock-",
			volName: "flock-11111111-2222-3333-4444-555555555555",
			want:    "11111111-2222-3333-4444-555555555555",
		},
		{
			name:    "no prefix",
			prefix:  "",
			volName: "11111111-2222-3333-4444-555555555555",
			want:    "11111111-2222-3333-4444-555555555555",
		},
		{
			name:      "foreign volume",
			prefix:    "flock-",
			volName:   "somebody-elses-volume",
			expectErr: true,
		},
		{
			name:      "prefix only",
			prefix:    "flock-",
			volName:   "flock-",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := DatasetIDFromVolumeName(tt.prefix, tt.volName)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if id.String() != tt.want {
				t.Errorf("Got dataset ID %s, want %s", id, tt.want)
			}
		})
	}
}

func TestParseVolumeID(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		want      int64
		expectErr bool
	}{
		{name: "plain decimal", in: "42", want: 42},
		{name: "surrounding whitespace", in: " 42\n", want: 42},
		{name: "empty", in: "", expectErr: true},
		{name: "zero", in: "0", expectErr: true},
		{name: "negative", in: "-3", expectErr: true},
		{name: "non-numeric", in: "vol-42", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVolumeID(tt.in)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatVolumeID(t *testing.T) {
	if got := FormatVolumeID(107); got != "107" {
		t.Errorf("Got %q, want %q", got, "107")
	}

	// Round trip: parse(format(x)) == x
	id, err := ParseVolumeID(FormatVolumeID(9001))
	if err != nil {
		t.Fatalf("Round trip failed: %v", err)
	}
	if id != 9001 {
		t.Errorf("Round trip got %d, want 9001", id)
	}
}

func TestValidateIQN(t *testing.T) {
	tests := []struct {
		name      string
		iqn       string
		expectErr bool
	}{
		{
			name: "solidfire target",
			iqn:  "iqn.2010-01.com.solidfire:c9p4.flock-11111111-2222-3333-4444-555555555555.7",
		},
		{
			name: "initiator name",
			iqn:  "iqn.1993-08.org.debian:01:abcdef012345",
		},
		{name: "empty", iqn: "", expectErr: true},
		{name: "missing iqn prefix", iqn: "nqn.2010-01.com.solidfire:x", expectErr: true},
		{name: "shell metacharacters", iqn: "iqn.2010-01.com.solidfire:x;rm -rf /", expectErr: true},
		{name: "embedded whitespace", iqn: "iqn.2010-01.com.solidfire:x y", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIQN(tt.iqn)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSVIP(t *testing.T) {
	if err := ValidateSVIP("10.10.23.1:3260"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := ValidateSVIP("10.10.23.1"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := ValidateSVIP(""); err == nil {
		t.Error("Expected error for empty SVIP")
	}
	if err := ValidateSVIP("10.10.23.1:3260; reboot"); err == nil {
		t.Error("Expected error for SVIP with shell metacharacters")
	}
}
