package iscsi

import (
	"os/exec"
	"testing"
	"time"
)

func TestDevicePath(t *testing.T) {
	got := DevicePath("10.10.23.1:3260", "iqn.2010-01.com.solidfire:c9p4.vol.42")
	want := "/dev/disk/by-path/ip-10.10.23.1:3260-iscsi-iqn.2010-01.com.solidfire:c9p4.vol.42-lun-0"
	if got != want {
		t.Errorf("DevicePath:\n got %s\nwant %s", got, want)
	}
}

func TestParseInitiatorNames(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name: "typical file",
			content: "## DO NOT EDIT OR REMOVE THIS FILE!\n" +
				"InitiatorName=iqn.1993-08.org.debian:01:abcdef012345\n",
			want: []string{"iqn.1993-08.org.debian:01:abcdef012345"},
		},
		{
			name: "multiple names",
			content: "InitiatorName=iqn.1993-08.org.debian:01:aaa\n" +
				"InitiatorName=iqn.1993-08.org.debian:01:bbb\n",
			want: []string{"iqn.1993-08.org.debian:01:aaa", "iqn.1993-08.org.debian:01:bbb"},
		},
		{
			name:    "commented entry ignored",
			content: "#InitiatorName=iqn.1993-08.org.debian:01:old\nInitiatorName=iqn.1993-08.org.debian:01:new\n",
			want:    []string{"iqn.1993-08.org.debian:01:new"},
		},
		{
			name:    "unrelated settings ignored",
			content: "InitiatorAlias=somehost\n",
			want:    nil,
		},
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseInitiatorNames(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("Got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Entry %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestInitiatorNamesReadFailure(t *testing.T) {
	i := &execInitiator{
		execCommand: exec.Command,
		readFile: func(string) ([]byte, error) {
			return nil, &exec.Error{Name: "open", Err: exec.ErrNotFound}
		},
	}

	if _, err := i.InitiatorNames(); err == nil {
		t.Error("Expected error when initiator file is unreadable")
	}
}

func TestParseDiscoveryOutput(t *testing.T) {
	output := "10.10.23.1:3260,1 iqn.2010-01.com.solidfire:c9p4.vol-a.7\n" +
		"10.10.23.1:3260,1 iqn.2010-01.com.solidfire:c9p4.vol-b.8\n" +
		"garbage line\n"

	targets := ParseDiscoveryOutput(output)
	if len(targets) != 2 {
		t.Fatalf("Expected 2 targets, got %v", targets)
	}
	if targets[0] != "iqn.2010-01.com.solidfire:c9p4.vol-a.7" {
		t.Errorf("Unexpected first target: %s", targets[0])
	}
}

func TestLoginRejectsUnsafeArguments(t *testing.T) {
	i := &execInitiator{execCommand: exec.Command}

	if err := i.Login("10.10.23.1:3260", "iqn.2010-01.com.solidfire:x; reboot"); err == nil {
		t.Error("Expected error for IQN with shell metacharacters")
	}
	if err := i.Login("10.10.23.1:3260; reboot", "iqn.2010-01.com.solidfire:x"); err == nil {
		t.Error("Expected error for SVIP with shell metacharacters")
	}
	if err := i.Logout("10.10.23.1:3260", "not-an-iqn"); err == nil {
		t.Error("Expected error for malformed IQN")
	}
}

func TestMockLoginCreatesDevicePath(t *testing.T) {
	m := NewMockInitiator()
	svip := "10.10.23.1:3260"
	target := "iqn.2010-01.com.solidfire:c9p4.vol.42"

	path := DevicePath(svip, target)
	if m.PathExists(path, time.Second) {
		t.Fatal("Path should not exist before login")
	}

	if err := m.Login(svip, target); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !m.PathExists(path, time.Second) {
		t.Error("Path should exist after login")
	}

	if err := m.Logout(svip, target); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if m.PathExists(path, time.Second) {
		t.Error("Path should not exist after logout")
	}
}
