package config

import (
	"errors"
	"testing"
)

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version int
		want    error
	}{
		{CurrentVersion, nil},
		{0, ErrVersionInvalid},
		{-1, ErrVersionInvalid},
		{CurrentVersion + 1, ErrVersionTooNew},
	}
	for _, tt := range tests {
		err := checkVersion(tt.version)
		if tt.want == nil {
			if err != nil {
				t.Errorf("checkVersion(%d) = %v, want nil", tt.version, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("checkVersion(%d) = %v, want %v", tt.version, err, tt.want)
		}
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	_, err := Load(writeConfig(t, "canvasd.yaml", "version: 99"))
	if !errors.Is(err, ErrVersionTooNew) {
		t.Fatalf("Load error = %v, want ErrVersionTooNew", err)
	}
}
