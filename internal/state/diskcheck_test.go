package state

import (
	"errors"
	"testing"
)

func TestCheckDiskSpacePass(t *testing.T) {
	if err := CheckDiskSpace(t.TempDir(), 1); err != nil {
		t.Errorf("CheckDiskSpace: %v", err)
	}
}

func TestCheckDiskSpaceFail(t *testing.T) {
	err := CheckDiskSpace(t.TempDir(), 999999999)
	if !errors.Is(err, ErrInsufficientDisk) {
		t.Errorf("err = %v, want ErrInsufficientDisk", err)
	}
}

func TestCheckDiskSpaceBadPath(t *testing.T) {
	err := CheckDiskSpace("/nonexistent/path/that/should/not/exist", 1)
	if err == nil {
		t.Error("expected error for bad path")
	}
}
