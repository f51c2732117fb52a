package config

import (
	"errors"
	"fmt"
)

// CurrentVersion is the config file format this build reads. A file that
// omits version is read as CurrentVersion.
const CurrentVersion = 1

var (
	// ErrVersionTooNew means the file was written for a newer canvasd.
	ErrVersionTooNew = errors.New("config version is newer than this build")
	// ErrVersionInvalid means the version field is negative.
	ErrVersionInvalid = errors.New("config version must not be negative")
)

// checkVersion runs after defaults are applied, so zero never reaches it
// from Load.
func checkVersion(version int) error {
	switch {
	case version < 0:
		return fmt.Errorf("%w: got %d", ErrVersionInvalid, version)
	case version > CurrentVersion:
		return fmt.Errorf("%w: got %d, supported up to %d", ErrVersionTooNew, version, CurrentVersion)
	case version == 0:
		return fmt.Errorf("%w: version not set", ErrVersionInvalid)
	}
	return nil
}
