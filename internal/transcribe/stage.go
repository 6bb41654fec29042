package transcribe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/google/uuid"
)

const stagePrefix = "voxserve-"

// Artifact is a staged audio file owned by a single request. Callers must
// defer Release immediately after a successful Stage.
type Artifact struct {
	path string
}

// Stage writes data to a new uniquely named file in dir. The suffix is
// chosen from the data's container signature.
func Stage(dir string, data []byte) (*Artifact, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, stagePrefix+uuid.NewString()+audio.SniffExt(data))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create staged audio: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write staged audio: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("close staged audio: %w", err)
	}

	return &Artifact{path: path}, nil
}

func (a *Artifact) Path() string { return a.path }

func (a *Artifact) Ext() string { return filepath.Ext(a.path) }

func (a *Artifact) Size() (int64, error) {
	info, err := os.Stat(a.path)
	if err != nil {
		return 0, fmt.Errorf("stat staged audio: %w", err)
	}
	return info.Size(), nil
}

// Release deletes the staged file. It is safe to call more than once.
func (a *Artifact) Release() error {
	if a == nil || a.path == "" {
		return nil
	}
	err := os.Remove(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
