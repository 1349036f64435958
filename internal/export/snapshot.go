package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

// Scope selects which origins a snapshot read returns.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeMerged Scope = "merged"
)

// ErrNoSnapshot is returned before the first export completed.
var ErrNoSnapshot = errors.New("no snapshot has been exported yet")

// ParseScope accepts "local" and "merged"; empty means merged.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeMerged:
		return ScopeMerged, nil
	case ScopeLocal:
		return ScopeLocal, nil
	default:
		return "", fmt.Errorf("unknown scope %q: want local or merged", s)
	}
}

// WriteSnapshot copies the published snapshot to w. The local scope streams
// only records of the local origin.
func (e *Exporter) WriteSnapshot(w io.Writer, scope Scope) error {
	f, err := os.Open(e.SnapshotPath())
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoSnapshot
	}
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	if scope != ScopeLocal {
		_, err = io.Copy(w, f)
		return err
	}
	return filterLocal(f, w)
}

func filterLocal(r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	first := true
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read snapshot record: %w", err)
		}
		var head struct {
			Origin string `json:"origin"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("read snapshot record: %w", err)
		}
		if head.Origin != domain.OriginLocal {
			continue
		}
		if !first {
			if _, err := io.WriteString(w, ",\n"); err != nil {
				return err
			}
		}
		first = false
		if _, err := w.Write(raw); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "]\n")
	return err
}
