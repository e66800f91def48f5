// -----------------------------------------------------------------------
// Checkpoint registry - discovery and validation of guidance checkpoints
// -----------------------------------------------------------------------

package guidance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

const (
	checkpointExt      = ".ckpt"
	sidecarName        = "all_config.yaml"
	fallbackDefaultCkp = "best.ckpt"
)

var epochPattern = regexp.MustCompile(`epoch[=_-]?(\d+)`)

// sidecar is the training config written next to checkpoints
type sidecar struct {
	Epoch  *int `yaml:"epoch"`
	Epochs *int `yaml:"epochs"`
}

// Registry lists checkpoints below a directory.
type Registry struct {
	dir         string
	defaultName string
	minEpoch    int
	logger      arbor.ILogger
}

// NewRegistry creates a checkpoint registry from the guidance config
func NewRegistry(cfg *common.GuidanceConfig, logger arbor.ILogger) *Registry {
	return &Registry{
		dir:         cfg.CheckpointDir,
		defaultName: cfg.DefaultCheckpoint,
		minEpoch:    cfg.MinEpoch,
		logger:      logger,
	}
}

// List returns every checkpoint sorted by name. A missing directory yields
// an empty list.
func (r *Registry) List(ctx context.Context) ([]models.Checkpoint, error) {
	if r.dir == "" {
		return []models.Checkpoint{}, nil
	}
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return []models.Checkpoint{}, nil
	}

	sidecars := make(map[string]*int)
	var checkpoints []models.Checkpoint

	err := filepath.WalkDir(r.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), checkpointExt) {
			return nil
		}

		dir := filepath.Dir(path)
		if _, loaded := sidecars[dir]; !loaded {
			sidecars[dir] = readSidecarEpoch(dir)
		}

		checkpoints = append(checkpoints, r.inspect(path, sidecars[dir]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoints: %w", err)
	}

	r.markDefault(checkpoints)
	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].Name < checkpoints[j].Name })
	return checkpoints, nil
}

// Resolve returns the named checkpoint if it exists and is valid. The name
// may be the registry name or a path. An empty name is a configuration error.
func (r *Registry) Resolve(ctx context.Context, name string) (models.Checkpoint, error) {
	if strings.TrimSpace(name) == "" {
		return models.Checkpoint{}, interfaces.NewConfigurationError("no guidance checkpoint selected")
	}

	checkpoints, err := r.List(ctx)
	if err != nil {
		return models.Checkpoint{}, err
	}

	for _, cp := range checkpoints {
		if cp.Name == name || cp.Path == name || filepath.Clean(cp.Path) == filepath.Clean(name) {
			if !cp.Valid {
				return cp, interfaces.NewConfigurationError("checkpoint %s is not usable: %s", cp.Name, cp.Reason)
			}
			return cp, nil
		}
	}
	return models.Checkpoint{}, interfaces.NewConfigurationError("checkpoint %s not found", name)
}

// Revalidate checks that a checkpoint captured earlier is still usable.
func (r *Registry) Revalidate(cp models.Checkpoint) error {
	current := r.inspect(cp.Path, readSidecarEpoch(filepath.Dir(cp.Path)))
	if !current.Valid {
		return interfaces.NewConfigurationError("checkpoint %s is no longer usable: %s", cp.Name, current.Reason)
	}
	return nil
}

func (r *Registry) inspect(path string, sidecarEpoch *int) models.Checkpoint {
	name := filepath.Base(path)
	if rel, err := filepath.Rel(r.dir, path); err == nil {
		name = filepath.ToSlash(rel)
	}

	cp := models.Checkpoint{Path: path, Name: name, Epoch: -1}

	if m := epochPattern.FindStringSubmatch(strings.ToLower(filepath.Base(path))); len(m) == 2 {
		cp.Epoch, _ = strconv.Atoi(m[1])
	} else if sidecarEpoch != nil {
		cp.Epoch = *sidecarEpoch
	}

	info, err := os.Stat(path)
	if err != nil {
		cp.Reason = "missing"
		return cp
	}
	cp.Size = info.Size()
	cp.ModifiedAt = info.ModTime()

	switch {
	case cp.Size == 0:
		cp.Reason = "empty file"
	case !readable(path):
		cp.Reason = "unreadable"
	case r.minEpoch > 0 && cp.Epoch < r.minEpoch:
		cp.Reason = fmt.Sprintf("epoch %d below minimum %d", cp.Epoch, r.minEpoch)
	default:
		cp.Valid = true
	}
	return cp
}

func (r *Registry) markDefault(checkpoints []models.Checkpoint) {
	want := r.defaultName
	if want == "" {
		want = fallbackDefaultCkp
	}
	for i := range checkpoints {
		cp := &checkpoints[i]
		if cp.Name == want || cp.Path == want || filepath.Base(cp.Path) == want {
			cp.IsDefault = true
			return
		}
	}
}

func readSidecarEpoch(dir string) *int {
	data, err := os.ReadFile(filepath.Join(dir, sidecarName))
	if err != nil {
		return nil
	}
	var sc sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil
	}
	if sc.Epoch != nil {
		return sc.Epoch
	}
	return sc.Epochs
}

func readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 1)
	_, err = f.Read(buf)
	return err == nil
}
