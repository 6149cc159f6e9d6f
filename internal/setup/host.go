package setup

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"preview/internal/apperrors"
	"preview/internal/preview"
	"strings"
)

// FootnoteCallersFile holds a project's custom footnote caller sequence.
const FootnoteCallersFile = "footnote-callers.txt"

// EnvHost finds projects as directories under ProjectsDir.
type EnvHost struct {
	ProjectsDir string
	User        string // overrides the OS user name
}

// CurrentUser implements Host.
func (h *EnvHost) CurrentUser() string {
	if h.User != "" {
		return h.User
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// ProjectDetails implements Host. The project's last update time is the
// modification time of its directory.
func (h *EnvHost) ProjectDetails(name string) (*preview.ProjectDetails, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, apperrors.Validation("project", "invalid project name")
	}
	info, err := os.Stat(filepath.Join(h.ProjectsDir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("project", name)
		}
		return nil, apperrors.Internal("host.projectDetails", err)
	}
	if !info.IsDir() {
		return nil, apperrors.NotFound("project", name)
	}
	return &preview.ProjectDetails{
		ProjectName:    name,
		ProjectUpdated: info.ModTime().UTC(),
	}, nil
}

// FootnoteCallersDefined implements Host.
func (h *EnvHost) FootnoteCallersDefined(name string) bool {
	data, err := os.ReadFile(filepath.Join(h.ProjectsDir, name, FootnoteCallersFile))
	return err == nil && strings.TrimSpace(string(data)) != ""
}

// Verify EnvHost implements Host
var _ Host = (*EnvHost)(nil)
