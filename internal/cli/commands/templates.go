package commands

import (
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:embed all:templates
var templateFS embed.FS

// Project templates.
const (
	templateMinimal = "minimal"
	templateExample = "example"
)

// copyTemplate copies an embedded template directory into targetDir and
// returns the files it wrote, relative to targetDir. Existing files are left
// alone unless force is set. "gitignore" is written as ".gitignore".
func copyTemplate(templateName, targetDir string, force bool) (written, skipped []string, err error) {
	root := path.Join("templates", templateName)

	err = fs.WalkDir(templateFS, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if rel == "" {
			return nil
		}
		rel = renameSpecialFiles(rel)
		target := filepath.Join(targetDir, filepath.FromSlash(rel))

		if d.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		if !force {
			if _, err := os.Stat(target); err == nil {
				skipped = append(skipped, rel)
				return nil
			}
		}

		content, err := templateFS.ReadFile(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, content, 0600); err != nil {
			return err
		}
		written = append(written, rel)
		return nil
	})
	return written, skipped, err
}

// renameSpecialFiles maps embedded names to the dotfiles they stand for.
func renameSpecialFiles(rel string) string {
	dir, base := path.Split(rel)
	switch base {
	case "gitignore":
		return dir + ".gitignore"
	default:
		return rel
	}
}

// groupTemplateFiles groups files by category for display.
func groupTemplateFiles(files []string) map[string][]string {
	groups := map[string][]string{
		"config": {},
		"data":   {},
	}

	for _, f := range files {
		switch {
		case strings.HasPrefix(f, "data/"):
			groups["data"] = append(groups["data"], f)
		default:
			groups["config"] = append(groups["config"], f)
		}
	}

	return groups
}
