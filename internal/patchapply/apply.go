package patchapply

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samsaffron/agentkernel/cmd/udiff"
)

// Result summarizes one file touched by a patch application.
type Result struct {
	Path     string
	Applied  bool
	Warnings []string
}

// Apply parses patchText as a unified diff and applies every hunk to the
// files it names, relative to cwd for relative paths. It is the function
// the re-invoked host binary calls under ApplyPatchFlag; it never prompts,
// since the approval decision was already made by the caller that spawned
// this subprocess.
func Apply(cwd, patchText string) ([]Result, error) {
	fileDiffs, err := udiff.Parse(patchText)
	if err != nil {
		return nil, fmt.Errorf("parse patch: %w", err)
	}

	results := make([]Result, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		path := fd.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			results = append(results, Result{Path: fd.Path, Warnings: []string{err.Error()}})
			continue
		}
		content := string(data)

		applied := udiff.ApplyWithWarnings(content, fd.Hunks)
		res := Result{Path: fd.Path, Warnings: applied.Warnings}

		if applied.Content != content {
			dir := filepath.Dir(path)
			base := filepath.Base(path)
			tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("create temp file: %v", err))
				results = append(results, res)
				continue
			}
			tmpPath := tmp.Name()
			if _, err := tmp.WriteString(applied.Content); err != nil {
				tmp.Close()
				os.Remove(tmpPath)
				res.Warnings = append(res.Warnings, fmt.Sprintf("write temp file: %v", err))
				results = append(results, res)
				continue
			}
			tmp.Close()
			if err := os.Rename(tmpPath, path); err != nil {
				os.Remove(tmpPath)
				res.Warnings = append(res.Warnings, fmt.Sprintf("rename temp file: %v", err))
				results = append(results, res)
				continue
			}
			res.Applied = true
		}

		results = append(results, res)
	}

	return results, nil
}
