// Package batch turns input files and prompts into a batch of tasks.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/spherical/quizgen/internal/artifact"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/pdf"
)

// Group is a set of source documents that produce one output name.
type Group struct {
	Name  string
	Paths []string
}

// Groups resolves inputs into groups. A file is a group of its own named
// after the file; a directory is one group of its supported files, named
// after the directory. Names are made unique in input order.
func Groups(inputs []string) ([]Group, error) {
	var groups []Group
	seen := map[string]int{}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, domain.ValidationError(fmt.Sprintf("input %s", input), err)
		}

		var g Group
		if info.IsDir() {
			paths, err := supportedFiles(input)
			if err != nil {
				return nil, err
			}
			if len(paths) == 0 {
				return nil, domain.ValidationError(fmt.Sprintf("no supported files in %s", input), nil)
			}
			g = Group{Name: filepath.Base(filepath.Clean(input)), Paths: paths}
		} else {
			if !pdf.Supported(input) {
				return nil, domain.ValidationError(fmt.Sprintf("unsupported input %s", input), nil)
			}
			g = Group{Name: strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)), Paths: []string{input}}
		}

		g.Name = artifact.SanitizeFilename(g.Name)
		seen[g.Name]++
		if n := seen[g.Name]; n > 1 {
			g.Name = fmt.Sprintf("%s_%d", g.Name, n)
		}
		groups = append(groups, g)
	}

	if len(groups) == 0 {
		return nil, domain.ValidationError("no inputs", nil)
	}
	return groups, nil
}

func supportedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("read %s", dir), err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !pdf.Supported(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Plan builds a batch with one task per group and kind, in group order
// then kind order. Each task is named <group><suffix>. With an empty name
// every group writes into a directory of its own, otherwise all tasks share
// the batch directory.
func Plan(name string, groups []Group, prompts map[domain.QuestionKind]string) domain.Batch {
	b := domain.Batch{ID: uuid.NewString(), Name: name}
	for _, g := range groups {
		dir := name
		if dir == "" {
			dir = g.Name
		}
		for _, kind := range domain.AllKinds {
			prompt, ok := prompts[kind]
			if !ok {
				continue
			}
			b.Tasks = append(b.Tasks, domain.Task{
				ID:            uuid.NewString(),
				BatchName:     artifact.SanitizeFilename(dir),
				OutputName:    g.Name + kind.Suffix(),
				DocumentPaths: g.Paths,
				Kind:          kind,
				PromptText:    prompt,
			})
		}
	}
	if b.Name == "" && len(groups) > 0 {
		b.Name = groups[0].Name
		if len(groups) > 1 {
			b.Name = fmt.Sprintf("%s +%d", groups[0].Name, len(groups)-1)
		}
	}
	return b
}
