// Package tasks holds the built-in classification tasks and loads custom ones
// from YAML files.
package tasks

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/kirillkom/comment-labeler/internal/core/domain"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Builtin returns the embedded tasks sorted by name.
func Builtin() ([]domain.Task, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("read builtin tasks: %w", err)
	}
	out := make([]domain.Task, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		content, err := builtinFS.ReadFile(path.Join("builtin", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read builtin task %s: %w", entry.Name(), err)
		}
		task, err := decode(content)
		if err != nil {
			return nil, fmt.Errorf("builtin task %s: %w", entry.Name(), err)
		}
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Lookup finds a built-in task by name.
func Lookup(name string) (domain.Task, error) {
	all, err := Builtin()
	if err != nil {
		return domain.Task{}, err
	}
	name = strings.TrimSpace(name)
	for _, task := range all {
		if task.Name == name {
			return task, nil
		}
	}
	return domain.Task{}, domain.WrapError(domain.ErrConfig, "lookup task", fmt.Errorf("unknown task %q (known: %s)", name, strings.Join(names(all), ", ")))
}

// LoadFile reads a task definition from a YAML file. Unknown fields are rejected.
func LoadFile(filePath string) (domain.Task, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return domain.Task{}, domain.WrapError(domain.ErrConfig, "read task file", err)
	}
	task, err := decode(content)
	if err != nil {
		return domain.Task{}, domain.WrapError(domain.ErrConfig, "parse task file "+filePath, err)
	}
	return task, nil
}

// Resolve picks the task for a run: a task file wins over the built-in name.
// A task file without a name takes the requested one. The result is validated.
func Resolve(name, filePath string) (domain.Task, error) {
	var (
		task domain.Task
		err  error
	)
	if strings.TrimSpace(filePath) != "" {
		task, err = LoadFile(filePath)
		if err == nil && task.Name == "" {
			task.Name = strings.TrimSpace(name)
		}
	} else {
		task, err = Lookup(name)
	}
	if err != nil {
		return domain.Task{}, err
	}
	if err := task.Validate(); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

func decode(content []byte) (domain.Task, error) {
	var task domain.Task
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&task); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Task{}, errors.New("empty task definition")
		}
		return domain.Task{}, err
	}
	if task.Mode == "" {
		task.Mode = domain.ModeBatch
	}
	return task, nil
}

func names(all []domain.Task) []string {
	out := make([]string, 0, len(all))
	for _, task := range all {
		out = append(out, task.Name)
	}
	return out
}
