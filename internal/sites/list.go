package sites

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"abide2nidm/internal/services"
)

// LoadList reads a newline-delimited site list. Lines are trimmed, blank and
// "#" comment lines are dropped, and repeats keep their first position.
func LoadList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "batch", "load sites", fmt.Sprintf("sites file %s not found", path), err)
		}
		return nil, services.Wrap(services.ErrConfiguration, "batch", "load sites", "open sites file", err)
	}
	defer file.Close()

	var list []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		list = append(list, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batch", "load sites", "read sites file", err)
	}
	return list, nil
}

// Discover lists subdirectories of root whose names start with prefix, sorted.
func Discover(root, prefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "sites", "discover", fmt.Sprintf("dataset root %s not found", root), err)
		}
		return nil, fmt.Errorf("read dataset root: %w", err)
	}
	var found []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		found = append(found, entry.Name())
	}
	sort.Strings(found)
	return found, nil
}
