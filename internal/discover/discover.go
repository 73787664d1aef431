// Package discover finds server logs and test-case log trees on disk.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Files expands paths and glob patterns into a sorted, de-duplicated list of
// regular files. A directory contributes every file directly inside it whose
// name matches ext (".log" matches "x.log" and "x.log.gz"; "" matches all).
func Files(patterns []string, ext string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%s: no such file", pat)
		}
		for _, m := range matches {
			fi, err := os.Stat(m)
			if err != nil {
				return nil, err
			}
			if !fi.IsDir() {
				add(m)
				continue
			}
			entries, err := os.ReadDir(m)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if e.Type().IsRegular() && hasExt(e.Name(), ext) {
					add(filepath.Join(m, e.Name()))
				}
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasExt(name, ext string) bool {
	if ext == "" {
		return true
	}
	return strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+".gz")
}

// Case is one test case: every log file under <root>/<case>/<station>/.
type Case struct {
	Name  string
	Files []string
}

// Cases lists the test cases under root, laid out as <root>/<case>/<station>/<file>.
// Cases and their files come back sorted. A case with no files is still
// returned so the caller can report it as having no data.
func Cases(root string) ([]Case, error) {
	caseDirs, err := subdirs(root)
	if err != nil {
		return nil, err
	}
	out := make([]Case, 0, len(caseDirs))
	for _, name := range caseDirs {
		c := Case{Name: name}
		caseRoot := filepath.Join(root, name)
		stations, err := subdirs(caseRoot)
		if err != nil {
			return nil, err
		}
		for _, st := range stations {
			dir := filepath.Join(caseRoot, st)
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
					c.Files = append(c.Files, filepath.Join(dir, e.Name()))
				}
			}
		}
		sort.Strings(c.Files)
		out = append(out, c)
	}
	return out, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
