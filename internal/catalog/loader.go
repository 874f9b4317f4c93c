// Package catalog loads the declarative rule catalog. Each service has one
// YAML file named after its lower-cased service key (ec2.yaml, eks.yaml, ...)
// holding a list of rule entries.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

//go:embed rules/*.yaml
var bundled embed.FS

// CatalogParseError reports a rule file that could not be loaded. The whole
// file is rejected; no partial rule set is ever returned for it.
type CatalogParseError struct {
	File string
	// Entry is the zero-based index of the offending rule, or -1 when the
	// file itself could not be decoded.
	Entry int
	Err   error
}

func (e *CatalogParseError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("catalog %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("catalog %s: entry %d: %v", e.File, e.Entry, e.Err)
}

func (e *CatalogParseError) Unwrap() error { return e.Err }

// Loader reads rule files from an fs.FS and caches the parsed rules per
// service key for the lifetime of the process. It is safe for concurrent use.
type Loader struct {
	fsys fs.FS

	mu    sync.Mutex
	cache map[string][]models.Rule
}

// New returns a Loader reading rule files from the root of fsys.
func New(fsys fs.FS) *Loader {
	return &Loader{
		fsys:  fsys,
		cache: make(map[string][]models.Rule),
	}
}

// NewDefault returns a Loader over the catalog compiled into the binary.
func NewDefault() *Loader {
	sub, err := fs.Sub(bundled, "rules")
	if err != nil {
		// The embed pattern guarantees the directory exists.
		panic(err)
	}
	return New(sub)
}

// NewFromDir returns a Loader over the rule files in dir, or the bundled
// catalog when dir is empty.
func NewFromDir(dir string) *Loader {
	if dir == "" {
		return NewDefault()
	}
	return New(os.DirFS(dir))
}

// LoadRules returns the rules for service, or the union of every service's
// rules when service is empty. A service without a rule file yields an empty
// slice and no error.
func (l *Loader) LoadRules(service string) ([]models.Rule, error) {
	if service != "" {
		return l.loadService(strings.ToLower(service))
	}

	keys, err := l.Services()
	if err != nil {
		return nil, err
	}
	var all []models.Rule
	for _, key := range keys {
		rules, err := l.loadService(key)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	return all, nil
}

// Services returns the service keys that have a rule file, sorted.
func (l *Loader) Services() ([]string, error) {
	matches, err := fs.Glob(l.fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list rule files: %w", err)
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(path.Base(m), ".yaml"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *Loader) loadService(key string) ([]models.Rule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rules, ok := l.cache[key]; ok {
		return rules, nil
	}

	file := key + ".yaml"
	data, err := fs.ReadFile(l.fsys, file)
	if errors.Is(err, fs.ErrNotExist) {
		l.cache[key] = []models.Rule{}
		return l.cache[key], nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", file, err)
	}

	rules, err := parseRules(file, key, data)
	if err != nil {
		return nil, err
	}
	l.cache[key] = rules
	return rules, nil
}

// parseRules decodes a rule file strictly: unknown fields, missing required
// fields, a service that does not match the file, and duplicate ids all
// reject the file.
func parseRules(file, key string, data []byte) ([]models.Rule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var rules []models.Rule
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, &CatalogParseError{File: file, Entry: -1, Err: err}
	}

	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		r := &rules[i]
		switch {
		case r.ID == "":
			return nil, &CatalogParseError{File: file, Entry: i, Err: errors.New("missing id")}
		case r.Service == "":
			return nil, &CatalogParseError{File: file, Entry: i, Err: fmt.Errorf("rule %s: missing service", r.ID)}
		case r.Severity == "":
			return nil, &CatalogParseError{File: file, Entry: i, Err: fmt.Errorf("rule %s: missing severity", r.ID)}
		case !strings.EqualFold(r.Service, key):
			return nil, &CatalogParseError{File: file, Entry: i, Err: fmt.Errorf("rule %s: service %q does not match file", r.ID, r.Service)}
		}
		if err := checkEvaluation(r.Evaluation); err != nil {
			return nil, &CatalogParseError{File: file, Entry: i, Err: fmt.Errorf("rule %s: %w", r.ID, err)}
		}
		if _, dup := seen[r.ID]; dup {
			return nil, &CatalogParseError{File: file, Entry: i, Err: fmt.Errorf("duplicate rule id %s", r.ID)}
		}
		seen[r.ID] = struct{}{}

		if r.Evaluation == nil {
			r.Evaluation = map[string]any{}
		}
		if r.References == nil {
			r.References = []models.Reference{}
		}
	}
	if rules == nil {
		rules = []models.Rule{}
	}
	return rules, nil
}

// versionKeys are evaluation settings holding a Kubernetes major.minor
// version. They must be quoted in YAML: an unquoted 1.30 decodes as the
// float 1.3.
var versionKeys = []string{"currentVersion"}

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+`)

func checkEvaluation(eval map[string]any) error {
	for _, key := range versionKeys {
		v, ok := eval[key]
		if !ok {
			continue
		}
		s, isString := v.(string)
		if !isString {
			return fmt.Errorf("evaluation.%s must be a quoted version string such as \"1.30\", got %v", key, v)
		}
		if !versionPattern.MatchString(s) {
			return fmt.Errorf("evaluation.%s %q is not a major.minor version", key, s)
		}
	}
	return nil
}
