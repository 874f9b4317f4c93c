package rules

import (
	"encoding/json"
	"strconv"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Resource records and evaluation configs are loosely typed maps: they come
// from collectors (Go slices and maps), from YAML (ints, []any) and from JSON
// fixtures (float64). These helpers read them without caring which.

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case *string:
		if v != nil {
			return *v
		}
	}
	return ""
}

func boolean(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case *bool:
		return v != nil && *v
	}
	return false
}

// number converts any numeric representation to int.
func number(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case *int32:
		if n != nil {
			return int(*n), true
		}
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case models.ResourceRecord:
		return m
	}
	return nil
}

// maps returns the map elements of a list attribute, skipping anything else.
func maps(v any) []map[string]any {
	switch l := v.(type) {
	case []map[string]any:
		return l
	case []any:
		out := make([]map[string]any, 0, len(l))
		for _, item := range l {
			if m := asMap(item); m != nil {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// strs returns the string elements of a list attribute.
func strs(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func configString(rule models.Rule, key, def string) string {
	switch v := rule.Evaluation[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	}
	return def
}

func configInt(rule models.Rule, key string, def int) int {
	if n, ok := number(rule.Evaluation[key]); ok {
		return n
	}
	return def
}

func configStrings(rule models.Rule, key string, def []string) []string {
	if _, ok := rule.Evaluation[key]; !ok {
		return def
	}
	return strs(rule.Evaluation[key])
}

func configInts(rule models.Rule, key string) []int {
	l, ok := rule.Evaluation[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(l))
	for _, item := range l {
		if n, ok := number(item); ok {
			out = append(out, n)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, item := range list {
		if item == n {
			return true
		}
	}
	return false
}
