package criteria

import (
	"github.com/viant/buildfarm/service/dao"
)

// Match reports whether every parameter accepts the field value returned by
// lookup. Parameters naming unknown fields (lookup returns ok == false) are
// ignored.
func Match(lookup func(name string) (string, bool), parameters []*dao.Parameter) bool {
	for _, param := range parameters {
		if param == nil {
			continue
		}
		value, ok := lookup(param.Name)
		if !ok {
			continue
		}
		if !accepts(param.Value, value) {
			return false
		}
	}
	return true
}

func accepts(expected interface{}, value string) bool {
	switch actual := expected.(type) {
	case string:
		return value == actual
	case []string:
		for _, s := range actual {
			if value == s {
				return true
			}
		}
		return false
	}
	return true
}
