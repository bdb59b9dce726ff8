package tuples

import (
	"sort"
	"strings"
)

// Selector identifies the set of tuples a subscription or storage slot refers to.
type Selector struct {
	Name   Type              `json:"name"`
	Params map[string]string `json:"selector,omitempty"`
}

// NewSelector builds a selector from alternating key, value pairs. A trailing
// key without a value is ignored.
func NewSelector(name Type, keyValues ...string) Selector {
	s := Selector{Name: name}
	for i := 0; i+1 < len(keyValues); i += 2 {
		if s.Params == nil {
			s.Params = make(map[string]string)
		}
		s.Params[keyValues[i]] = keyValues[i+1]
	}
	return s
}

// Param returns the named selector parameter.
func (s Selector) Param(key string) string {
	return s.Params[key]
}

// Key is a stable string form, equal selectors give equal keys.
func (s Selector) Key() string {
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(s.Name))
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Params[k])
	}
	b.WriteByte('}')
	return b.String()
}

func (s Selector) String() string {
	return s.Key()
}

// Common selectors
func UserListSelector() Selector {
	return NewSelector(TypeUserListItem)
}

func UserLoggedInSelector(userName string) Selector {
	return NewSelector(TypeUserLoggedIn, "userName", userName)
}

func ServiceStateSelector() Selector {
	return NewSelector(TypeUserServiceState)
}
