package env

import (
	"reflect"
	"strings"
)

// Variable is one setting LoadConfig reads.
type Variable struct {
	Name    string
	Default string
}

// Variables lists the settings of Config in declaration order, as read from
// its env tags.
func Variables() []Variable {
	t := reflect.TypeOf(Config{})
	vars := make([]Variable, 0, t.NumField())

	for i := 0; i < t.NumField(); i++ {
		tag, ok := t.Field(i).Tag.Lookup("env")
		if !ok {
			continue
		}

		parts := strings.Split(tag, ",")
		v := Variable{Name: parts[0]}

		for _, opt := range parts[1:] {
			if strings.HasPrefix(opt, "default=") {
				v.Default = strings.TrimPrefix(opt, "default=")
			}
		}

		vars = append(vars, v)
	}

	return vars
}
