package notify

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrUnknownPlaceholder = errors.New("unknown placeholder")

const dateFormat = "Monday, January 2"

// Vars are the values a message template can reference.
type Vars struct {
	Name             string
	Role             string
	Event            string
	Date             *time.Time
	Link             string
	Coordinator      string
	CoordinatorPhone string
	Org              string
}

type resolver func(Vars) string

var resolvers = map[string]resolver{
	"name":       func(v Vars) string { return v.Name },
	"first_name": firstName,
	"role":       func(v Vars) string { return v.Role },
	"event":      func(v Vars) string { return v.Event },
	"date": func(v Vars) string {
		if v.Date == nil {
			return ""
		}
		return v.Date.Format(dateFormat)
	},
	"link":              func(v Vars) string { return v.Link },
	"coordinator":       func(v Vars) string { return v.Coordinator },
	"coordinator_phone": func(v Vars) string { return v.CoordinatorPhone },
	"org":               func(v Vars) string { return v.Org },
}

func firstName(v Vars) string {
	fields := strings.Fields(v.Name)
	if len(fields) == 0 {
		return "there"
	}
	// a Caser is stateful, so one per call
	return cases.Title(language.Und).String(fields[0])
}

// Render substitutes {placeholder} tags. A tag with no resolver is an error
// rather than being left in the text.
func Render(tmpl string, v Vars) (string, error) {
	return fasttemplate.ExecuteFuncStringWithErr(tmpl, "{", "}", func(w io.Writer, tag string) (int, error) {
		fn, ok := resolvers[strings.TrimSpace(tag)]
		if !ok {
			return 0, fmt.Errorf("%w: {%s}", ErrUnknownPlaceholder, tag)
		}
		return io.WriteString(w, fn(v))
	})
}
