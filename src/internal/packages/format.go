package packages

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// Format element types.
const (
	FormatConst    = "const"
	FormatVariable = "variable"
	FormatOptional = "optional"
)

// ExternalForm renders a command for display.  Commands without a declared format render as
// their name followed by their arguments.
func (ix *Index) ExternalForm(cmd *viztrail.Command) string {
	decl, err := ix.Get(cmd.PackageID, cmd.CommandID)
	if err != nil || len(decl.Format) == 0 {
		args, err := json.Marshal(cmd.Arguments)
		if err != nil {
			return cmd.Name()
		}
		return cmd.Name() + " " + string(args)
	}
	var tokens []string
	for _, f := range decl.Format {
		switch f.Type {
		case FormatConst:
			tokens = append(tokens, f.Value)
		case FormatVariable, FormatOptional:
			v, ok := cmd.Arguments.Get(f.Value)
			if !ok {
				if f.Type == FormatOptional {
					continue
				}
				tokens = append(tokens, f.Prefix+"<"+f.Value+">"+f.Suffix)
				continue
			}
			tokens = append(tokens, f.Prefix+render(v)+f.Suffix)
		}
	}
	return strings.Join(tokens, " ")
}

func render(v viztrail.Value) string {
	switch x := v.(type) {
	case viztrail.Scalar:
		if x.V == nil {
			return "NULL"
		}
		return fmt.Sprint(x.V)
	case viztrail.List:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = render(e)
		}
		return strings.Join(parts, ", ")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}
