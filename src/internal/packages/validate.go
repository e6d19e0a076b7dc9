package packages

import (
	"fmt"
	"math"
	"strings"

	"github.com/vizierdb/vizier/src/internal/viztrail"
)

// ValidationError lists every problem found with a command's arguments.
type ValidationError struct {
	Command  string
	Problems []string
}

func (err *ValidationError) Error() string {
	if err.Command == "" {
		return "invalid command: " + strings.Join(err.Problems, "; ")
	}
	return fmt.Sprintf("invalid arguments for %s: %s", err.Command, strings.Join(err.Problems, "; "))
}

func validateRecord(params []Parameter, rec viztrail.Record, path string, problems *[]string) {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.ID] = true
		v, ok := rec.Get(p.ID)
		if !ok {
			if p.Required {
				*problems = append(*problems, "missing argument "+path+p.ID)
			}
			continue
		}
		validateValue(p, v, path+p.ID, problems)
	}
	for k := range rec {
		if !known[k] {
			*problems = append(*problems, "unknown argument "+path+k)
		}
	}
}

func validateValue(p Parameter, v viztrail.Value, path string, problems *[]string) {
	mistyped := func() {
		*problems = append(*problems, fmt.Sprintf("argument %s is not a valid %s", path, p.Datatype))
	}
	switch p.Datatype {
	case TypeRecord:
		rec, ok := v.(viztrail.Record)
		if !ok {
			mistyped()
			return
		}
		validateRecord(p.Parameters, rec, path+".", problems)
		return
	case TypeList:
		list, ok := v.(viztrail.List)
		if !ok {
			mistyped()
			return
		}
		for i, elem := range list {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if len(p.Parameters) == 0 {
				if _, ok := elem.(viztrail.Scalar); !ok {
					*problems = append(*problems, "argument "+elemPath+" is not a scalar")
				}
				continue
			}
			rec, ok := elem.(viztrail.Record)
			if !ok {
				*problems = append(*problems, "argument "+elemPath+" is not a record")
				continue
			}
			validateRecord(p.Parameters, rec, elemPath+".", problems)
		}
		return
	}
	s, ok := v.(viztrail.Scalar)
	if !ok || !scalarMatches(p.Datatype, s.V) {
		mistyped()
		return
	}
	if len(p.Values) > 0 {
		str := fmt.Sprint(s.V)
		for _, allowed := range p.Values {
			if allowed == str {
				return
			}
		}
		*problems = append(*problems, fmt.Sprintf("argument %s must be one of %s", path, strings.Join(p.Values, ", ")))
	}
}

func scalarMatches(datatype string, v interface{}) bool {
	switch datatype {
	case TypeString, TypeCode:
		_, ok := v.(string)
		return ok
	case TypeDataset, TypeFile:
		s, ok := v.(string)
		return ok && s != ""
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeInt, TypeColumn, TypeRow:
		switch n := v.(type) {
		case int64, int:
			return true
		case float64:
			return n == math.Trunc(n)
		}
		return false
	case TypeDecimal:
		switch v.(type) {
		case int64, int, float64:
			return true
		}
		return false
	case TypeScalar:
		return true
	}
	return false
}
