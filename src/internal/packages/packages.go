// Package packages declares the commands vizier can run and validates command arguments against
// those declarations.
package packages

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/viztrail"
	"gopkg.in/yaml.v3"
)

// Parameter datatypes.
const (
	TypeBool    = "bool"
	TypeCode    = "code"
	TypeColumn  = "colid"
	TypeDataset = "dataset"
	TypeDecimal = "decimal"
	TypeFile    = "fileid"
	TypeInt     = "int"
	TypeList    = "list"
	TypeRecord  = "record"
	TypeRow     = "rowid"
	TypeScalar  = "scalar"
	TypeString  = "string"
)

// Parameter declares one command argument.  Record parameters, and list parameters whose
// elements are records, declare their fields in Parameters.
type Parameter struct {
	ID         string      `yaml:"id"`
	Name       string      `yaml:"name"`
	Datatype   string      `yaml:"datatype"`
	Required   bool        `yaml:"required"`
	Values     []string    `yaml:"values,omitempty"`
	Parameters []Parameter `yaml:"parameters,omitempty"`
}

// FormatElement is one token of a command's external form.  Const elements print Value;
// variable and optional elements print the argument named by Value, optional ones only when the
// argument is present.
type FormatElement struct {
	Type   string `yaml:"type"`
	Value  string `yaml:"value"`
	Prefix string `yaml:"prefix,omitempty"`
	Suffix string `yaml:"suffix,omitempty"`
}

// CommandDeclaration declares one command of a package.
type CommandDeclaration struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Parameters []Parameter     `yaml:"parameters"`
	Format     []FormatElement `yaml:"format,omitempty"`
}

// Declaration declares a package.
type Declaration struct {
	ID       string                `yaml:"id"`
	Name     string                `yaml:"name"`
	Commands []*CommandDeclaration `yaml:"commands"`
}

//go:embed declarations.yaml
var builtinDeclarations []byte

// ParseDeclarations reads one or more YAML documents, each declaring a package.
func ParseDeclarations(r io.Reader) ([]*Declaration, error) {
	dec := yaml.NewDecoder(r)
	var result []*Declaration
	for {
		d := &Declaration{}
		if err := dec.Decode(d); err != nil {
			if err == io.EOF {
				return result, nil
			}
			return nil, errors.Wrap(err, "parse package declarations")
		}
		if d.ID == "" {
			return nil, errors.New("package declaration without an id")
		}
		result = append(result, d)
	}
}

// Index holds the declared packages.
type Index struct {
	mu       sync.RWMutex
	packages map[string]*Declaration
}

// NewIndex returns an index of the given packages.
func NewIndex(decls ...*Declaration) *Index {
	ix := &Index{packages: make(map[string]*Declaration)}
	for _, d := range decls {
		ix.Add(d)
	}
	return ix
}

// Builtin returns an index of the packages bundled with vizier.
func Builtin() *Index {
	decls, err := ParseDeclarations(bytes.NewReader(builtinDeclarations))
	if err != nil {
		panic(err)
	}
	return NewIndex(decls...)
}

// LoadFile adds the packages declared in the YAML file at path.
func (ix *Index) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.EnsureStack(err)
	}
	decls, err := ParseDeclarations(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "load %s", path)
	}
	for _, d := range decls {
		ix.Add(d)
	}
	return nil
}

// Add adds or replaces a package.
func (ix *Index) Add(d *Declaration) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.packages[d.ID] = d
}

// Packages returns the declared package identifiers in sorted order.
func (ix *Index) Packages() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.packages))
	for id := range ix.packages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Package returns the declaration of a package.
func (ix *Index) Package(id string) (*Declaration, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.packages[id]
	if !ok {
		return nil, &ValidationError{Problems: []string{"unknown package " + id}}
	}
	return p, nil
}

// Get returns the declaration of a command.
func (ix *Index) Get(packageID, commandID string) (*CommandDeclaration, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.packages[packageID]
	if !ok {
		return nil, &ValidationError{Problems: []string{"unknown package " + packageID}}
	}
	for _, c := range p.Commands {
		if c.ID == commandID {
			return c, nil
		}
	}
	return nil, &ValidationError{Problems: []string{"unknown command " + packageID + "." + commandID}}
}

// Validate checks a command's arguments against its declaration.
func (ix *Index) Validate(cmd *viztrail.Command) error {
	decl, err := ix.Get(cmd.PackageID, cmd.CommandID)
	if err != nil {
		return err
	}
	var problems []string
	validateRecord(decl.Parameters, cmd.Arguments, "", &problems)
	if len(problems) > 0 {
		return &ValidationError{Command: cmd.Name(), Problems: problems}
	}
	return nil
}
