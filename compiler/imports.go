package compiler

import (
	"go/types"
	pathpkg "path"
	"sort"
	"strconv"
)

// importSet tracks the packages referenced by generated code and assigns
// each one an alias that does not collide with other imports or with
// identifiers declared in the output package
type importSet struct {
	self    *types.Package
	byPath  map[string]string
	aliases map[string]bool
}

// Import is an import of the generated file
type Import struct {
	Alias string
	Path  string
	// Explicit is set when the alias differs from the last path element
	Explicit bool
}

func newImportSet(self *types.Package) *importSet {
	return &importSet{
		self:    self,
		byPath:  map[string]string{},
		aliases: map[string]bool{},
	}
}

// add returns the alias of the package path
func (s *importSet) add(path, name string) string {
	if alias, ok := s.byPath[path]; ok {
		return alias
	}
	alias := name
	for i := 2; s.taken(alias); i++ {
		alias = name + strconv.Itoa(i)
	}
	s.byPath[path] = alias
	s.aliases[alias] = true
	return alias
}

func (s *importSet) taken(alias string) bool {
	if s.aliases[alias] {
		return true
	}
	return s.self != nil && s.self.Scope().Lookup(alias) != nil
}

// qualifier is a types.Qualifier that records the referenced packages
func (s *importSet) qualifier(p *types.Package) string {
	if p == nil || (s.self != nil && p.Path() == s.self.Path()) {
		return ""
	}
	return s.add(p.Path(), p.Name())
}

// list returns the imports sorted by path
func (s *importSet) list() []Import {
	res := make([]Import, 0, len(s.byPath))
	for path, alias := range s.byPath {
		res = append(res, Import{Alias: alias, Path: path, Explicit: alias != pathpkg.Base(path)})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Path < res[j].Path })
	return res
}
