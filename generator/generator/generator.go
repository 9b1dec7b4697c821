// Package generator emits class declarations for annotated Go types.
//
// A type is exposed with a "//dispatch:class [Name] [nocopy]" directive. Its
// exported methods become instance methods, value receivers are const.
// Package level functions are attached with "//dispatch:constructor Class"
// and "//dispatch:static Class", constants with "//dispatch:constant Class
// NAME". Methods and functions accept these directives:
//
//	//dispatch:ignore            do not expose
//	//dispatch:name n            expose as n instead of the snake cased name
//	//dispatch:alias n           additional name
//	//dispatch:setter n          additional "n=" property setter name
//	//dispatch:predicate         also reachable with a trailing "?"
//	//dispatch:protected         only callable with AllowProtected
//	//dispatch:callback          overridable from the dynamic side
//	//dispatch:owned             the returned object is owned by the caller
//	//dispatch:default p=v       default value for parameter p
//
// A method taking an emit function and returning its disconnect function is
// exposed as a signal with "//dispatch:signal [param:type ...]", types being
// int, float, string, bool or any.
package generator

import (
	"bytes"
	"embed"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/imports"
)

var (
	//go:embed templates/*
	templates embed.FS
)

const directivePrefix = "//dispatch:"

// Generate loads the package of fileName in dir and writes the class
// declarations to output. An empty fileName loads the package in dir.
func Generate(dir string, fileName string, output string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	data, err := Load(dir, fileName, logger)
	if err != nil {
		return err
	}

	target := path.Join(dir, output)
	if len(data.Classes) == 0 {
		logger.Info("no annotated classes found", "dir", dir)
		_ = os.Remove(target)
		return nil
	}

	src, err := Render(data, target)
	if err != nil {
		return err
	}

	logger.Info("writing class declarations", "file", target, "classes", len(data.Classes))
	return os.WriteFile(target, src, 0o644)
}

// Render executes the template and formats the result.
func Render(data *TemplateData, filename string) ([]byte, error) {
	tmpl, err := template.New("").ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return nil, err
	}

	writer := bytes.NewBuffer(nil)
	if err := tmpl.ExecuteTemplate(writer, "classes.tmpl", data); err != nil {
		return nil, err
	}

	fileBytes := writer.Bytes()
	formattedSource, err := imports.Process(filename, fileBytes, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not format %s: %w\nsource:\n%s", filename, err, fileBytes)
	}
	return formattedSource, nil
}

// Load collects the annotated declarations of a package.
func Load(dir string, fileName string, logger *slog.Logger) (*TemplateData, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pattern := "."
	if fileName != "" {
		pattern = "file=" + fileName
	}

	fset := token.NewFileSet()
	pkgs, err := packages.Load(&packages.Config{
		Dir:  dir,
		Fset: fset,
		Mode: packages.NeedSyntax | packages.NeedName | packages.NeedTypes | packages.NeedTypesInfo,
	}, pattern)
	if err != nil {
		return nil, err
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no package found for %s in %s", pattern, dir)
	}

	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("could not load package %s: %w", pkg.PkgPath, pkg.Errors[0])
	}

	l := &loader{
		pkg:     pkg,
		logger:  logger,
		classes: map[*types.TypeName]*TemplateClass{},
	}
	if err := l.load(); err != nil {
		return nil, err
	}

	data := &TemplateData{
		Pkg:     pkg.Name,
		PkgPath: pkg.PkgPath,
	}
	for _, class := range l.classes {
		data.Classes = append(data.Classes, *class)
	}
	sort.Slice(data.Classes, func(i, j int) bool {
		return data.Classes[i].Name < data.Classes[j].Name
	})
	return data, nil
}

type directive struct {
	name string
	args []string
}

func directives(doc *ast.CommentGroup) []directive {
	if doc == nil {
		return nil
	}
	var out []directive
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, directivePrefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(c.Text, directivePrefix))
		if len(fields) == 0 {
			continue
		}
		out = append(out, directive{name: fields[0], args: fields[1:]})
	}
	return out
}

func find(dirs []directive, name string) (directive, bool) {
	for _, d := range dirs {
		if d.name == name {
			return d, true
		}
	}
	return directive{}, false
}

// summary is the first paragraph of a doc comment, without directives.
func summary(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	text := strings.TrimSpace(doc.Text())
	if i := strings.Index(text, "\n\n"); i >= 0 {
		text = text[:i]
	}
	return strings.Join(strings.Fields(text), " ")
}

type methodKind int

const (
	instanceMethod methodKind = iota
	staticMethod
	constructorMethod
)

type loader struct {
	pkg     *packages.Package
	logger  *slog.Logger
	classes map[*types.TypeName]*TemplateClass
	order   []*types.TypeName
	decls   map[*types.Func]*ast.FuncDecl
}

func (l *loader) load() error {
	l.decls = map[*types.Func]*ast.FuncDecl{}

	// Classes first, functions and constants may refer to any of them.
	for _, file := range l.pkg.Syntax {
		for _, decl := range file.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				doc := ts.Doc
				if doc == nil && len(gd.Specs) == 1 {
					doc = gd.Doc
				}
				d, ok := find(directives(doc), "class")
				if !ok {
					continue
				}
				if err := l.addClass(ts, d); err != nil {
					return err
				}
			}
		}
	}

	for _, file := range l.pkg.Syntax {
		for _, decl := range file.Decls {
			switch decl := decl.(type) {
			case *ast.FuncDecl:
				fn, ok := l.pkg.TypesInfo.Defs[decl.Name].(*types.Func)
				if !ok {
					continue
				}
				l.decls[fn] = decl
			case *ast.GenDecl:
				if decl.Tok != token.CONST {
					continue
				}
				if err := l.addConstants(decl); err != nil {
					return err
				}
			}
		}
	}

	for _, obj := range l.order {
		if err := l.addMethods(obj); err != nil {
			return err
		}
	}

	for _, file := range l.pkg.Syntax {
		for _, decl := range file.Decls {
			fd, ok := decl.(*ast.FuncDecl)
			if !ok || fd.Recv != nil {
				continue
			}
			if err := l.addFunction(fd); err != nil {
				return err
			}
		}
	}

	return nil
}

func (l *loader) addClass(ts *ast.TypeSpec, d directive) error {
	obj, ok := l.pkg.TypesInfo.Defs[ts.Name].(*types.TypeName)
	if !ok {
		return fmt.Errorf("could not resolve type %s", ts.Name.Name)
	}
	if ts.TypeParams != nil {
		return fmt.Errorf("class %s: generic types cannot be exposed", ts.Name.Name)
	}
	if _, ok := obj.Type().Underlying().(*types.Interface); ok {
		return fmt.Errorf("class %s: interfaces cannot be exposed", ts.Name.Name)
	}

	name := obj.Name()
	copyable := true
	for _, arg := range d.args {
		if arg == "nocopy" {
			copyable = false
			continue
		}
		name = arg
	}
	if _, ok := obj.Type().Underlying().(*types.Struct); !ok {
		copyable = false
	}

	goName := exportedName(obj.Name())
	l.classes[obj] = &TemplateClass{
		Name:     name,
		GoType:   obj.Name(),
		GoName:   goName,
		VarName:  unexportedName(goName),
		Copyable: copyable,
	}
	l.order = append(l.order, obj)
	l.logger.Debug("found class", "class", name, "type", obj.Name())
	return nil
}

func (l *loader) classByName(name string) (*TemplateClass, error) {
	for _, obj := range l.order {
		if l.classes[obj].Name == name || obj.Name() == name {
			return l.classes[obj], nil
		}
	}
	return nil, fmt.Errorf("unknown class %s", name)
}

func (l *loader) addConstants(gd *ast.GenDecl) error {
	for _, spec := range gd.Specs {
		vs := spec.(*ast.ValueSpec)
		doc := vs.Doc
		if doc == nil && len(gd.Specs) == 1 {
			doc = gd.Doc
		}
		d, ok := find(directives(doc), "constant")
		if !ok {
			continue
		}
		if len(d.args) != 2 {
			return fmt.Errorf("constant %s: expected //dispatch:constant Class NAME", vs.Names[0].Name)
		}
		class, err := l.classByName(d.args[0])
		if err != nil {
			return fmt.Errorf("constant %s: %w", vs.Names[0].Name, err)
		}
		obj, ok := l.pkg.TypesInfo.Defs[vs.Names[0]].(*types.Const)
		if !ok {
			return fmt.Errorf("could not resolve constant %s", vs.Names[0].Name)
		}
		value, err := constantValue(obj.Val())
		if err != nil {
			return fmt.Errorf("constant %s: %w", obj.Name(), err)
		}
		class.Constants = append(class.Constants, TemplateConstant{Name: d.args[1], Value: value})
	}
	return nil
}

func constantValue(v constant.Value) (string, error) {
	switch v.Kind() {
	case constant.Bool:
		return fmt.Sprintf("dispatch.Bool(%t)", constant.BoolVal(v)), nil
	case constant.Int:
		return fmt.Sprintf("dispatch.Int(%s)", v.ExactString()), nil
	case constant.Float:
		f, _ := constant.Float64Val(v)
		return fmt.Sprintf("dispatch.Float(%s)", strconv.FormatFloat(f, 'g', -1, 64)), nil
	case constant.String:
		return fmt.Sprintf("dispatch.Str(%s)", v.ExactString()), nil
	}
	return "", fmt.Errorf("unsupported constant kind %s", v.Kind())
}

func (l *loader) addMethods(obj *types.TypeName) error {
	class := l.classes[obj]
	mset := types.NewMethodSet(types.NewPointer(obj.Type()))
	for i := 0; i < mset.Len(); i++ {
		sel := mset.At(i)
		// Promoted methods belong to the embedded type.
		if len(sel.Index()) > 1 {
			continue
		}
		fn := sel.Obj().(*types.Func)
		if !fn.Exported() {
			continue
		}

		var doc *ast.CommentGroup
		if decl, ok := l.decls[fn]; ok {
			doc = decl.Doc
		}
		m, err := l.method(class, fn, doc, instanceMethod)
		if err != nil {
			return err
		}
		if m != nil {
			class.Methods = append(class.Methods, *m)
		}
	}
	return nil
}

func (l *loader) addFunction(fd *ast.FuncDecl) error {
	dirs := directives(fd.Doc)
	kind := staticMethod
	d, ok := find(dirs, "static")
	if !ok {
		if d, ok = find(dirs, "constructor"); !ok {
			return nil
		}
		kind = constructorMethod
	}
	if len(d.args) != 1 {
		return fmt.Errorf("function %s: expected //dispatch:%s Class", fd.Name.Name, d.name)
	}
	class, err := l.classByName(d.args[0])
	if err != nil {
		return fmt.Errorf("function %s: %w", fd.Name.Name, err)
	}

	fn, ok := l.pkg.TypesInfo.Defs[fd.Name].(*types.Func)
	if !ok {
		return fmt.Errorf("could not resolve function %s", fd.Name.Name)
	}
	m, err := l.method(class, fn, fd.Doc, kind)
	if err != nil {
		return err
	}
	if m != nil {
		class.Methods = append(class.Methods, *m)
	}
	return nil
}

func (l *loader) method(class *TemplateClass, fn *types.Func, doc *ast.CommentGroup, kind methodKind) (*TemplateMethod, error) {
	dirs := directives(doc)
	if _, ok := find(dirs, "ignore"); ok {
		return nil, nil
	}

	qualified := class.Name + "." + fn.Name()
	sig := fn.Type().(*types.Signature)
	if d, ok := find(dirs, "signal"); ok {
		if kind != instanceMethod {
			return nil, fmt.Errorf("%s: only methods can be signals", qualified)
		}
		return l.signal(class, fn, dirs, d)
	}
	if sig.Variadic() {
		return nil, fmt.Errorf("%s: variadic functions cannot be exposed", qualified)
	}

	name := snakeCase(fn.Name())
	if kind == constructorMethod {
		name = "new"
	}
	defaults := map[string]string{}
	owned := false
	var modifiers []string

	for _, d := range dirs {
		switch d.name {
		case "name", "alias", "setter":
			if len(d.args) != 1 {
				return nil, fmt.Errorf("%s: expected //dispatch:%s name", qualified, d.name)
			}
			switch d.name {
			case "name":
				name = d.args[0]
			case "alias":
				modifiers = append(modifiers, fmt.Sprintf("Alias(%q)", d.args[0]))
			case "setter":
				modifiers = append(modifiers, fmt.Sprintf("Setter(%q)", d.args[0]))
			}
		case "predicate":
			modifiers = append(modifiers, "Predicate()")
		case "protected":
			modifiers = append(modifiers, "Protected()")
		case "callback":
			modifiers = append(modifiers, "Callback()")
		case "owned":
			owned = true
		case "default":
			for _, arg := range d.args {
				param, value, ok := strings.Cut(arg, "=")
				if !ok {
					return nil, fmt.Errorf("%s: expected //dispatch:default param=value, got %s", qualified, arg)
				}
				literal, err := defaultValue(value)
				if err != nil {
					return nil, fmt.Errorf("%s: default of %s: %w", qualified, param, err)
				}
				defaults[param] = literal
			}
		}
	}

	m := &TemplateMethod{Name: name}
	switch kind {
	case instanceMethod:
		m.Builder = fmt.Sprintf("dispatch.NewMethod(%q)", name)
		if _, ok := sig.Recv().Type().(*types.Pointer); !ok {
			modifiers = append([]string{"Const()"}, modifiers...)
		}
	case staticMethod:
		m.Builder = fmt.Sprintf("dispatch.NewMethod(%q)", name)
		modifiers = append([]string{"Static()"}, modifiers...)
	case constructorMethod:
		m.Builder = fmt.Sprintf("dispatch.NewConstructor(%q, %sBuilder.Class())", name, class.VarName)
	}
	if text := summary(doc); text != "" {
		modifiers = append(modifiers, fmt.Sprintf("Doc(%q)", text))
	}

	var callArgs []string
	params := sig.Params()
	index := 0
	for i := 0; i < params.Len(); i++ {
		p := params.At(i)
		if i == 0 && isContext(p.Type()) {
			callArgs = append(callArgs, "ctx")
			continue
		}
		tag, conv, err := l.paramType(p.Type())
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %s: %w", qualified, p.Name(), err)
		}
		paramName := p.Name()
		if paramName == "" || paramName == "_" {
			paramName = fmt.Sprintf("arg%d", index+1)
		}
		if def, ok := defaults[paramName]; ok {
			modifiers = append(modifiers, fmt.Sprintf("ParamDefault(%q, %s, %s)", paramName, tag, def))
			delete(defaults, paramName)
		} else {
			modifiers = append(modifiers, fmt.Sprintf("Param(%q, %s)", paramName, tag))
		}
		callArgs = append(callArgs, conv(fmt.Sprintf("args[%d]", index)))
		index++
	}
	if len(defaults) > 0 {
		unknown := make([]string, 0, len(defaults))
		for param := range defaults {
			unknown = append(unknown, param)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("%s: default for unknown parameter %s", qualified, strings.Join(unknown, ", "))
	}

	switch kind {
	case instanceMethod:
		m.Call = fmt.Sprintf("self.(*%s).%s(%s)", class.GoType, fn.Name(), strings.Join(callArgs, ", "))
	default:
		m.Call = fmt.Sprintf("%s(%s)", fn.Name(), strings.Join(callArgs, ", "))
	}

	results := sig.Results()
	var result types.Type
	switch results.Len() {
	case 0:
	case 1:
		if isError(results.At(0).Type()) {
			m.HasError = true
		} else {
			result = results.At(0).Type()
		}
	case 2:
		if !isError(results.At(1).Type()) {
			return nil, fmt.Errorf("%s: the second result must be an error", qualified)
		}
		m.HasError = true
		result = results.At(0).Type()
	default:
		return nil, fmt.Errorf("%s: too many results", qualified)
	}

	if result != nil {
		m.HasResult = true
		m.ResultExpr = "ret"
		if kind == constructorMethod {
			if !l.isClassPointer(result, class) {
				return nil, fmt.Errorf("%s: constructors must return *%s", qualified, class.GoType)
			}
		} else {
			tag, wrap, err := l.resultType(result, owned)
			if err != nil {
				return nil, fmt.Errorf("%s: result: %w", qualified, err)
			}
			modifiers = append(modifiers, fmt.Sprintf("Returns(%s)", tag))
			m.ResultExpr = wrap("ret")
		}
	} else if kind == constructorMethod {
		return nil, fmt.Errorf("%s: constructors must return *%s", qualified, class.GoType)
	}

	m.Modifiers = modifiers
	l.logger.Debug("found method", "class", class.Name, "method", name, "go", fn.Name())
	return m, nil
}

var signalParamTypes = map[string]string{
	"int":    "dispatch.IntType",
	"float":  "dispatch.FloatType",
	"string": "dispatch.StringType",
	"bool":   "dispatch.BoolType",
	"any":    "dispatch.AnyType",
}

// signal declares fn as a signal. fn takes the emit function and returns the
// function that disconnects it, optionally with an error.
func (l *loader) signal(class *TemplateClass, fn *types.Func, dirs []directive, d directive) (*TemplateMethod, error) {
	qualified := class.Name + "." + fn.Name()
	sig := fn.Type().(*types.Signature)

	if sig.Params().Len() != 1 {
		return nil, fmt.Errorf("%s: signals take exactly one emit function", qualified)
	}
	if _, ok := sig.Params().At(0).Type().Underlying().(*types.Signature); !ok {
		return nil, fmt.Errorf("%s: signals take exactly one emit function", qualified)
	}

	results := sig.Results()
	withError := false
	switch {
	case results.Len() == 1:
	case results.Len() == 2 && isError(results.At(1).Type()):
		withError = true
	default:
		return nil, fmt.Errorf("%s: signals return their disconnect function", qualified)
	}
	if _, ok := results.At(0).Type().Underlying().(*types.Signature); !ok {
		return nil, fmt.Errorf("%s: signals return their disconnect function", qualified)
	}

	name := snakeCase(fn.Name())
	if n, ok := find(dirs, "name"); ok && len(n.args) == 1 {
		name = n.args[0]
	}

	var modifiers []string
	for _, arg := range d.args {
		paramName, typeName, ok := strings.Cut(arg, ":")
		tag, known := signalParamTypes[typeName]
		if !ok || !known {
			return nil, fmt.Errorf("%s: expected signal parameters as name:type, got %s", qualified, arg)
		}
		modifiers = append(modifiers, fmt.Sprintf("Param(%q, %s)", paramName, tag))
	}

	connect := fmt.Sprintf("self.(*%s).%s(emit)", class.GoType, fn.Name())
	if !withError {
		connect += ", nil"
	}

	l.logger.Debug("found signal", "class", class.Name, "signal", name, "go", fn.Name())
	return &TemplateMethod{
		Name:      name,
		Builder:   fmt.Sprintf("dispatch.NewSignal(%q, func(ctx context.Context, self any, emit func(ctx context.Context, args []any) error) (func(), error) {\nreturn %s\n})", name, connect),
		Modifiers: modifiers,
		Signal:    true,
	}, nil
}

func defaultValue(s string) (string, error) {
	if s == "true" || s == "false" {
		return "dispatch.Bool(" + s + ")", nil
	}
	if _, err := strconv.ParseInt(s, 0, 64); err == nil {
		return "dispatch.Int(" + s + ")", nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return "dispatch.Float(" + s + ")", nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return "dispatch.Str(" + strconv.Quote(unquoted) + ")", nil
	}
	return "", fmt.Errorf("cannot parse %s, use a number, a boolean or a quoted string", s)
}

func isContext(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == "context" && obj.Name() == "Context"
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

func (l *loader) classOf(t types.Type) (*TemplateClass, bool) {
	ptr, ok := t.(*types.Pointer)
	if !ok {
		return nil, false
	}
	named, ok := ptr.Elem().(*types.Named)
	if !ok {
		return nil, false
	}
	class, ok := l.classes[named.Obj()]
	return class, ok
}

func (l *loader) isClassPointer(t types.Type, class *TemplateClass) bool {
	c, ok := l.classOf(t)
	return ok && c == class
}

// goType renders t as seen from inside the package. Named types of other
// packages would need imports in the generated file and are rejected.
func (l *loader) goType(t types.Type) (string, error) {
	var foreign bool
	s := types.TypeString(t, func(p *types.Package) string {
		if p != l.pkg.Types {
			foreign = true
		}
		return p.Name()
	})
	if foreign {
		return "", fmt.Errorf("type %s is declared in another package", s)
	}
	return s, nil
}

// paramType returns the type tag expression of a parameter and the
// conversion from its native argument.
func (l *loader) paramType(t types.Type) (string, func(string) string, error) {
	if class, ok := l.classOf(t); ok {
		return fmt.Sprintf("dispatch.ObjectOf(%sBuilder.Class())", class.VarName), func(arg string) string {
			return fmt.Sprintf("%s.(*%s)", arg, class.GoType)
		}, nil
	}

	switch u := t.Underlying().(type) {
	case *types.Basic:
		var tag, native string
		switch {
		case u.Info()&types.IsBoolean != 0:
			tag, native = "dispatch.BoolType", "bool"
		case u.Info()&types.IsInteger != 0:
			tag, native = "dispatch.IntType", "int64"
		case u.Info()&types.IsFloat != 0:
			tag, native = "dispatch.FloatType", "float64"
		case u.Info()&types.IsString != 0:
			tag, native = "dispatch.StringType", "string"
		default:
			return "", nil, fmt.Errorf("unsupported type %s", t)
		}
		goType, err := l.goType(t)
		if err != nil {
			return "", nil, err
		}
		if goType == native {
			return tag, func(arg string) string {
				return fmt.Sprintf("%s.(%s)", arg, native)
			}, nil
		}
		return tag, func(arg string) string {
			return fmt.Sprintf("%s(%s.(%s))", goType, arg, native)
		}, nil

	case *types.Slice:
		elemTag, elemConv, err := l.paramType(u.Elem())
		if err != nil {
			return "", nil, err
		}
		elemType, err := l.goType(u.Elem())
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("dispatch.SeqOf(%s)", elemTag), func(arg string) string {
			return fmt.Sprintf("sliceOf(%s, func(v any) %s { return %s })", arg, elemType, elemConv("v"))
		}, nil

	case *types.Interface:
		if u.Empty() {
			return "dispatch.AnyType", func(arg string) string { return arg }, nil
		}
	}

	return "", nil, fmt.Errorf("unsupported type %s", t)
}

// resultType returns the type tag expression of a result and the wrapping
// its native value needs.
func (l *loader) resultType(t types.Type, owned bool) (string, func(string) string, error) {
	same := func(ret string) string { return ret }

	if class, ok := l.classOf(t); ok {
		if owned {
			return fmt.Sprintf("dispatch.NewObjectOf(%sBuilder.Class())", class.VarName), same, nil
		}
		return fmt.Sprintf("dispatch.ObjectOf(%sBuilder.Class())", class.VarName), same, nil
	}

	if named, ok := t.(*types.Named); ok {
		obj := named.Obj()
		if obj.Pkg() != nil && obj.Pkg().Path() == "iter" && obj.Name() == "Seq" && named.TypeArgs().Len() == 1 {
			elemTag, _, err := l.resultType(named.TypeArgs().At(0), owned)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("dispatch.IteratorOf(%s)", elemTag), func(ret string) string {
				return fmt.Sprintf("anySeq(%s)", ret)
			}, nil
		}
	}

	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case u.Info()&types.IsBoolean != 0:
			return "dispatch.BoolType", same, nil
		case u.Info()&types.IsInteger != 0:
			return "dispatch.IntType", same, nil
		case u.Info()&types.IsFloat != 0:
			return "dispatch.FloatType", same, nil
		case u.Info()&types.IsString != 0:
			return "dispatch.StringType", same, nil
		}
	case *types.Slice:
		elemTag, _, err := l.resultType(u.Elem(), owned)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("dispatch.SeqOf(%s)", elemTag), same, nil
	case *types.Map:
		if basic, ok := u.Key().Underlying().(*types.Basic); !ok || basic.Info()&types.IsString == 0 {
			break
		}
		elemTag, _, err := l.resultType(u.Elem(), owned)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("dispatch.MapOf(%s)", elemTag), same, nil
	case *types.Interface:
		if u.Empty() {
			return "dispatch.AnyType", same, nil
		}
	}

	return "", nil, fmt.Errorf("unsupported type %s", t)
}

func exportedName(name string) string {
	if len(name) == 0 {
		return name
	}
	return string(unicode.ToUpper(rune(name[0]))) + name[1:]
}

func unexportedName(name string) string {
	if len(name) == 0 {
		return name
	}
	return string(unicode.ToLower(rune(name[0]))) + name[1:]
}

// snakeCase converts a Go identifier to the lower case underscore form used
// for dynamic names, keeping acronyms together: SetX is set_x, HTTPServer is
// http_server.
func snakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type TemplateData struct {
	Pkg     string
	PkgPath string
	Classes []TemplateClass
}

type TemplateClass struct {
	Name      string
	GoType    string
	GoName    string
	VarName   string
	Copyable  bool
	Constants []TemplateConstant
	Methods   []TemplateMethod
}

type TemplateConstant struct {
	Name  string
	Value string
}

type TemplateMethod struct {
	Name       string
	Builder    string
	Modifiers  []string
	Call       string
	HasResult  bool
	HasError   bool
	ResultExpr string
	Signal     bool
}
