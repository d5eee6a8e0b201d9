/*
Copyright (C) 2026  txdb contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// txdbgen reads a struct-tagged database or command-directory
// declaration and emits the boilerplate spec.md §6 assigns to "the
// engine": a table factory for a `// txdb:database` struct, and a
// name-keyed descriptor registry for a `// txdb:directory` struct. It
// generalizes tools/jitgen's approach — load a package with full type
// information via golang.org/x/tools/go/packages, walk its AST, emit
// source — to a much narrower job: this tool never touches SSA or
// emits closures, it only reads struct tags and prints a factory
// function.
//
// Usage:
//
//	go run ./cmd/txdbgen -out=schema_gen.go <package-dir>
package main

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/types"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	var outName string
	var dir string
	for _, arg := range os.Args[1:] {
		if strings.HasPrefix(arg, "-out=") {
			outName = arg[len("-out="):]
		} else {
			dir = arg
		}
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "usage: txdbgen [-out=file.go] <package-dir>")
		os.Exit(1)
	}
	if outName == "" {
		outName = "txdb_gen.go"
	}

	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "txdbgen: load %s: %v\n", dir, err)
		os.Exit(1)
	}
	if len(pkgs) == 0 {
		fmt.Fprintf(os.Stderr, "txdbgen: no package found at %s\n", dir)
		os.Exit(1)
	}
	pkg := pkgs[0]
	for _, e := range pkg.Errors {
		fmt.Fprintf(os.Stderr, "txdbgen: %v\n", e)
	}
	if len(pkg.Errors) > 0 {
		os.Exit(1)
	}

	decls := collectDeclarations(pkg)
	if len(decls.databases) == 0 && len(decls.directories) == 0 {
		fmt.Fprintln(os.Stderr, "txdbgen: no `// txdb:database` or `// txdb:directory` struct found")
		os.Exit(1)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by txdbgen from %s. DO NOT EDIT.\n\n", dir)
	fmt.Fprintf(&buf, "package %s\n\n", pkg.Name)

	needsTxn, needsCommand := false, false
	for _, d := range decls.databases {
		needsTxn = true
		_ = d
	}
	for _, d := range decls.directories {
		needsCommand = true
		_ = d
	}
	if needsTxn || needsCommand {
		buf.WriteString("import (\n")
		if needsTxn {
			buf.WriteString("\t\"github.com/launix-de/txdb/database\"\n")
			buf.WriteString("\t\"github.com/launix-de/txdb/table\"\n")
			buf.WriteString("\t\"github.com/launix-de/txdb/txn\"\n")
		}
		if needsCommand {
			buf.WriteString("\t\"github.com/launix-de/txdb/command\"\n")
		}
		buf.WriteString(")\n\n")
	}

	for _, d := range decls.databases {
		writeDatabaseFactory(&buf, d)
	}
	for _, d := range decls.directories {
		writeDirectoryFactory(&buf, d)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		// Emit the unformatted source so the error is at least
		// inspectable; txdbgen never runs the compiler itself.
		fmt.Fprintf(os.Stderr, "txdbgen: gofmt: %v\n", err)
		formatted = buf.Bytes()
	}

	outPath := filepath.Join(dir, outName)
	if err := os.WriteFile(outPath, formatted, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "txdbgen: write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("txdbgen: wrote %s (%d table field(s), %d command field(s))\n",
		outPath, countFields(decls.databases), countFields(decls.directories))
}

// tableField is one *table.Table[T] field of a `// txdb:database` struct.
type tableField struct {
	fieldName string
	rowType   string // T, as printed source text
	tableName string // tag: table=<name>, defaults to snake_case(fieldName)
	codec     string // tag: codec=<expr>, defaults to lowerFirst(fieldName)+"Codec{}"
}

// databaseDecl is one struct carrying `// txdb:database`.
type databaseDecl struct {
	structName string
	fields     []tableField
}

// commandField is one *command.Descriptor[D, P] field of a
// `// txdb:directory` struct.
type commandField struct {
	fieldName   string
	dbType      string // D, as printed source text
	paramsType  string // P, as printed source text
	commandName string // tag: command=<name>, defaults to snake_case(fieldName)
	codec       string // tag: codec=<expr>, defaults to lowerFirst(fieldName)+"Codec{}"
	handler     string // tag: handler=<func name>, defaults to lowerFirst(fieldName)+"Handler"
}

// directoryDecl is one struct carrying `// txdb:directory`.
type directoryDecl struct {
	structName string
	fields     []commandField
}

type declarations struct {
	databases   []databaseDecl
	directories []directoryDecl
}

func countFields(v interface{}) int {
	switch d := v.(type) {
	case []databaseDecl:
		n := 0
		for _, x := range d {
			n += len(x.fields)
		}
		return n
	case []directoryDecl:
		n := 0
		for _, x := range d {
			n += len(x.fields)
		}
		return n
	}
	return 0
}

func collectDeclarations(pkg *packages.Package) declarations {
	var out declarations
	for _, file := range pkg.Syntax {
		for _, d := range file.Decls {
			gd, ok := d.(*ast.GenDecl)
			if !ok {
				continue
			}
			for _, spec := range gd.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					continue
				}
				doc := declDoc(gd, ts)
				switch {
				case hasDirective(doc, "txdb:database"):
					out.databases = append(out.databases, parseDatabaseDecl(pkg, ts.Name.Name, st))
				case hasDirective(doc, "txdb:directory"):
					out.directories = append(out.directories, parseDirectoryDecl(pkg, ts.Name.Name, st))
				}
			}
		}
	}
	return out
}

func declDoc(gd *ast.GenDecl, ts *ast.TypeSpec) *ast.CommentGroup {
	if ts.Doc != nil {
		return ts.Doc
	}
	return gd.Doc
}

func hasDirective(doc *ast.CommentGroup, directive string) bool {
	if doc == nil {
		return false
	}
	for _, c := range doc.List {
		if strings.Contains(c.Text, directive) {
			return true
		}
	}
	return false
}

func parseDatabaseDecl(pkg *packages.Package, name string, st *ast.StructType) databaseDecl {
	d := databaseDecl{structName: name}
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 {
			continue // embedded *database.Database
		}
		rowType, ok := genericElemType(pkg, f.Type, "Table")
		if !ok {
			continue
		}
		tag := fieldTag(f)
		fieldName := f.Names[0].Name
		d.fields = append(d.fields, tableField{
			fieldName: fieldName,
			rowType:   rowType,
			tableName: tagValueOr(tag, "table", snakeLower(fieldName)),
			codec:     tagValueOr(tag, "codec", lowerFirst(fieldName)+"Codec{}"),
		})
	}
	return d
}

func parseDirectoryDecl(pkg *packages.Package, name string, st *ast.StructType) directoryDecl {
	d := directoryDecl{structName: name}
	for _, f := range st.Fields.List {
		if len(f.Names) == 0 {
			continue
		}
		dType, pType, ok := genericPairTypes(pkg, f.Type, "Descriptor")
		if !ok {
			continue
		}
		tag := fieldTag(f)
		fieldName := f.Names[0].Name
		d.fields = append(d.fields, commandField{
			fieldName:   fieldName,
			dbType:      dType,
			paramsType:  pType,
			commandName: tagValueOr(tag, "command", snakeLower(fieldName)),
			codec:       tagValueOr(tag, "codec", lowerFirst(fieldName)+"Codec{}"),
			handler:     tagValueOr(tag, "handler", lowerFirst(fieldName)+"Handler"),
		})
	}
	return d
}

func fieldTag(f *ast.Field) reflect.StructTag {
	if f.Tag == nil {
		return ""
	}
	// f.Tag.Value includes the surrounding backticks.
	raw := strings.Trim(f.Tag.Value, "`")
	return reflect.StructTag(raw)
}

func tagValueOr(tag reflect.StructTag, key, fallback string) string {
	v, ok := tag.Lookup("txdb")
	if !ok {
		return fallback
	}
	for _, part := range strings.Split(v, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 && kv[0] == key {
			return kv[1]
		}
	}
	return fallback
}

// genericElemType reports the single type argument of a
// *pkg.Generic[T]-shaped field type (e.g. *table.Table[Airport] ->
// "Airport"), requiring the generic's unqualified name to equal want
// ("Table").
func genericElemType(pkg *packages.Package, expr ast.Expr, want string) (string, bool) {
	star, ok := expr.(*ast.StarExpr)
	if !ok {
		return "", false
	}
	idx, ok := star.X.(*ast.IndexExpr)
	if !ok {
		return "", false
	}
	if !selectorNameIs(idx.X, want) {
		return "", false
	}
	return exprString(pkg, idx.Index), true
}

// genericPairTypes reports the two type arguments of a
// *pkg.Generic[D, P]-shaped field type.
func genericPairTypes(pkg *packages.Package, expr ast.Expr, want string) (string, string, bool) {
	star, ok := expr.(*ast.StarExpr)
	if !ok {
		return "", "", false
	}
	idx, ok := star.X.(*ast.IndexListExpr)
	if !ok || len(idx.Indices) != 2 {
		return "", "", false
	}
	if !selectorNameIs(idx.X, want) {
		return "", "", false
	}
	return exprString(pkg, idx.Indices[0]), exprString(pkg, idx.Indices[1]), true
}

func selectorNameIs(expr ast.Expr, want string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	return sel.Sel.Name == want
}

func exprString(pkg *packages.Package, expr ast.Expr) string {
	if tv, ok := pkg.TypesInfo.Types[expr]; ok && tv.Type != nil {
		return types.TypeString(tv.Type, types.RelativeTo(pkg.Types))
	}
	// Fallback: best-effort textual reconstruction for simple cases
	// (identifiers and star expressions) when type info is absent.
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return "*" + exprString(pkg, e.X)
	case *ast.SelectorExpr:
		return exprString(pkg, e.X) + "." + e.Sel.Name
	default:
		return fmt.Sprintf("%T", expr)
	}
}

func writeDatabaseFactory(buf *bytes.Buffer, d databaseDecl) {
	sort.Slice(d.fields, func(i, j int) bool { return d.fields[i].fieldName < d.fields[j].fieldName })

	fmt.Fprintf(buf, "// New%s constructs a %s wired to mgr, one table per\n", d.structName, d.structName)
	fmt.Fprintf(buf, "// *table.Table field, in field-name order.\n")
	fmt.Fprintf(buf, "func New%s(mgr *txn.Manager) *%s {\n", d.structName, d.structName)
	buf.WriteString("\tbase := database.New()\n")
	fmt.Fprintf(buf, "\tdb := &%s{\n", d.structName)
	buf.WriteString("\t\tDatabase: base,\n")
	for _, f := range d.fields {
		fmt.Fprintf(buf, "\t\t%s: table.New[%s](%q, mgr, %s),\n", f.fieldName, f.rowType, f.tableName, f.codec)
	}
	buf.WriteString("\t}\n")
	for _, f := range d.fields {
		fmt.Fprintf(buf, "\tbase.Register(db.%s)\n", f.fieldName)
	}
	buf.WriteString("\treturn db\n")
	buf.WriteString("}\n\n")
}

func writeDirectoryFactory(buf *bytes.Buffer, d directoryDecl) {
	sort.Slice(d.fields, func(i, j int) bool { return d.fields[i].fieldName < d.fields[j].fieldName })

	dbType := "any"
	if len(d.fields) > 0 {
		dbType = d.fields[0].dbType
	}

	fmt.Fprintf(buf, "// New%s returns the command directory for %s, one\n", d.structName, dbType)
	fmt.Fprintf(buf, "// descriptor per *command.Descriptor field of %s.\n", d.structName)
	fmt.Fprintf(buf, "func New%s() *command.Directory[%s] {\n", d.structName, dbType)
	fmt.Fprintf(buf, "\tdir := command.NewDirectory[%s]()\n", dbType)
	for _, f := range d.fields {
		fmt.Fprintf(buf, "\tcommand.Register(dir, command.NewDescriptor[%s](%q, %s, %s))\n",
			dbType, f.commandName, f.codec, f.handler)
	}
	buf.WriteString("\treturn dir\n")
	buf.WriteString("}\n\n")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// snakeLower turns "BookReservations" into "book_reservations" for a
// default table/command name derived from a field name.
func snakeLower(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
