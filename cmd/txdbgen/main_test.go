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

package main

import (
	"go/ast"
	"go/token"
	"testing"
)

func TestSnakeLower(t *testing.T) {
	cases := map[string]string{
		"Airports":          "airports",
		"BookReservations":  "book_reservations",
		"ID":                "i_d",
		"addAirportDefault": "add_airport_default",
	}
	for in, want := range cases {
		if got := snakeLower(in); got != want {
			t.Errorf("snakeLower(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLowerFirst(t *testing.T) {
	if got := lowerFirst("AddAirport"); got != "addAirport" {
		t.Errorf("lowerFirst = %q", got)
	}
	if got := lowerFirst(""); got != "" {
		t.Errorf("lowerFirst(\"\") = %q, want empty", got)
	}
}

func TestTagValueOrFallsBackWithoutTag(t *testing.T) {
	f := &ast.Field{Names: []*ast.Ident{ast.NewIdent("Airports")}}
	tag := fieldTag(f)
	if got := tagValueOr(tag, "table", "fallback"); got != "fallback" {
		t.Errorf("tagValueOr = %q, want fallback", got)
	}
}

func TestTagValueOrReadsNamedKey(t *testing.T) {
	f := &ast.Field{
		Names: []*ast.Ident{ast.NewIdent("Airports")},
		Tag:   &ast.BasicLit{Kind: token.STRING, Value: "`txdb:\"table=airports,codec=airportCodec{}\"`"},
	}
	tag := fieldTag(f)
	if got := tagValueOr(tag, "table", "fallback"); got != "airports" {
		t.Errorf("table tag = %q, want airports", got)
	}
	if got := tagValueOr(tag, "codec", "fallback"); got != "airportCodec{}" {
		t.Errorf("codec tag = %q, want airportCodec{}", got)
	}
	if got := tagValueOr(tag, "handler", "fallback"); got != "fallback" {
		t.Errorf("missing key should fall back, got %q", got)
	}
}

func TestHasDirectiveMatchesOnlyNamedDirective(t *testing.T) {
	doc := &ast.CommentGroup{List: []*ast.Comment{{Text: "// txdb:database"}}}
	if !hasDirective(doc, "txdb:database") {
		t.Fatal("expected directive match")
	}
	if hasDirective(doc, "txdb:directory") {
		t.Fatal("did not expect a different directive to match")
	}
	if hasDirective(nil, "txdb:database") {
		t.Fatal("nil doc must not match")
	}
}

func TestDeclDocPrefersTypeSpecDoc(t *testing.T) {
	genDoc := &ast.CommentGroup{List: []*ast.Comment{{Text: "// txdb:directory"}}}
	tsDoc := &ast.CommentGroup{List: []*ast.Comment{{Text: "// txdb:database"}}}
	gd := &ast.GenDecl{Doc: genDoc}
	ts := &ast.TypeSpec{Doc: tsDoc, Name: ast.NewIdent("DB")}
	if got := declDoc(gd, ts); got != tsDoc {
		t.Fatal("expected TypeSpec.Doc to take priority")
	}

	ts2 := &ast.TypeSpec{Name: ast.NewIdent("DB")}
	if got := declDoc(gd, ts2); got != genDoc {
		t.Fatal("expected GenDecl.Doc fallback when TypeSpec has no doc")
	}
}
