// Package transform implements the units of the style and script chains:
// Sass compilation, autoprefixing, minification, concatenation and renaming.
//
// The heavy lifting is delegated: Dart Sass (through godartsass) compiles
// stylesheets, esbuild adds vendor prefixes and minifies JavaScript, and
// tdewolff/minify minifies CSS. Units here only adapt those engines to
// core.Unit.
package transform
