package devserver

import (
	"bytes"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReloadScriptPath is where the live-reload client is served.
const ReloadScriptPath = "/__assetweaver/reload.js"

const reloadTag = `<script src="` + ReloadScriptPath + `"></script>`

// InjectReloadScript inserts the reload client just before the closing body
// tag. The rest of the document is copied byte for byte. A document without
// a body tag gets the script appended at the end.
func InjectReloadScript(doc []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(doc) + len(reloadTag))

	injected := false
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF, or the tokenizer gave up; keep whatever is left.
			if z.Err() != io.EOF {
				out.Write(z.Raw())
			}
			break
		}
		if !injected && tt == html.EndTagToken {
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				out.WriteString(reloadTag)
				injected = true
			}
		}
		out.Write(z.Raw())
	}
	if !injected {
		out.WriteString(reloadTag)
	}
	return out.Bytes()
}
