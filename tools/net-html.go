package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Comcast/gadgets/sio"

	md "github.com/russross/blackfriday/v2"
)

// RenderNetHTML writes an HTML fragment describing the network: its
// doc, cells, wires, and subscriptions.  Doc strings are treated as
// Markdown.
func RenderNetHTML(ns *sio.NetSpec, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	if ns.Doc != "" {
		f(`<div class="netDoc doc">%s</div>`, md.Run([]byte(ns.Doc)))
	}

	{ // Cells
		f(`<div class="cells"><table>`)
		for _, c := range ns.Cells {
			f(`<tr class="cell"><td><span id="%s" class="cellName">%s</span></td><td>`, c.Name, c.Name)
			f(`<div>kind: <span class="cellKind">%s</span></div>`, c.Kind)
			if c.Doc != "" {
				f(`<div class="cellDoc doc">%s</div>`, md.Run([]byte(c.Doc)))
			}
			if c.Init != nil {
				f(`<div class="code"><pre>%s</pre></div>`, sio.JS(c.Init))
			}
			if c.Fuzzy != nil {
				f(`<div class="code"><pre>%s</pre></div>`, sio.JS(c.Fuzzy))
			}
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	if 0 < len(ns.Wires) {
		f(`<div class="wires"><table>`)
		for _, w := range ns.Wires {
			label := "values"
			if w.Effects {
				label = "effects"
			}
			f(`<tr class="wire"><td><a href="#%s"><code>%s</code></a></td><td>&rarr;</td><td><a href="#%s"><code>%s</code></a></td><td>%s</td></tr>`,
				w.From, w.From, w.To, w.To, label)
		}
		f(`</table></div>`)
	}

	if 0 < len(ns.Subs) {
		f(`<div class="subs"><table>`)
		for _, s := range ns.Subs {
			f(`<tr class="sub"><td><code>%s</code></td><td>&rarr;</td><td><a href="#%s"><code>%s</code></a></td></tr>`,
				s.Topic, s.Subscriber, s.Subscriber)
		}
		f(`</table></div>`)
	}

	return nil
}

// RenderNetPage writes a complete HTML page for the network.
func RenderNetPage(ns *sio.NetSpec, out io.Writer, cssFiles []string) error {

	if cssFiles == nil {
		cssFiles = []string{"/static/net-html.css"}
	}

	js, err := json.Marshal(ns)
	if err != nil {
		return err
	}

	title := ns.Name
	if title == "" {
		title = "a gadget network"
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
  <script>
  var thisNet = %s;
  </script>
`, title, js)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, title)

	if err = RenderNetHTML(ns, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderNetPage reads a network spec file (YAML or JSON) and
// renders its page.
func ReadAndRenderNetPage(filename string, cssFiles []string, out io.Writer) error {
	body, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	ns, err := sio.ResolveNetSpec(body)
	if err != nil {
		return err
	}
	return RenderNetPage(ns, out, cssFiles)
}
