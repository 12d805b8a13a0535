package tools

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/gadgets/sio"

	"gopkg.in/yaml.v2"
)

// Dot makes a Graphviz dot file for the given network spec.
//
// Cells are nodes colored by kind, wires are solid edges (dashed
// when they forward whole effects), and pubsub topics are diamond
// pseudo-nodes.
func Dot(ns *sio.NetSpec, w io.Writer) error {
	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	for _, c := range ns.Cells {
		label := c.Name + "<BR/><FONT POINT-SIZE='8'>" + c.Kind + "</FONT>"
		if c.Doc != "" {
			doc := c.Doc
			if 40 < len(doc) {
				period := strings.Index(doc, ". ")
				if 0 < period {
					doc = doc[0 : period+1]
				}
			}
			label += "<BR/><FONT POINT-SIZE='8'>" + doc + "</FONT>"
		}
		if c.Init != nil {
			if ys, err := yaml.Marshal(c.Init); err == nil {
				init := strings.TrimSpace(string(ys))
				if 40 < len(init) {
					init = init[0:40] + "..."
				}
				init = strings.ReplaceAll(init, "\n", "<BR/>")
				label += "<BR/><FONT POINT-SIZE='8'>" + init + "</FONT>"
			}
		}

		fillcolor := kindColor(c.Kind)
		fmt.Fprintf(w, "  \"%s\" [label=<%s>,fillcolor=\"%s\"];\n",
			c.Name, label, fillcolor)
	}

	for _, wire := range ns.Wires {
		style := "solid"
		if wire.Effects {
			style = "dashed"
		}
		fmt.Fprintf(w, "  \"%s\" -> \"%s\" [style=\"%s\"];\n",
			wire.From, wire.To, style)
	}

	topics := make(map[string]bool)
	for _, s := range ns.Subs {
		if !topics[s.Topic] {
			topics[s.Topic] = true
			fmt.Fprintf(w, "  \"topic:%s\" [label=\"%s\",shape=\"diamond\",fillcolor=\"#eeeebb\"];\n",
				s.Topic, s.Topic)
		}
		fmt.Fprintf(w, "  \"topic:%s\" -> \"%s\" [style=\"dotted\"];\n",
			s.Topic, s.Subscriber)
	}

	fmt.Fprintf(w, "}\n")

	return nil
}

func kindColor(kind string) string {
	switch kind {
	case "max", "min":
		return "#2d93ad"
	case "union", "intersection":
		return "#52aa5e"
	case "first-map", "last-map", "union-map":
		return "#99ddc8"
	case "fuzzy":
		return "#ddaa99"
	}
	return "#cccccc"
}
