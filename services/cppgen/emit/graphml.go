// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package emit

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/AleutianAI/cppgen/services/cppgen/callgraph"
)

// GraphMLNamespace is the default namespace of GraphML documents.
const GraphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

// Data keys declared by every document GraphML writes.
const (
	KeyName  = "d0"
	KeyKind  = "d1"
	KeyOwner = "d2"
)

// GraphMLDocument is the root <graphml> element.
type GraphMLDocument struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []GraphMLKey `xml:"key"`
	Graph   GraphMLGraph `xml:"graph"`
}

// GraphMLKey declares one data attribute.
type GraphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

// GraphMLGraph holds nodes and edges in first-seen order.
type GraphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []GraphMLNode `xml:"node"`
	Edges       []GraphMLEdge `xml:"edge"`
}

// GraphMLNode is one function or external callee.
type GraphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []GraphMLData `xml:"data"`
}

// GraphMLEdge is one caller to callee pair.
type GraphMLEdge struct {
	ID     string `xml:"id,attr"`
	Source string `xml:"source,attr"`
	Target string `xml:"target,attr"`
}

// GraphMLData is a keyed value.
type GraphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// Datum returns the value stored under key, or "".
func (n GraphMLNode) Datum(key string) string {
	for _, d := range n.Data {
		if d.Key == key {
			return d.Value
		}
	}
	return ""
}

// GraphML renders g as a GraphML document.
//
// Description:
//
//	Nodes get ids n0, n1, ... in first-seen order and carry the qualified
//	name (d0), the kind "function" or "external" (d1), and the owning class
//	(d2) when there is one. Edges get ids e0, e1, ... in first-seen order.
//
// Outputs:
//
//	[]byte - Indented XML with header. Identical graphs give identical bytes.
//	error - Non-nil for a nil graph or an edge naming an unknown node.
func GraphML(g *callgraph.Graph) ([]byte, error) {
	if g == nil {
		return nil, errors.New("graph must not be nil")
	}

	doc := GraphMLDocument{
		XMLNS: GraphMLNamespace,
		Keys: []GraphMLKey{
			{ID: KeyName, For: "node", AttrName: "name", AttrType: "string"},
			{ID: KeyKind, For: "node", AttrName: "kind", AttrType: "string"},
			{ID: KeyOwner, For: "node", AttrName: "owner", AttrType: "string"},
		},
		Graph: GraphMLGraph{ID: "G", EdgeDefault: "directed"},
	}

	ids := make(map[string]string, g.NodeCount())
	for i, n := range g.Nodes() {
		id := fmt.Sprintf("n%d", i)
		ids[n.Name] = id
		node := GraphMLNode{ID: id, Data: []GraphMLData{
			{Key: KeyName, Value: n.Name},
			{Key: KeyKind, Value: n.Kind.String()},
		}}
		if n.Owner != "" {
			node.Data = append(node.Data, GraphMLData{Key: KeyOwner, Value: n.Owner})
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, node)
	}

	for i, e := range g.Edges() {
		src, ok := ids[e.Caller]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown caller %q", i, e.Caller)
		}
		dst, ok := ids[e.Callee]
		if !ok {
			return nil, fmt.Errorf("edge %d: unknown callee %q", i, e.Callee)
		}
		doc.Graph.Edges = append(doc.Graph.Edges, GraphMLEdge{
			ID: fmt.Sprintf("e%d", i), Source: src, Target: dst,
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding graphml: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
