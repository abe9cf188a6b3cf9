// Package statement builds the Cypher commands a session owes the remote
// store at commit. Factories are pure: they look at an element's committed
// and current holders and return the command for the action its current sync
// state calls for, or nothing when the difference is not visible remotely.
//
// Vertex commands:
//
//	CREATE (n:`Person` $props) RETURN id(n)
//	MATCH (n) WHERE id(n) = $id SET n = $props SET n:`Admin` REMOVE n:`Guest`
//	MATCH (n) WHERE id(n) = $id DETACH DELETE n
//
// Edge commands:
//
//	MATCH (a), (b) WHERE id(a) = $out AND id(b) = $in CREATE (a)-[r:`KNOWS` $props]->(b) RETURN id(r)
//	MATCH ()-[r]->() WHERE id(r) = $id SET r = $props
//	MATCH ()-[r]->() WHERE id(r) = $id DELETE r
package statement

import (
	"slices"
	"strings"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/scope"
)

// Parameter names used by every command.
const (
	ParamID     = "id"
	ParamProps  = "props"
	ParamLabels = "labels"
	ParamOut    = "out"
	ParamIn     = "in"
)

// Vertices returns the statement factory for vertices.
func Vertices() scope.StatementFactory[*element.Vertex] {
	return scope.StatementFunc[*element.Vertex](vertexStatement)
}

// Edges returns the statement factory for edges.
func Edges() scope.StatementFactory[*element.Edge] {
	return scope.StatementFunc[*element.Edge](edgeStatement)
}

func vertexStatement(id element.ID, committed, current *element.StateHolder[*element.Vertex]) (*scope.Command, bool) {
	v := current.Value()
	switch action := current.State().Action(); action {
	case element.ActionInsert:
		var b strings.Builder
		b.WriteString("CREATE (n")
		for _, l := range v.Labels() {
			b.WriteByte(':')
			b.WriteString(Quote(l))
		}
		b.WriteString(" $props) RETURN id(n)")
		return &scope.Command{
			Action: action,
			Text:   b.String(),
			Params: map[string]any{ParamProps: v.Properties().Clone(), ParamLabels: slices.Clone(v.Labels())},
		}, true

	case element.ActionUpdate:
		old := committed.Value()
		if old.SameContent(v) {
			// adjacency changes are carried by edge commands
			return nil, false
		}
		var b strings.Builder
		b.WriteString("MATCH (n) WHERE id(n) = $id SET n = $props")
		for _, l := range v.Labels() {
			if !old.HasLabel(l) {
				b.WriteString(" SET n:")
				b.WriteString(Quote(l))
			}
		}
		for _, l := range old.Labels() {
			if !v.HasLabel(l) {
				b.WriteString(" REMOVE n:")
				b.WriteString(Quote(l))
			}
		}
		return &scope.Command{
			Action: action,
			Text:   b.String(),
			Params: map[string]any{
				ParamID:     id.Value(),
				ParamProps:  v.Properties().Clone(),
				ParamLabels: slices.Clone(v.Labels()),
			},
		}, true

	case element.ActionDelete:
		return &scope.Command{
			Action: action,
			Text:   "MATCH (n) WHERE id(n) = $id DETACH DELETE n",
			Params: map[string]any{ParamID: id.Value()},
		}, true
	}
	return nil, false
}

func edgeStatement(id element.ID, committed, current *element.StateHolder[*element.Edge]) (*scope.Command, bool) {
	e := current.Value()
	switch action := current.State().Action(); action {
	case element.ActionInsert:
		return &scope.Command{
			Action: action,
			Text: "MATCH (a), (b) WHERE id(a) = $out AND id(b) = $in CREATE (a)-[r:" +
				Quote(e.Label()) + " $props]->(b) RETURN id(r)",
			Params: map[string]any{
				ParamOut:   e.Out().Value(),
				ParamIn:    e.In().Value(),
				ParamProps: e.Properties().Clone(),
			},
		}, true

	case element.ActionUpdate:
		if committed.Value().Properties().Equal(e.Properties()) {
			return nil, false
		}
		return &scope.Command{
			Action: action,
			Text:   "MATCH ()-[r]->() WHERE id(r) = $id SET r = $props",
			Params: map[string]any{ParamID: id.Value(), ParamProps: e.Properties().Clone()},
		}, true

	case element.ActionDelete:
		return &scope.Command{
			Action: action,
			Text:   "MATCH ()-[r]->() WHERE id(r) = $id DELETE r",
			Params: map[string]any{ParamID: id.Value()},
		}, true
	}
	return nil, false
}

// Quote returns name as a backtick-quoted Cypher identifier.
func Quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
