package sqlgen

// The target schema is fixed: a node table and an edge table, both with
// JSON properties and a multi-tenant group_id. Property access on any
// name outside these sets routes through JSON extraction; the generator
// never consults the database.

const (
	nodesTable = "nodes"
	edgesTable = "edges"
)

var nodeColumns = map[string]bool{
	"uuid":       true,
	"type":       true,
	"group_id":   true,
	"name":       true,
	"summary":    true,
	"properties": true,
	"created_at": true,
	"valid_at":   true,
	"invalid_at": true,
}

var edgeColumns = map[string]bool{
	"uuid":          true,
	"source":        true,
	"target":        true,
	"relation_type": true,
	"group_id":      true,
	"properties":    true,
	"fact":          true,
	"episodes":      true,
	"created_at":    true,
	"valid_at":      true,
	"invalid_at":    true,
}

// aggregateFunctions trigger implicit GROUP BY when they appear in a
// projection item.
var aggregateFunctions = map[string]bool{
	"COUNT":   true,
	"SUM":     true,
	"AVG":     true,
	"MIN":     true,
	"MAX":     true,
	"COLLECT": true,
}

func knownColumn(r role, key string) bool {
	switch r {
	case roleNode:
		return nodeColumns[key]
	case roleEdge:
		return edgeColumns[key]
	}
	return false
}
