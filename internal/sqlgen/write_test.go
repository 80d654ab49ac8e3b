package sqlgen

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ritamzico/cyphergres/internal/cypher"
)

func TestGenerate_CreateNode(t *testing.T) {
	sql, params := translate(t, "CREATE (n:Person {name: 'Ann', age: 30})", nil, "g1")
	require.Equal(t,
		"INSERT INTO nodes (uuid, type, group_id, name, properties) VALUES ($2, $3, $1, $4, jsonb_build_object('age', $5::numeric))",
		sql)
	require.Equal(t, "g1", params[0])
	_, err := uuid.Parse(params[1].(string))
	require.NoError(t, err)
	require.Equal(t, []any{"Person", "Ann", int64(30)}, params[2:])
	requireContiguousParams(t, sql, params)
}

func TestGenerate_CreateNodeWithSuppliedUUID(t *testing.T) {
	sql, params := translate(t, "CREATE (n:Person {uuid: $id})", map[string]any{"id": "u-1"}, "g1")
	require.Equal(t,
		"INSERT INTO nodes (uuid, type, group_id, properties) VALUES ($2, $3, $1, '{}'::jsonb)",
		sql)
	require.Equal(t, []any{"g1", "u-1", "Person"}, params)
}

func TestGenerate_CreateEdge(t *testing.T) {
	sql, params := translate(t,
		"MATCH (a:Person {name: 'Ann'}), (b:Person {name: 'Bo'}) CREATE (a)-[:KNOWS {since: 2020}]->(b)",
		nil, "g1")
	require.Equal(t,
		"INSERT INTO edges (uuid, source, target, relation_type, group_id, properties)"+
			" SELECT $6, n1.uuid, n2.uuid, $7, $1, jsonb_build_object('since', $8::numeric)"+
			" FROM nodes n1 CROSS JOIN nodes n2"+
			" WHERE n1.group_id = $1 AND n1.type = $2 AND n1.name = $3 AND n2.group_id = $1 AND n2.type = $4 AND n2.name = $5",
		sql)
	require.Equal(t, "KNOWS", params[6])
	requireContiguousParams(t, sql, params)
}

func TestGenerate_CreateEdgeIncoming(t *testing.T) {
	sql, _ := translate(t, "MATCH (a), (b) CREATE (a)<-[:KNOWS]-(b)", nil, "g1")
	require.Contains(t, sql, "SELECT $2, n2.uuid, n1.uuid, $3, $1")
}

func TestGenerate_CreateUnboundEndpoint(t *testing.T) {
	q, err := cypher.Parse("CREATE (a)-[:KNOWS]->(b)")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "Create", ge.Kind)
	require.Equal(t, "a", ge.Variable)
}

func TestGenerate_CreateMultipleNodesChains(t *testing.T) {
	sql, _ := translate(t, "CREATE (a:Person {name: 'Ann'}), (b:Person {name: 'Bo'})", nil, "g1")
	require.Contains(t, sql, "WITH cte_1 AS (INSERT INTO nodes")
	require.Contains(t, sql, ") INSERT INTO nodes")
}

func TestGenerate_MergeNode(t *testing.T) {
	sql, params := translate(t,
		"MERGE (n:Person {name: 'Ann'}) ON MATCH SET n.seen = true ON CREATE SET n.created = true",
		nil, "g1")
	require.Equal(t,
		"INSERT INTO nodes (uuid, type, group_id, name, properties)"+
			" VALUES ($2, $3, $1, $4, jsonb_build_object('created', $5::boolean))"+
			" ON CONFLICT (group_id, name) DO UPDATE SET"+
			" properties = jsonb_set(nodes.properties, '{seen}', to_jsonb($6::boolean))",
		sql)
	require.Equal(t, []any{"Person", "Ann", true, true}, params[2:])
	requireContiguousParams(t, sql, params)
}

func TestGenerate_MergeByUUID(t *testing.T) {
	sql, _ := translate(t, "MERGE (n:Person {uuid: $id})", map[string]any{"id": "u-1"}, "g1")
	require.Contains(t, sql, "ON CONFLICT (uuid) DO NOTHING")
}

func TestGenerate_MergeWithoutKey(t *testing.T) {
	q, err := cypher.Parse("MERGE (n:Person {age: 40})")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "Merge", ge.Kind)
}

func TestGenerate_DeleteNode(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person {name: 'Ann'}) DELETE n", nil, "g1")
	require.Equal(t,
		"DELETE FROM nodes WHERE uuid IN (SELECT n1.uuid FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2 AND n1.name = $3)",
		sql)
	require.Equal(t, []any{"g1", "Person", "Ann"}, params)
}

func TestGenerate_DetachDelete(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) DETACH DELETE n", nil, "g1")
	require.Equal(t,
		"WITH cte_1 AS (DELETE FROM edges WHERE"+
			" source IN (SELECT n1.uuid FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2)"+
			" OR target IN (SELECT n1.uuid FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2))"+
			" DELETE FROM nodes WHERE uuid IN (SELECT n1.uuid FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2)",
		sql)
}

func TestGenerate_DeleteEdgeVariable(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)-[r:KNOWS]->(b) DELETE r", nil, "g1")
	require.Contains(t, sql, "DELETE FROM edges WHERE uuid IN (SELECT e1.uuid FROM nodes n1 JOIN edges e1")
}

func TestGenerate_DeleteUnbound(t *testing.T) {
	q, err := cypher.Parse("MATCH (n) DELETE m")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "Delete", ge.Kind)
	require.Equal(t, "m", ge.Variable)
}

func TestGenerate_SetPropertiesAndColumns(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person) SET n.age = 30, n.name = 'Bo'", nil, "g1")
	require.Equal(t,
		"UPDATE nodes SET name = $4, properties = jsonb_set(nodes.properties, '{age}', to_jsonb($3::numeric))"+
			" WHERE uuid IN (SELECT n1.uuid FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2)",
		sql)
	require.Equal(t, []any{"g1", "Person", int64(30), "Bo"}, params)
}

func TestGenerate_SetWholeVariableMap(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) SET n = {name: 'Bo', age: 1}", nil, "g1")
	require.Contains(t, sql, "properties = jsonb_build_object('name', $3, 'age', $4::numeric)")
}

func TestGenerate_SetSelfReference(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) SET n.summary = n.name", nil, "g1")
	require.Contains(t, sql, "summary = nodes.name")
}

func TestGenerate_SetUnbound(t *testing.T) {
	q, err := cypher.Parse("MATCH (n) SET m.age = 1")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "Set", ge.Kind)
	require.Equal(t, "m", ge.Variable)
}

func TestGenerate_RemoveProperties(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) REMOVE n.age, n.nickname", nil, "g1")
	require.Equal(t,
		"UPDATE nodes SET properties = properties - 'age' - 'nickname'"+
			" WHERE uuid IN (SELECT n1.uuid FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2)",
		sql)
}

func TestGenerate_RemoveColumn(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) REMOVE n.summary", nil, "g1")
	require.Contains(t, sql, "SET summary = NULL")
}

func TestGenerate_WriteMustBeTerminal(t *testing.T) {
	q, err := cypher.Parse("MATCH (n) DELETE n RETURN n")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "Delete", ge.Kind)
}
