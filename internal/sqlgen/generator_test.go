package sqlgen

import (
	"fmt"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ritamzico/cyphergres/internal/cypher"
)

func translate(t *testing.T, query string, params map[string]any, groupID string) (string, []any) {
	t.Helper()
	q, err := cypher.Parse(query)
	require.NoError(t, err, "parse %q", query)
	sql, args, err := Generate(q, params, groupID)
	require.NoError(t, err, "generate %q", query)
	return sql, args
}

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// requireContiguousParams checks that the placeholders are exactly
// $1..$N with no gaps and that the parameter list has N entries.
func requireContiguousParams(t *testing.T, sql string, params []any) {
	t.Helper()
	seen := map[int]bool{}
	max := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		n, err := strconv.Atoi(m[1])
		require.NoError(t, err)
		seen[n] = true
		if n > max {
			max = n
		}
	}
	for i := 1; i <= max; i++ {
		require.True(t, seen[i], "placeholder $%d missing from %q", i, sql)
	}
	require.Len(t, params, max)
}

func TestGenerate_PropertyFilter(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person) WHERE n.age > 25 RETURN n.name", nil, "g1")
	require.Equal(t,
		"SELECT n1.name FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2 AND ((n1.properties->>'age')::numeric > $3)",
		sql)
	require.Equal(t, []any{"g1", "Person", int64(25)}, params)
	requireContiguousParams(t, sql, params)
}

func TestGenerate_JSONPropertyProjection(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person) RETURN n.nickname", nil, "g1")
	require.Equal(t,
		"SELECT (n1.properties->>'nickname') FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2",
		sql)
	require.Equal(t, []any{"g1", "Person"}, params)
}

func TestGenerate_SingleHop(t *testing.T) {
	sql, params := translate(t, "MATCH (a:Person)-[r:KNOWS]->(b:Person) RETURN a.name, b.name", nil, "g1")
	require.Equal(t,
		"SELECT n1.name, n2.name FROM nodes n1 JOIN edges e1 ON e1.source = n1.uuid JOIN nodes n2 ON e1.target = n2.uuid"+
			" WHERE n1.group_id = $1 AND n1.type = $2 AND e1.group_id = $1 AND e1.relation_type = $3 AND n2.group_id = $1 AND n2.type = $4",
		sql)
	require.Equal(t, []any{"g1", "Person", "KNOWS", "Person"}, params)
	requireContiguousParams(t, sql, params)
}

func TestGenerate_IncomingHop(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)<-[:KNOWS]-(b) RETURN a, b", nil, "g1")
	require.Contains(t, sql, "JOIN edges e1 ON e1.target = n1.uuid")
	require.Contains(t, sql, "JOIN nodes n2 ON e1.source = n2.uuid")
}

func TestGenerate_UndirectedHop(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)-[:KNOWS]-(b) RETURN a, b", nil, "g1")
	require.Contains(t, sql, "ON (e1.source = n1.uuid OR e1.target = n1.uuid)")
	require.Contains(t, sql,
		"((e1.source = n1.uuid AND e1.target = n2.uuid) OR (e1.target = n1.uuid AND e1.source = n2.uuid))")
}

func TestGenerate_VariableLengthPath(t *testing.T) {
	sql, params := translate(t, "MATCH (a)-[:KNOWS*1..3]->(b) RETURN a, b", nil, "g1")
	require.Equal(t,
		"WITH RECURSIVE cte_1 AS ("+
			"SELECT edges.source AS source, edges.target AS target, 1 AS depth, ARRAY[edges.uuid] AS visited"+
			" FROM edges WHERE edges.group_id = $1 AND edges.relation_type = $2"+
			" UNION ALL "+
			"SELECT cte_1.source, edges.target, cte_1.depth + 1, cte_1.visited || edges.uuid"+
			" FROM cte_1 JOIN edges ON cte_1.target = edges.source"+
			" WHERE edges.group_id = $1 AND edges.relation_type = $2 AND NOT edges.uuid = ANY(cte_1.visited) AND cte_1.depth < 3"+
			") "+
			"SELECT n1.*, n2.* FROM nodes n1 JOIN cte_1 ON cte_1.source = n1.uuid JOIN nodes n2 ON cte_1.target = n2.uuid"+
			" WHERE n1.group_id = $1 AND cte_1.depth BETWEEN 1 AND 3 AND n2.group_id = $1",
		sql)
	require.Equal(t, []any{"g1", "KNOWS"}, params)
	requireContiguousParams(t, sql, params)
}

func TestGenerate_VariableLengthUnbounded(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)-[:KNOWS*2..]->(b) RETURN a", nil, "g1")
	require.Contains(t, sql, "cte_1.depth >= 2")
	require.NotContains(t, sql, "depth <")
	require.Contains(t, sql, "NOT edges.uuid = ANY(cte_1.visited)")
}

func TestGenerate_VariableLengthIncoming(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)<-[:KNOWS*1..2]-(b) RETURN a", nil, "g1")
	require.Contains(t, sql, "SELECT edges.target AS source, edges.source AS target")
	require.Contains(t, sql, "JOIN edges ON cte_1.target = edges.target")
}

func TestGenerate_VariableLengthUndirected(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)-[:KNOWS*1..2]-(b) RETURN a", nil, "g1")
	require.Contains(t, sql, "UNION ALL SELECT edges.target AS source, edges.source AS target")
	require.Contains(t, sql, "CASE WHEN edges.source = cte_1.target THEN edges.target ELSE edges.source END")
}

func TestGenerate_AggregatingWith(t *testing.T) {
	sql, params := translate(t,
		"MATCH (p:Person)-[:LIVES_IN]->(c:City) WITH c.name AS city, COUNT(p) AS population WHERE population > 1000 RETURN city, population ORDER BY population DESC",
		nil, "g1")
	require.Equal(t,
		"WITH cte_1 AS ("+
			"SELECT n2.name AS city, COUNT(n1.*) AS population"+
			" FROM nodes n1 JOIN edges e1 ON e1.source = n1.uuid JOIN nodes n2 ON e1.target = n2.uuid"+
			" WHERE n1.group_id = $1 AND n1.type = $2 AND e1.group_id = $1 AND e1.relation_type = $3 AND n2.group_id = $1 AND n2.type = $4"+
			" GROUP BY n2.name HAVING (COUNT(n1.*) > $5)"+
			") "+
			"SELECT cte_1.city, cte_1.population FROM cte_1 ORDER BY population DESC",
		sql)
	require.Equal(t, []any{"g1", "Person", "LIVES_IN", "City", int64(1000)}, params)
	requireContiguousParams(t, sql, params)
}

func TestGenerate_GroupByJSONExpression(t *testing.T) {
	sql, _ := translate(t,
		"MATCH (n:Person) WITH n.nickname AS nick, COUNT(*) AS c RETURN nick, c", nil, "g1")
	require.Contains(t, sql, "GROUP BY (n1.properties->>'nickname')")
	require.NotContains(t, sql, "GROUP BY nick")
}

func TestGenerate_NonAggregatingWithWhere(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) WITH n.age AS age WHERE age > 10 RETURN age", nil, "g1")
	require.NotContains(t, sql, "HAVING")
	require.Contains(t, sql, "WHERE n1.group_id = $1 AND n1.type = $2 AND")
}

func TestGenerate_StartsWithEscapesPattern(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person) WHERE n.nickname STARTS WITH 'A_%' RETURN n", nil, "g1")
	require.Equal(t,
		"SELECT n1.* FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2 AND ((n1.properties->>'nickname') LIKE $3)",
		sql)
	require.Equal(t, `A\_\%%`, params[2])
}

func TestGenerate_StringPredicates(t *testing.T) {
	sql, params := translate(t, "MATCH (n) WHERE n.nickname ENDS WITH 'z' RETURN n", nil, "g1")
	require.Contains(t, sql, "LIKE $2")
	require.Equal(t, "%z", params[1])

	sql, params = translate(t, "MATCH (n) WHERE n.nickname CONTAINS 'mid' RETURN n", nil, "g1")
	require.Contains(t, sql, "LIKE $2")
	require.Equal(t, "%mid%", params[1])

	sql, _ = translate(t, "MATCH (n) WHERE n.nickname =~ 'A.*' RETURN n", nil, "g1")
	require.Contains(t, sql, "~ $2")
}

func TestGenerate_OptionalMatch(t *testing.T) {
	sql, params := translate(t,
		"MATCH (n:Person) OPTIONAL MATCH (n)-[:LIKES]->(m:Movie) RETURN n.name, m.title", nil, "g1")
	require.Equal(t,
		"SELECT n1.name, (n2.properties->>'title') FROM nodes n1"+
			" LEFT JOIN edges e1 ON e1.source = n1.uuid AND e1.group_id = $1 AND e1.relation_type = $3"+
			" LEFT JOIN nodes n2 ON e1.target = n2.uuid AND n2.group_id = $1 AND n2.type = $4"+
			" WHERE n1.group_id = $1 AND n1.type = $2",
		sql)
	require.Equal(t, []any{"g1", "Person", "LIKES", "Movie"}, params)
}

func TestGenerate_ComparisonTyping(t *testing.T) {
	sql, _ := translate(t, "MATCH (n) WHERE n.active = true RETURN n", nil, "g1")
	require.Contains(t, sql, "((n1.properties->>'active')::boolean = $2)")

	sql, _ = translate(t, "MATCH (n) WHERE n.nickname = 'x' RETURN n", nil, "g1")
	require.Contains(t, sql, "((n1.properties->>'nickname') = $2)")

	sql, _ = translate(t, "MATCH (n) WHERE n.age > $min RETURN n", map[string]any{"min": 5}, "g1")
	require.Contains(t, sql, "((n1.properties->>'age')::numeric > $2)")

	sql, _ = translate(t, "MATCH (n) WHERE n.age > $min RETURN n", nil, "g1")
	require.Contains(t, sql, "((n1.properties->>'age') > $2)")
}

func TestGenerate_InForms(t *testing.T) {
	sql, params := translate(t, "MATCH (n) WHERE n.age IN [1, 2, 3] RETURN n", nil, "g1")
	require.Contains(t, sql, "IN ($2, $3, $4)")
	require.Equal(t, []any{"g1", int64(1), int64(2), int64(3)}, params)

	sql, _ = translate(t, "MATCH (n) WHERE n.status IN $statuses RETURN n",
		map[string]any{"statuses": []string{"a", "b"}}, "g1")
	require.Contains(t, sql, "= ANY($2)")
}

func TestGenerate_NamedParameterInterning(t *testing.T) {
	sql, params := translate(t, "MATCH (n) WHERE n.a = $x OR n.b = $x RETURN n",
		map[string]any{"x": "v"}, "g1")
	require.Equal(t, []any{"g1", "v"}, params)
	require.Equal(t, 2, len(placeholderRe.FindAllString(sql, -1))-countPlaceholder(sql, 1))
	require.Contains(t, sql, "((n1.properties->>'a') = $2)")
	require.Contains(t, sql, "((n1.properties->>'b') = $2)")
	requireContiguousParams(t, sql, params)
}

func countPlaceholder(sql string, n int) int {
	count := 0
	for _, m := range placeholderRe.FindAllStringSubmatch(sql, -1) {
		if m[1] == strconv.Itoa(n) {
			count++
		}
	}
	return count
}

func TestGenerate_NoTenant(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person) RETURN n.name", nil, "")
	require.Equal(t, "SELECT n1.name FROM nodes n1 WHERE n1.type = $1", sql)
	require.Equal(t, []any{"Person"}, params)
}

func TestGenerate_GroupByOnlyWhenAggregating(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) RETURN n.name, COUNT(*)", nil, "g1")
	require.Contains(t, sql, "GROUP BY n1.name")

	for _, fn := range []string{"SUM(n.age)", "AVG(n.age)", "MIN(n.age)", "MAX(n.age)", "COLLECT(n.name)"} {
		sql, _ := translate(t, fmt.Sprintf("MATCH (n:Person) RETURN n.name, %s", fn), nil, "g1")
		require.Contains(t, sql, "GROUP BY n1.name", fn)
	}

	sql, _ = translate(t, "MATCH (n:Person) RETURN n.name, toUpper(n.name)", nil, "g1")
	require.NotContains(t, sql, "GROUP BY")
}

func TestGenerate_CollectMapsToArrayAgg(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) RETURN COLLECT(n.name)", nil, "g1")
	require.Contains(t, sql, "array_agg(n1.name)")
}

func TestGenerate_WholeVariableGrouping(t *testing.T) {
	sql, _ := translate(t, "MATCH (a)-[:KNOWS]->(b) RETURN a, COUNT(b)", nil, "g1")
	require.Contains(t, sql, "SELECT n1.*, COUNT(n2.*)")
	require.Contains(t, sql, "GROUP BY n1.uuid")
}

func TestGenerate_DistinctAndPaging(t *testing.T) {
	sql, params := translate(t,
		"MATCH (n:Person) RETURN DISTINCT n.name ORDER BY n.name DESC SKIP 5 LIMIT 10", nil, "g1")
	require.Contains(t, sql, "SELECT DISTINCT n1.name")
	require.Contains(t, sql, "ORDER BY n1.name DESC")
	require.Contains(t, sql, "LIMIT $4 OFFSET $3")
	require.Equal(t, []any{"g1", "Person", int64(5), int64(10)}, params)
}

func TestGenerate_Union(t *testing.T) {
	sql, params := translate(t,
		"MATCH (a:Person) RETURN a.name UNION ALL MATCH (b:Bot) RETURN b.name", nil, "g1")
	require.Equal(t,
		"SELECT n1.name FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2"+
			" UNION ALL "+
			"SELECT n2.name FROM nodes n2 WHERE n2.group_id = $1 AND n2.type = $3",
		sql)
	require.Equal(t, []any{"g1", "Person", "Bot"}, params)
	requireContiguousParams(t, sql, params)
}

func TestGenerate_UnionShapeMismatch(t *testing.T) {
	q, err := cypher.Parse("MATCH (a:Person) RETURN a.name UNION MATCH (b:Bot) RETURN b.name, b.age")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "Union", ge.Kind)
}

func TestGenerate_MatchConcatenation(t *testing.T) {
	separate, p1 := translate(t, "MATCH (a:A) MATCH (b:B) RETURN a, b", nil, "g1")
	combined, p2 := translate(t, "MATCH (a:A), (b:B) RETURN a, b", nil, "g1")
	require.Equal(t, combined, separate)
	require.Equal(t, p2, p1)
}

func TestGenerate_CaseAndWhitespaceInvariance(t *testing.T) {
	a, pa := translate(t, "MATCH (n:Person) WHERE n.age > 25 RETURN n.name", nil, "g1")
	b, pb := translate(t, "match   (n:Person)\n\twhere n.age > 25\nreturn n.name", nil, "g1")
	require.Equal(t, a, b)
	require.Equal(t, pa, pb)
}

func TestGenerate_CaseExpression(t *testing.T) {
	sql, _ := translate(t, "MATCH (n) RETURN CASE WHEN n.age > 10 THEN 'old' ELSE 'young' END", nil, "g1")
	require.Contains(t, sql, "CASE WHEN ((n1.properties->>'age')::numeric > $2) THEN $3 ELSE $4 END")
}

func TestGenerate_UnknownFunctionPassesThrough(t *testing.T) {
	sql, _ := translate(t, "MATCH (n) RETURN toUpper(n.name)", nil, "g1")
	require.Contains(t, sql, "toUpper(n1.name)")
}

func TestGenerate_UnsupportedFeatures(t *testing.T) {
	tests := []struct {
		query string
		kind  string
	}{
		{"UNWIND [1, 2] AS x RETURN x", "Unwind"},
		{"CALL db.labels()", "Call"},
		{"MATCH (n) RETURN [x IN [1, 2] | x]", "ListComprehension"},
		{"MATCH (n) RETURN shortestPath(n)", "FunctionCall"},
	}
	for _, tt := range tests {
		q, err := cypher.Parse(tt.query)
		require.NoError(t, err, tt.query)
		sql, _, genErr := Generate(q, nil, "g1")
		require.Empty(t, sql, tt.query)
		var ge *GenerationError
		require.ErrorAs(t, genErr, &ge, tt.query)
		require.Equal(t, tt.kind, ge.Kind, tt.query)
		require.NotEmpty(t, ge.Message, tt.query)
	}
}

func TestGenerate_WholeVariableThroughAggregatingWith(t *testing.T) {
	q, err := cypher.Parse("MATCH (n) WITH n, COUNT(*) AS c RETURN c")
	require.NoError(t, err)
	_, _, genErr := Generate(q, nil, "g1")
	var ge *GenerationError
	require.ErrorAs(t, genErr, &ge)
	require.Equal(t, "n", ge.Variable)
}

func TestGenerate_WithCarriesWholeVariable(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) WITH n RETURN n.name", nil, "g1")
	require.Contains(t, sql, "WITH cte_1 AS (SELECT n1.* FROM nodes n1")
	require.Contains(t, sql, "SELECT cte_1.name FROM cte_1")
}

func TestGenerate_MatchAfterWith(t *testing.T) {
	sql, _ := translate(t, "MATCH (n:Person) WITH n MATCH (n)-[:KNOWS]->(m) RETURN m.name", nil, "g1")
	require.Contains(t, sql, "FROM cte_1 JOIN edges e1 ON e1.source = cte_1.uuid")
}

func TestGenerate_ReturnLiteralWithoutMatch(t *testing.T) {
	sql, params := translate(t, "RETURN 1", nil, "")
	require.Equal(t, "SELECT $1", sql)
	require.Equal(t, []any{int64(1)}, params)
}

func TestGenerate_PropertyMapPredicates(t *testing.T) {
	sql, params := translate(t, "MATCH (n:Person {name: 'Ann', age: 40}) RETURN n", nil, "g1")
	require.Equal(t,
		"SELECT n1.* FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2 AND n1.name = $3 AND (n1.properties->>'age')::numeric = $4",
		sql)
	require.Equal(t, []any{"g1", "Person", "Ann", int64(40)}, params)
}

func TestGenerate_EdgePropertiesAndTypes(t *testing.T) {
	sql, params := translate(t, "MATCH (a)-[r:A|B {weight: 2}]->(b) RETURN r", nil, "g1")
	require.Contains(t, sql, "e1.relation_type IN ($2, $3)")
	require.Contains(t, sql, "(e1.properties->>'weight')::numeric = $4")
	require.Equal(t, []any{"g1", "A", "B", int64(2)}, params)
}
