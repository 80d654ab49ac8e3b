package pgdriver

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	cyphergres "github.com/ritamzico/cyphergres"
)

func newTestDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return New(db, "g1", log), mock
}

func TestQueryCypher(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT n1.name FROM nodes n1 WHERE n1.group_id = $1 AND n1.type = $2")).
		WithArgs("g1", "Person").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ann").AddRow("Bo"))

	rows, err := driver.QueryCypher(context.Background(), "MATCH (n:Person) RETURN n.name", nil)
	require.NoError(t, err)
	require.Equal(t, []map[string]any{{"name": "Ann"}, {"name": "Bo"}}, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCypher_NamedParams(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectQuery("SELECT .* FROM nodes n1").
		WithArgs("g1", "Person", int64(25)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err := driver.QueryCypher(context.Background(),
		"MATCH (n:Person) WHERE n.age > $min RETURN n.name", map[string]any{"min": int64(25)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryCypher_ParseErrorPropagates(t *testing.T) {
	driver, _ := newTestDriver(t)

	_, err := driver.QueryCypher(context.Background(), "MATCH (n RETURN n", nil)
	var perr *cyphergres.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestExecCypher(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectExec("DELETE FROM nodes WHERE uuid IN").
		WithArgs("g1", "Person").
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := driver.ExecCypher(context.Background(), "MATCH (n:Person) DELETE n", nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveNode(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO nodes (uuid, type, group_id, name, summary, properties)")).
		WithArgs(sqlmock.AnyArg(), "Person", "g1", "Ann", "", []byte(`{"age":40}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &Node{Type: "Person", Name: "Ann", Properties: map[string]any{"age": 40}}
	require.NoError(t, driver.SaveNode(context.Background(), n))
	require.NotEmpty(t, n.UUID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNode(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectQuery("SELECT uuid, type, name, summary, properties FROM nodes").
		WithArgs("u-1", "g1").
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "type", "name", "summary", "properties"}).
			AddRow("u-1", "Person", "Ann", "", []byte(`{"age":40}`)))

	n, err := driver.GetNode(context.Background(), "u-1")
	require.NoError(t, err)
	require.Equal(t, "Ann", n.Name)
	require.Equal(t, float64(40), n.Properties["age"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNode(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM edges WHERE").
		WithArgs("u-1", "g1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM nodes WHERE").
		WithArgs("u-1", "g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, driver.DeleteNode(context.Background(), "u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEdge(t *testing.T) {
	driver, mock := newTestDriver(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO edges (uuid, source, target, relation_type, group_id, fact, properties)")).
		WithArgs("e-1", "a", "b", "KNOWS", "g1", "", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &Edge{UUID: "e-1", Source: "a", Target: "b", RelationType: "KNOWS"}
	require.NoError(t, driver.SaveEdge(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}
