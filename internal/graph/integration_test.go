//go:build integration

package graph_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Aman-CERP/pubrag/internal/graph"
)

const testPassword = "pubrag-test-pw"

// startNeo4j runs a Neo4j 5 container and returns its bolt URI.
func startNeo4j(t *testing.T, ctx context.Context) string {
	t.Helper()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	if err := provider.Health(ctx); err != nil {
		t.Skip("Docker not running, skipping integration test")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "neo4j:5",
			ExposedPorts: []string{"7687/tcp"},
			Env:          map[string]string{"NEO4J_AUTH": "neo4j/" + testPassword},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("7687/tcp"),
				wait.ForLog("Started."),
			).WithDeadline(120 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start neo4j container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687")
	require.NoError(t, err)

	return fmt.Sprintf("bolt://%s:%s", host, port.Port())
}

func seed(t *testing.T, ctx context.Context, uri string) {
	t.Helper()
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth("neo4j", testPassword, ""))
	require.NoError(t, err)
	defer func() { _ = driver.Close(ctx) }()

	_, err = neo4j.ExecuteQuery(ctx, driver, `
CREATE CONSTRAINT publication_id IF NOT EXISTS FOR (p:publication) REQUIRE p.id IS UNIQUE`,
		nil, neo4j.EagerResultTransformer)
	require.NoError(t, err)

	_, err = neo4j.ExecuteQuery(ctx, driver, `
CREATE (p1:publication {id: 'P1', title: 'Graph retrieval', abstract: 'Retrieval over graphs.', year: 2023})
CREATE (p2:publication {id: 'P2', title: 'Vector search'})
CREATE (a:Author {name: 'Ada'})
CREATE (t:Topic {name: 'IR'})
CREATE (a)-[:AUTHORED]->(p1)
CREATE (p1)-[:CITES]->(p2)
CREATE (p1)-[:HAS_TOPIC]->(t)`, nil, neo4j.EagerResultTransformer)
	require.NoError(t, err)
}

func TestNeo4jClient_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	uri := startNeo4j(t, ctx)
	seed(t, ctx, uri)

	client, err := graph.NewNeo4jClient(ctx, graph.DefaultClientConfig(uri, "neo4j", testPassword))
	require.NoError(t, err)
	defer func() { require.NoError(t, client.Close(ctx)) }()

	q := graph.NewQueries(client)

	test, err := q.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), test)

	version, err := q.Version(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, version)

	count, err := q.CountPublications(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	cites, err := q.CountRelationships(ctx, graph.RelCites)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cites)

	constraints, err := q.Constraints(ctx)
	require.NoError(t, err)
	assert.Contains(t, constraints, "publication_id")

	pubs, err := q.FetchPublications(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, "P1", pubs[0].ID)
	assert.Equal(t, []string{"Ada"}, pubs[0].Authors)
	assert.Equal(t, []string{"IR"}, pubs[0].Topics)
	assert.Equal(t, 2023, pubs[0].Year)
}

func TestNeo4jClient_WrongPassword(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	uri := startNeo4j(t, ctx)
	cfg := graph.DefaultClientConfig(uri, "neo4j", "wrong")
	cfg.ConnectAttempts = 1

	_, err := graph.NewNeo4jClient(ctx, cfg)
	assert.Error(t, err)
}
