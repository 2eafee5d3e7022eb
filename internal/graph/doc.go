// Package graph reads the publication knowledge graph from Neo4j.
//
// All access goes through the Runner interface, which executes one read-only
// Cypher statement per session. Neo4jClient is the production Runner; tests
// substitute an in-memory one.
//
// Graph schema consumed:
//
//	(:publication {id, title, abstract?, year?})
//	(:Author {name})-[:AUTHORED]->(:publication)
//	(:publication)-[:CITES]->(:publication)
//	(:publication)-[:PART_OF]->(:Venue {name})
//	(:publication)-[:HAS_TOPIC]->(:Topic {name})
package graph
