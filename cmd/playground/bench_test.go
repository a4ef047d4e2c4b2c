package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBenchLine(t *testing.T) {
	tests := []struct {
		test   string
		j      int
		engine string
		line   string
	}{
		{"set", 3, "redis", "SET key:1:3 value:3"},
		{"get", 3, "redis", "GET key:1:3"},
		{"mixed", 4, "redis", "SET key:1:4 value:4"},
		{"mixed", 5, "redis", "GET key:1:4"},
		{"incr", 9, "redis", "INCR counter:1"},
		{"insert", 2, "mongo", "db.bench.insertOne({client: 1, seq: 2})"},
		{"cql", 2, "cassandra", "INSERT INTO bench (id, client) VALUES (1000002, 1)"},
		{"nope", 0, "redis", "PING"},
	}
	for _, tt := range tests {
		engine, line := benchLine(tt.test, 1, tt.j)
		assert.Equal(t, tt.engine, engine, tt.test)
		assert.Equal(t, tt.line, line, tt.test)
	}
}
