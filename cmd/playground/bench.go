package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flashdb/playground/internal/bucket"
	"github.com/flashdb/playground/internal/pubsub"
	"github.com/flashdb/playground/internal/router"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a command workload against in-memory engines",
	Long: `Run a workload against a router over an in-memory store and report the
throughput. Tests: set, get, mixed, incr, insert (mongo), cql (cassandra).`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().Int("clients", 8, "Number of parallel clients")
	benchCmd.Flags().Int("requests", 20000, "Total number of requests")
	benchCmd.Flags().String("test", "mixed", "Test type: set, get, mixed, incr, insert, cql")
	rootCmd.AddCommand(benchCmd)
}

func benchLine(test string, client, j int) (string, string) {
	key := fmt.Sprintf("key:%d:%d", client, j)
	switch test {
	case "set":
		return "redis", fmt.Sprintf("SET %s value:%d", key, j)
	case "get":
		return "redis", "GET " + key
	case "mixed":
		if j%2 == 0 {
			return "redis", fmt.Sprintf("SET %s value:%d", key, j)
		}
		return "redis", fmt.Sprintf("GET key:%d:%d", client, j-1)
	case "incr":
		return "redis", fmt.Sprintf("INCR counter:%d", client)
	case "insert":
		return "mongo", fmt.Sprintf("db.bench.insertOne({client: %d, seq: %d})", client, j)
	case "cql":
		return "cassandra", fmt.Sprintf("INSERT INTO bench (id, client) VALUES (%d, %d)", client*1_000_000+j, client)
	}
	return "redis", "PING"
}

func runBench(cmd *cobra.Command, _ []string) error {
	clients, _ := cmd.Flags().GetInt("clients")
	requests, _ := cmd.Flags().GetInt("requests")
	test, _ := cmd.Flags().GetString("test")
	if clients < 1 || requests < clients {
		return fmt.Errorf("need at least one client and one request per client")
	}

	r, err := router.New(router.Options{
		Store:    bucket.NewMemoryStore(),
		Toggles:  cfg.Toggles(),
		Bus:      pubsub.NewLocalBus(),
		Logger:   logger,
		Defaults: cfg.Settings(),
	})
	if err != nil {
		return err
	}
	defer r.Close()
	if test == "cql" {
		for _, l := range []string{
			"CREATE KEYSPACE bench WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}",
			"USE bench",
			"CREATE TABLE bench (id int PRIMARY KEY, client int)",
		} {
			if _, err := r.ExecuteOn("cassandra", l); err != nil {
				return err
			}
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "====== Playground Benchmark ======")
	fmt.Fprintf(cmd.OutOrStdout(), "Clients: %d\nRequests: %d\nTest: %s\n\n", clients, requests, test)

	var completed, failed atomic.Int64
	perClient := requests / clients
	start := time.Now()
	var g errgroup.Group
	for i := 0; i < clients; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < perClient; j++ {
				name, line := benchLine(test, i, j)
				res, err := r.ExecuteOn(name, line)
				if err != nil {
					return err
				}
				if res.Err != nil {
					failed.Add(1)
					continue
				}
				completed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintln(cmd.OutOrStdout(), "====== Results ======")
	fmt.Fprintf(cmd.OutOrStdout(), "Total time: %v\n", elapsed)
	fmt.Fprintf(cmd.OutOrStdout(), "Completed: %d\n", completed.Load())
	fmt.Fprintf(cmd.OutOrStdout(), "Errors: %d\n", failed.Load())
	fmt.Fprintf(cmd.OutOrStdout(), "Requests/sec: %.2f\n", float64(completed.Load())/elapsed.Seconds())
	return nil
}
