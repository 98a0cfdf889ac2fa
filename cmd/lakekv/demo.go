package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"

	"lakekv/internal/storage/value"
)

// demoCmd runs a small workload: a structured user record, a thousand items
// to force a flush, then a range query over a slice of them.
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a demo workload against the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()

		user := value.Mapping(map[string]value.Value{
			"name":  value.String("Alice"),
			"email": value.String("alice@example.com"),
			"age":   value.Int(30),
		})
		if err := db.Set("user:1", user); err != nil {
			return err
		}

		got, found, err := db.Get("user:1")
		if err != nil {
			return err
		}
		if found {
			fmt.Println(got.AsMapping()["name"].AsString())
		}

		for i := 0; i < 1000; i++ {
			item := value.Mapping(map[string]value.Value{
				"name":  value.String(fmt.Sprintf("Item %d", i)),
				"price": value.Int(rand.Int63n(100) + 1),
			})
			if err := db.Set(fmt.Sprintf("item:%d", i), item); err != nil {
				return err
			}
		}

		fmt.Println("\nItems 10-15:")
		entries, err := db.RangeScan("item:10", "item:15")
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s: %s\n", e.Key, e.Value.String())
		}

		stats := db.Stats()
		fmt.Printf("\nsstables=%d memtable=%d flushes=%d compactions=%d\n",
			stats.SSTables, stats.MemTableEntries, stats.Flushes, stats.Compactions)
		return nil
	},
}
