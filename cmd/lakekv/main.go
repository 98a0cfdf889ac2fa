package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lakekv/internal/config"
	"lakekv/internal/storage/engine"
	"lakekv/internal/storage/value"
	"lakekv/pkg/logger"
)

var (
	dataDir    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "lakekv",
	Short: "An embedded LSM-tree key-value store",
	Long: `lakekv is a single-node, log-structured key-value storage engine with
a write-ahead log, sorted on-disk tables and automatic compaction.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "dir", "./lakekv-data", "database directory")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file")
	rootCmd.AddCommand(setCmd, getCmd, delCmd, scanCmd, compactCmd, demoCmd)
}

func openEngine() (*engine.Engine, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger.InitLogger(conf.LogLevel, conf.LogFile)
	return engine.Open(conf)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.FromFile(configPath)
	}
	return config.New(dataDir)
}

var setCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Store a key with a JSON value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := value.FromJSON([]byte(args[1]))
		if err != nil {
			return fmt.Errorf("value must be valid JSON: %w", err)
		}
		db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Set(args[0], v)
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Look up a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		v, found, err := db.Get(args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Println(v.String())
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:   "del KEY",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Delete(args[0])
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan START END",
	Short: "List entries with START <= key <= END",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		entries, err := db.RangeScan(args[0], args[1])
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s: %s\n", e.Key, e.Value.String())
		}
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Merge all SSTables into one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openEngine()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Compact(); err != nil {
			return err
		}
		stats := db.Stats()
		fmt.Printf("sstables: %d\n", stats.SSTables)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
