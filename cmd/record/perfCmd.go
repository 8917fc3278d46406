package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dRec/cmd/util"
	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for dRec servers",
		Long:    "Runs create, get, search, delete and mixed workloads against a server. Test records use ids from --id-base upwards and the category __perf, they are deleted afterwards.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfCategory   = "__perf"
	perfNumThreads = 10
	perfIDSpread   = 100
	perfIDBase     = uint64(1 << 60)
	perfSkip       = make([]string, 0)

	// latency of every single call per test
	perfTimers = gometrics.NewRegistry()
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. create,search)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ids"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different record ids to use for the get, delete and mixed tests"))
	key = "id-base"
	perfTestCmd.Flags().Uint64(key, 1<<60, util.WrapString("First record id used by the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfIDSpread = viper.GetInt("ids")
	perfIDBase = viper.GetUint64("id-base")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfIDSpread < 1 {
		return fmt.Errorf("ids must be at least 1")
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dRec servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	run := func(test string, fn func(b *testing.B)) {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test) {
				return
			}
			fn(b)
		})
		results[test] = result
		printResult(test, result)
	}

	run("create", func(b *testing.B) {
		// every create uses a fresh id, so no create is refused
		next := atomic.Uint64{}
		next.Store(perfIDBase)

		b.Cleanup(func() {
			for id := perfIDBase + 1; id <= next.Load(); id++ {
				cleanup("create", id)
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				id := next.Add(1)
				timed("create", func() error {
					_, err := records.Create(context.Background(), perfRecord(id))
					return err
				})
			}
		})
	})

	run("get", func(b *testing.B) {
		getID, iter := getIDs()
		iter(func(id uint64) { seed("get", id) })
		b.Cleanup(func() { iter(func(id uint64) { cleanup("get", id) }) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter)
				timed("get", func() error {
					_, _, err := records.Get(context.Background(), id)
					return err
				})
				counter++
			}
		})
	})

	run("get-missing", func(b *testing.B) {
		getID, _ := getIDs()

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter) + uint64(perfIDSpread)
				timed("get-missing", func() error {
					_, _, err := records.Get(context.Background(), id)
					return err
				})
				counter++
			}
		})
	})

	run("search", func(b *testing.B) {
		_, iter := getIDs()
		iter(func(id uint64) { seed("search", id) })
		b.Cleanup(func() { iter(func(id uint64) { cleanup("search", id) }) })

		q := search.Query{
			Predicates: []search.Predicate{
				search.Tag(record.FieldCategory, perfCategory),
				search.Range(record.FieldMeasure, 0, float64(perfIDSpread/2)),
			},
		}

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				timed("search", func() error {
					_, err := records.Search(context.Background(), q)
					return err
				})
			}
		})
	})

	run("delete", func(b *testing.B) {
		getID, iter := getIDs()
		iter(func(id uint64) { seed("delete", id) })
		b.Cleanup(func() { iter(func(id uint64) { cleanup("delete", id) }) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		// only the first delete of an id succeeds, the others measure the not found path
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter)
				timed("delete", func() error {
					_, err := records.Delete(context.Background(), id)
					return err
				})
				counter++
			}
		})
	})

	run("mixed", func(b *testing.B) {
		getID, iter := getIDs()
		b.Cleanup(func() { iter(func(id uint64) { cleanup("mixed", id) }) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		// threads race on the same ids, which exercises the retry path of the server
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				id := getID(counter / 3)
				ctx := context.Background()
				timed("mixed", func() error {
					var err error
					switch counter % 3 {
					case 0:
						_, err = records.Create(ctx, perfRecord(id))
					case 1:
						_, _, err = records.Get(ctx, id)
					case 2:
						_, err = records.Delete(ctx, id)
					}
					return err
				})
				counter++
			}
		})
	})

	// Latency distribution of the single calls
	fmt.Println()
	printLatencies()

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

func perfRecord(id uint64) record.Record {
	return record.Record{
		ID:       id,
		Name:     fmt.Sprintf("perf %d", id),
		Category: perfCategory,
		Measure:  float64(id - perfIDBase),
	}
}

// timed runs fn and records its latency. Precondition failures are expected
// under load and not logged.
func timed(test string, fn func() error) {
	start := time.Now()
	err := fn()
	gometrics.GetOrRegisterTimer(test, perfTimers).UpdateSince(start)
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) && !errors.Is(err, store.ErrNotFound) {
		log.Printf("(%s) - error: %v\n", test, err)
	}
}

func seed(test string, id uint64) {
	_, err := records.Create(context.Background(), perfRecord(id))
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		log.Printf("(%s) - error creating record %d: %v\n", test, id, err)
	}
}

func cleanup(test string, id uint64) {
	_, err := records.Delete(context.Background(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("(%s) - error deleting record %d: %v\n", test, id, err)
	}
}

// creates the test ids and functions to work with them
func getIDs() (func(int) uint64, func(func(uint64))) {
	ids := make([]uint64, perfIDSpread)
	for i := 0; i < perfIDSpread; i++ {
		ids[i] = perfIDBase + uint64(i)
	}

	// Function to get an id by index (with wraparound)
	getID := func(i int) uint64 {
		return ids[i%perfIDSpread]
	}

	// Function to iterate over all ids and apply a function to each
	iterateIDs := func(fn func(uint64)) {
		for _, id := range ids {
			fn(id)
		}
	}

	return getID, iterateIDs
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// printLatencies prints the latency percentiles of every test
func printLatencies() {
	var names []string
	perfTimers.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	sort.Strings(names)

	fmt.Printf("%-20s%10s%12s%12s%12s%12s\n", "latency", "calls", "mean", "p50", "p99", "max")
	for _, name := range names {
		timer := gometrics.GetOrRegisterTimer(name, perfTimers).Snapshot()
		ps := timer.Percentiles([]float64{0.5, 0.99})
		fmt.Printf("%-20s%10d%12s%12s%12s%12s\n",
			name,
			timer.Count(),
			time.Duration(timer.Mean()).Round(time.Microsecond),
			time.Duration(ps[0]).Round(time.Microsecond),
			time.Duration(ps[1]).Round(time.Microsecond),
			time.Duration(timer.Max()).Round(time.Microsecond),
		)
	}
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P99Ns",
		"Endpoints", "TimeoutSec", "RetryCount",
		"ShardID", "Serializer", "Transport",
		"Threads", "IDs",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := gometrics.GetOrRegisterTimer(test, perfTimers).Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfIDSpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
