// wattmonsh is the interactive operator shell for a wattmond data
// directory.
//
// It inspects shard files, dumps raw records, and runs ad-hoc DuckDB
// SQL over the Parquet archive. When stdin is not a terminal the shell
// reads commands line by line, so it can be scripted.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/xtxerr/wattmon/internal/config"
	"github.com/xtxerr/wattmon/internal/query"
	"github.com/xtxerr/wattmon/internal/shard"
)

var suggestions = []prompt.Suggest{
	{Text: "shards", Description: "List shard files and record counts"},
	{Text: "dump", Description: "dump <id>: print a shard's records"},
	{Text: "sql", Description: "sql <query>: run DuckDB SQL over the archive"},
	{Text: "range", Description: "range <from> <to>: aggregates in a time range (RFC3339)"},
	{Text: "help", Description: "Show available commands"},
	{Text: "exit", Description: "Leave the shell"},
}

type shell struct {
	cfg *config.Config
	svc *query.Service
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	svc, err := query.New(cfg.Query, cfg.ArchiveDir(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open query service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	sh := &shell{cfg: cfg, svc: svc}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		sh.runScripted()
		return
	}

	fmt.Printf("wattmonsh - data dir %s (type help)\n", cfg.DataDir)
	p := prompt.New(
		sh.execute,
		completer,
		prompt.OptionTitle("wattmonsh"),
		prompt.OptionPrefix("wattmon> "),
	)
	p.Run()
}

// runScripted executes commands from stdin without the interactive
// prompt machinery.
func (s *shell) runScripted() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.execute(line)
	}
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func (s *shell) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "exit", "quit":
		os.Exit(0)
	case "help":
		s.help()
	case "shards":
		s.shards()
	case "dump":
		s.dump(rest)
	case "sql":
		s.sql(rest)
	case "range":
		s.timeRange(rest)
	default:
		fmt.Printf("unknown command %q (type help)\n", cmd)
	}
}

func (s *shell) help() {
	for _, sg := range suggestions {
		fmt.Printf("  %-8s %s\n", sg.Text, sg.Description)
	}
}

func (s *shell) shards() {
	dir := s.cfg.ShardDir()
	ids, err := shard.List(dir)
	if err != nil {
		fmt.Printf("list shards: %v\n", err)
		return
	}
	if len(ids) == 0 {
		fmt.Println("no shards")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Shard", "Bytes", "Records", "First", "Last"})
	for _, id := range ids {
		records, err := shard.Read(dir, id)
		if err != nil {
			table.Append([]string{strconv.Itoa(id), "?", "?", err.Error(), ""})
			continue
		}

		var size int64
		if fi, err := os.Stat(dir + "/" + strconv.Itoa(id)); err == nil {
			size = fi.Size()
		}

		first, last := "-", "-"
		if len(records) > 0 {
			first = msTime(records[0].Timestamp)
			last = msTime(records[len(records)-1].Timestamp)
		}
		table.Append([]string{
			strconv.Itoa(id),
			strconv.FormatInt(size, 10),
			strconv.Itoa(len(records)),
			first,
			last,
		})
	}
	table.Render()
}

func (s *shell) dump(arg string) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		fmt.Println("usage: dump <shard-id>")
		return
	}

	records, err := shard.Read(s.cfg.ShardDir(), id)
	if err != nil {
		fmt.Printf("read shard %d: %v\n", id, err)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Phase", "Real W", "Apparent VA", "IRMS A", "VRMS V", "kWh", "Time"})
	for _, r := range records {
		table.Append([]string{
			strconv.Itoa(int(r.Phase)),
			fmt.Sprintf("%.1f", r.RealPower),
			fmt.Sprintf("%.1f", r.ApparentPower),
			fmt.Sprintf("%.3f", r.IRMS),
			fmt.Sprintf("%.1f", r.VRMS),
			fmt.Sprintf("%.6f", r.EnergyKWh),
			msTime(r.Timestamp),
		})
	}
	table.Render()
}

func (s *shell) sql(q string) {
	q = strings.TrimSpace(q)
	if q == "" {
		fmt.Printf("usage: sql <query>   (archive: read_parquet('%s'))\n", s.svc.ArchivePattern())
		return
	}

	rows, err := s.svc.ExecuteSQL(context.Background(), q)
	if err != nil {
		fmt.Printf("query: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("no rows")
		return
	}

	cols := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(cols)
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			cells[i] = fmt.Sprintf("%v", row[col])
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Printf("%d rows\n", len(rows))
}

func (s *shell) timeRange(args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		fmt.Println("usage: range <from> <to>   (RFC3339, e.g. 2026-08-23T00:00:00Z)")
		return
	}

	from, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		fmt.Printf("parse from: %v\n", err)
		return
	}
	to, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		fmt.Printf("parse to: %v\n", err)
		return
	}

	rows, err := s.svc.QueryRange(context.Background(), query.RangeQuery{StartTime: from, EndTime: to})
	if err != nil {
		fmt.Printf("query: %v\n", err)
		return
	}
	if len(rows) == 0 {
		fmt.Println("no rows")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Bucket", "Phase", "Count", "Real avg W", "Real p95 W", "VRMS avg V", "kWh"})
	for _, r := range rows {
		table.Append([]string{
			msTime(uint64(r.BucketStart)),
			strconv.Itoa(int(r.Phase)),
			strconv.FormatInt(r.Count, 10),
			fmt.Sprintf("%.1f", r.RealAvg),
			fmt.Sprintf("%.1f", r.RealP95),
			fmt.Sprintf("%.1f", r.VRMSAvg),
			fmt.Sprintf("%.4f", r.EnergyKWh),
		})
	}
	table.Render()
}

func msTime(ms uint64) string {
	return time.UnixMilli(int64(ms)).UTC().Format("2006-01-02 15:04:05")
}
