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

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/audit"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/config"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/engine"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/validation"
)

type CLI struct {
	engine  *engine.Engine
	actor   string
	scanner *bufio.Scanner
}

func main() {
	configPath := flag.String("config", "", "Configuration file (YAML)")
	actor := flag.String("actor", "operator", "Actor recorded in the audit trail")
	demo := flag.Bool("demo", false, "Install the built-in typology catalog on startup")
	flag.Parse()

	printBanner()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Printf("❌ Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	eng, err := engine.New(cfg, nil)
	if err != nil {
		fmt.Printf("❌ Failed to start engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if *demo {
		if err := eng.InstallBuiltinTypologies(); err != nil {
			fmt.Printf("❌ Failed to install typologies: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Built-in typology catalog installed")
	}

	fmt.Printf("✅ Engine ready (%d CPT records)\n\n", eng.Library().Len())

	cli := &CLI{
		engine:  eng,
		actor:   *actor,
		scanner: bufio.NewScanner(os.Stdin),
	}

	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()

	cli.run()
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   Korinsic Evidence Engine - Interactive Console          ║
║   CPT lifecycle · network compilation · inference · ESI   ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}

func (cli *CLI) run() {
	for {
		fmt.Print("korinsic> ")

		if !cli.scanner.Scan() {
			break
		}

		input := strings.TrimSpace(cli.scanner.Text())
		if input == "" {
			continue
		}

		if input == "exit" || input == "quit" {
			fmt.Println("👋 Goodbye!")
			break
		}

		cli.executeCommand(input)
		fmt.Println()
	}
}

func (cli *CLI) executeCommand(input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}

	command := strings.ToLower(parts[0])

	switch command {
	case "help":
		cli.showHelp()

	case "stats", "status":
		cli.showStats()

	case "list-cpts", "lc":
		cli.listCPTs()

	case "get-cpt", "gc":
		if len(parts) < 2 {
			fmt.Println("Usage: get-cpt <record-id>")
			return
		}
		cli.getCPT(parts[1])

	case "draft":
		cli.draftInteractive()

	case "validate":
		if len(parts) < 2 {
			fmt.Println("Usage: validate <record-id>")
			return
		}
		cli.validateCPT(parts[1])

	case "approve":
		if len(parts) < 2 {
			fmt.Println("Usage: approve <record-id>")
			return
		}
		cli.approveCPT(parts[1])

	case "clone":
		if len(parts) < 2 {
			fmt.Println("Usage: clone <record-id>")
			return
		}
		cli.cloneCPT(parts[1])

	case "networks", "nets":
		cli.listNetworks()

	case "build":
		if len(parts) < 2 {
			fmt.Println("Usage: build <spec-file.yaml>")
			return
		}
		cli.buildNetwork(parts[1])

	case "eval", "e":
		if len(parts) < 3 {
			fmt.Println("Usage: eval <network> <query-node> [node=state ...]")
			return
		}
		cli.evaluate(parts[1], parts[2], parts[3:])

	case "audit":
		n := 10
		if len(parts) > 1 {
			n, _ = strconv.Atoi(parts[1])
		}
		cli.showAudit(n)

	case "verify-audit":
		if len(parts) < 2 {
			fmt.Println("Usage: verify-audit <trail-file.jsonl>")
			return
		}
		cli.verifyAudit(parts[1])

	case "snapshot":
		if len(parts) < 2 {
			fmt.Println("Usage: snapshot <name>")
			return
		}
		cli.snapshot(parts[1])

	case "restore":
		if len(parts) < 2 {
			fmt.Println("Usage: restore <name>")
			return
		}
		cli.restore(parts[1])

	case "clear":
		fmt.Print("\033[H\033[2J")

	default:
		fmt.Printf("❌ Unknown command: %s (type 'help' for available commands)\n", command)
	}
}

func (cli *CLI) showHelp() {
	help := `
📖 Available Commands:

🗂️  CPT Lifecycle:
  list-cpts             List all CPT records
  lc                    Shorthand for list-cpts
  get-cpt <id>          Show one record in detail
  draft                 Interactive draft creation
  validate <id>         Move a draft to Validated
  approve <id>          Move a validated record to Approved
  clone <id>            Clone an approved record into a new draft

🕸️  Networks & Evaluation:
  networks              List compiled networks
  build <file>          Compile a YAML network spec
  eval <net> <query> [node=state ...]
                        Run a scored evaluation

🧾 Governance:
  audit [n]             Show the n most recent audit events
  verify-audit <file>   Verify a persistent trail's hash chain
  snapshot <name>       Archive the CPT library
  restore <name>        Restore an archived snapshot

🎮 Other:
  stats                 Show engine statistics
  clear                 Clear screen
  help                  Show this help
  exit/quit             Exit the console

💡 Examples:
  build specs/spoofing.yaml
  eval spoofing spoofing_risk order_burst=present
  approve cpt-4f8a...
`
	fmt.Println(help)
}

func (cli *CLI) showStats() {
	lib := cli.engine.Library()

	fmt.Println("📊 Engine Statistics:")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  CPT Records:  %d\n", lib.Len())
	fmt.Printf("  Networks:     %d\n", len(cli.engine.Networks()))
	fmt.Printf("  Audit Events: %d\n", cli.engine.AuditEventCount())
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func (cli *CLI) listCPTs() {
	records := cli.engine.Library().List()
	sort.Slice(records, func(i, j int) bool {
		if records[i].ChildID != records[j].ChildID {
			return records[i].ChildID < records[j].ChildID
		}
		return records[i].Meta.Version < records[j].Meta.Version
	})

	fmt.Printf("📋 CPT Records (total: %d)\n", len(records))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, rec := range records {
		fmt.Printf("  [%s] %s v%d (%s)\n", rec.ID, rec.ChildID, rec.Meta.Version, rec.Meta.Status)
	}
}

func (cli *CLI) getCPT(id string) {
	rec, err := cli.engine.Library().Get(id)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return
	}

	fmt.Printf("🔍 CPT Record %s\n", rec.ID)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Child:    %s\n", rec.ChildID)
	fmt.Printf("Parents:  %v\n", rec.ParentIDs)
	fmt.Printf("Status:   %s\n", rec.Meta.Status)
	fmt.Printf("Version:  %d\n", rec.Meta.Version)
	if rec.Meta.Description != "" {
		fmt.Printf("About:    %s\n", rec.Meta.Description)
	}
	if len(rec.Meta.RegulatoryRefs) > 0 {
		fmt.Printf("Refs:     %v\n", rec.Meta.RegulatoryRefs)
	}
	if rec.Meta.ApprovedBy != "" {
		fmt.Printf("Approved: %s at %s\n", rec.Meta.ApprovedBy, rec.Meta.ApprovedAt.Format(time.RFC3339))
	}

	fmt.Println("\nRows:")
	for i, row := range rec.Table.Rows {
		if i >= 16 {
			fmt.Printf("  ... and %d more rows\n", len(rec.Table.Rows)-i)
			break
		}
		fmt.Printf("  %3d: %v\n", i, row)
	}
}

func (cli *CLI) draftInteractive() {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("🆕 New Draft CPT")
	fmt.Println("━━━━━━━━━━━━━━━━━━")

	fmt.Print("Child node id: ")
	child, _ := reader.ReadString('\n')
	child = strings.TrimSpace(child)

	fmt.Print("Parent node ids (comma-separated): ")
	parentsStr, _ := reader.ReadString('\n')
	var parents []string
	for _, p := range strings.Split(strings.TrimSpace(parentsStr), ",") {
		if p = strings.TrimSpace(p); p != "" {
			parents = append(parents, p)
		}
	}

	fmt.Println("Rows, one per line as space-separated probabilities (empty line to finish):")
	var rows [][]float64
	for {
		fmt.Printf("  row %d: ", len(rows))
		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		var row []float64
		ok := true
		for _, field := range strings.Fields(line) {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				fmt.Printf("  ❌ %q is not a number\n", field)
				ok = false
				break
			}
			row = append(row, v)
		}
		if ok {
			rows = append(rows, row)
		}
	}

	fmt.Print("Description: ")
	desc, _ := reader.ReadString('\n')

	fmt.Print("Regulatory references (comma-separated): ")
	refsStr, _ := reader.ReadString('\n')
	var refs []string
	for _, r := range strings.Split(strings.TrimSpace(refsStr), ",") {
		if r = strings.TrimSpace(r); r != "" {
			refs = append(refs, r)
		}
	}

	rec, err := cli.engine.RegisterDraft(cli.actor, &validation.DraftRequest{
		ChildID:        child,
		ParentIDs:      parents,
		Rows:           rows,
		Description:    strings.TrimSpace(desc),
		RegulatoryRefs: refs,
	})
	if err != nil {
		fmt.Printf("❌ Failed to register draft: %v\n", err)
		return
	}

	fmt.Printf("\n✅ Registered draft %s (version %d)\n", rec.ID, rec.Meta.Version)
}

func (cli *CLI) validateCPT(id string) {
	if err := cli.engine.ValidateCPT(cli.actor, id); err != nil {
		fmt.Printf("❌ Validation failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Record %s is now Validated\n", id)
}

func (cli *CLI) approveCPT(id string) {
	rec, err := cli.engine.ApproveCPT(cli.actor, id)
	if err != nil {
		fmt.Printf("❌ Approval failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Record %s approved (child %s, version %d)\n", rec.ID, rec.ChildID, rec.Meta.Version)
	if rec.Meta.Attestation != "" {
		fmt.Println("   Attestation minted")
	}
}

func (cli *CLI) cloneCPT(id string) {
	rec, err := cli.engine.CloneCPTForUpdate(cli.actor, id)
	if err != nil {
		fmt.Printf("❌ Clone failed: %v\n", err)
		return
	}
	fmt.Printf("✅ New draft %s (version %d) cloned from %s\n", rec.ID, rec.Meta.Version, id)
}

func (cli *CLI) listNetworks() {
	names := cli.engine.Networks()

	fmt.Printf("🕸️  Compiled Networks (total: %d)\n", len(names))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, name := range names {
		net, _ := cli.engine.Network(name)
		fmt.Printf("  %s  nodes=%d  hash=%.12s…\n", name, net.Len(), net.Hash())
	}
}

func (cli *CLI) buildNetwork(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("❌ Cannot read %s: %v\n", path, err)
		return
	}

	start := time.Now()
	net, err := cli.engine.RegisterNetworkSpec(cli.actor, data)
	if err != nil {
		fmt.Printf("❌ Build failed: %v\n", err)
		return
	}

	fmt.Printf("✅ Network %q compiled in %v\n", net.Name(), time.Since(start))
	fmt.Printf("   Nodes:    %d\n", net.Len())
	fmt.Printf("   Evidence: %v\n", net.EvidenceNodes())
	fmt.Printf("   Hash:     %s\n", net.Hash())
}

func (cli *CLI) evaluate(networkName, queryNode string, observations []string) {
	evidenceMap := make(map[string]string, len(observations))
	for _, obs := range observations {
		k, v, ok := strings.Cut(obs, "=")
		if !ok {
			fmt.Printf("❌ Observation %q is not node=state\n", obs)
			return
		}
		evidenceMap[k] = v
	}

	start := time.Now()
	eval, err := cli.engine.Evaluate(context.Background(), cli.actor, &validation.EvaluateRequest{
		Network:  networkName,
		Evidence: evidenceMap,
		Query:    []string{queryNode},
	})
	if err != nil {
		fmt.Printf("❌ Evaluation failed: %v\n", err)
		return
	}

	fmt.Printf("✅ Evaluated in %v\n\n", time.Since(start))

	post := eval.Inference.Posteriors[queryNode]
	fmt.Printf("Posterior for %s:\n", queryNode)
	for i, state := range post.States {
		bar := strings.Repeat("█", int(post.Probs[i]*40))
		fmt.Printf("  %-16s %.4f %s\n", state, post.Probs[i], bar)
	}

	fmt.Printf("\nESI Score: %.3f (%s)\n", eval.ESI.Score, eval.ESI.Label)
	fmt.Printf("Evidence Completeness: %.0f%%\n", eval.Inference.Completeness*100)
	if len(eval.Inference.FallbackUsed) > 0 {
		fmt.Printf("Fallback Priors Used:  %v\n", eval.Inference.FallbackUsed)
	}
	if len(eval.Inference.Contributions) > 0 {
		fmt.Println("\nEvidence Contributions:")
		type contrib struct {
			id    string
			shift float64
		}
		sorted := make([]contrib, 0, len(eval.Inference.Contributions))
		for id, shift := range eval.Inference.Contributions {
			sorted = append(sorted, contrib{id, shift})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].shift > sorted[j].shift })
		for _, c := range sorted {
			fmt.Printf("  %-20s %.4f\n", c.id, c.shift)
		}
	}
}

func (cli *CLI) showAudit(n int) {
	events := cli.engine.RecentEvents(n)

	fmt.Printf("🧾 Recent Audit Events (showing %d)\n", len(events))
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, event := range events {
		fmt.Printf("  %s\n", event)
	}
}

func (cli *CLI) verifyAudit(path string) {
	count, err := audit.Verify(path)
	if err != nil {
		fmt.Printf("❌ Chain verification failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Hash chain intact over %d events\n", count)
}

func (cli *CLI) snapshot(name string) {
	if err := cli.engine.Snapshot(context.Background(), name); err != nil {
		fmt.Printf("❌ Snapshot failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Library archived as %q\n", name)
}

func (cli *CLI) restore(name string) {
	count, err := cli.engine.RestoreArchive(context.Background(), name)
	if err != nil {
		fmt.Printf("❌ Restore failed: %v\n", err)
		return
	}
	fmt.Printf("✅ Restored %d records from %q\n", count, name)
}
