// MemTrigger - memory-triggered input override
// Watches a value in a running game through a pointer chain and reacts by
// overriding virtual input through a shared memory channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"memtrigger/internal/channel"
	"memtrigger/internal/config"
	"memtrigger/internal/input"
	"memtrigger/internal/macro"
	"memtrigger/internal/memory"
	"memtrigger/internal/monitor"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to the configuration file (.json, .yaml or .yml)")
	listProcs  = flag.Bool("list", false, "List running processes matching the configured process name (use -all for every process)")
	listAll    = flag.Bool("all", false, "With -list, list every process")
	targetPID  = flag.Int("pid", 0, "Attach to this process ID instead of looking up the process name")
	resolve    = flag.Bool("resolve", false, "Resolve every binding once and print address and value")
	recordTo   = flag.String("record", "", "Record a macro from live input into this file")
	playFile   = flag.String("play", "", "Play a macro file once through the input channel")
	verbose    = flag.Bool("v", false, "Log every poll cycle")
	showVer    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("memtrigger version %s\n", version)
		return
	}

	monitor.Verbose = *verbose

	// Initialize config
	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}

	switch {
	case *listProcs:
		listProcesses(cfgMgr)
	case *resolve:
		resolveBindings(cfgMgr)
	case *recordTo != "":
		recordMacro(cfgMgr, *recordTo)
	case *playFile != "":
		playMacro(cfgMgr, *playFile)
	default:
		runService(cfgMgr)
	}
}

// openTarget opens the process selected by -pid or by the configured name.
func openTarget(cfg *config.Config) (memory.Process, error) {
	pid := *targetPID
	if pid == 0 {
		info, err := memory.FindProcess(cfg.General.ProcessName)
		if err != nil {
			return nil, err
		}
		pid = info.PID
	}
	return memory.OpenProcess(pid)
}

func newChannel(cfg *config.Config) *channel.Channel {
	return channel.New(channel.Config{
		Name: cfg.General.SharedMemoryName,
		Dir:  cfg.General.SharedMemoryDir,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func listProcesses(cfgMgr *config.Manager) {
	name := cfgMgr.Get().General.ProcessName
	if *listAll {
		name = ""
	}

	procs, err := memory.FindProcesses(name)
	if err != nil {
		log.Fatalf("Failed to list processes: %v", err)
	}

	if name != "" {
		fmt.Printf("Processes named %s:\n", name)
	} else {
		fmt.Println("Running processes:")
	}
	fmt.Println("-------------------")
	for _, p := range procs {
		fmt.Printf("%8d  %s\n", p.PID, p.Name)
	}
	if len(procs) == 0 {
		fmt.Println("(none)")
	}
}

func resolveBindings(cfgMgr *config.Manager) {
	cfg := cfgMgr.Get()

	bindings, err := config.ParseBindings(cfg, cfgMgr.Dir())
	if err != nil {
		log.Printf("Warning: %v", err)
	}

	p, err := openTarget(cfg)
	if err != nil {
		log.Fatalf("Failed to open target process: %v", err)
	}
	defer p.Close()

	fmt.Printf("Process %d (%d-bit)\n", p.PID(), p.PointerSize()*8)
	fmt.Println("-------------------")

	resolver, err := memory.NewResolver(memory.DefaultModuleCacheSize)
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}
	for _, b := range bindings {
		label := b.ID
		if b.Name != "" {
			label = fmt.Sprintf("%s (%s)", b.ID, b.Name)
		}
		fmt.Printf("%s\n  Chain: %s\n", label, b.Chain)
		if len(b.Chain.Offsets) > 0 {
			fmt.Printf("  Offsets: %s\n", config.FormatOffsets(b.Chain.Offsets))
		}

		if b.Invalid {
			fmt.Printf("  Invalid: %s\n\n", b.ParseError)
			continue
		}

		value, addr, err := resolver.ReadValue(p, b.Chain)
		if err != nil {
			fmt.Printf("  Error: %v\n\n", err)
			continue
		}
		match := ""
		if value == b.TriggerValue {
			match = "  <- trigger"
		}
		fmt.Printf("  Address: %s\n  Value: %d%s\n\n", addr, value, match)
	}
}

// recordMacro samples live input until a key is pressed in the console.
func recordMacro(cfgMgr *config.Manager, path string) {
	sampler, err := input.NewSystemSampler()
	if err != nil {
		log.Fatalf("Failed to open input sampler: %v", err)
	}

	// Inputs the monitors block would otherwise be recorded
	var blockedKeys, blockedButtons []int
	bindings, _ := config.ParseBindings(cfgMgr.Get(), cfgMgr.Dir())
	for _, b := range bindings {
		blockedKeys = append(blockedKeys, b.KeysToBlock...)
		blockedButtons = append(blockedButtons, b.ButtonsToBlock...)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Println("Recording... press any key in this console to stop.")

	fd := int(os.Stdin.Fd())
	var oldState *term.State
	if term.IsTerminal(fd) {
		oldState, err = term.MakeRaw(fd)
		if err != nil {
			log.Fatalf("Failed to set console raw mode: %v", err)
		}

		go func() {
			buf := make([]byte, 1)
			os.Stdin.Read(buf)
			cancel()
		}()
	}

	seq, err := macro.Record(ctx, sampler, macro.RecordOptions{
		BlockedKeys:    blockedKeys,
		BlockedButtons: blockedButtons,
	})
	// Restore before any exit so a failure never leaves the console raw
	if oldState != nil {
		term.Restore(fd, oldState)
	}
	if err != nil {
		log.Fatalf("Recording failed: %v", err)
	}

	// The console key that stopped the recording is usually caught pressed
	if trimmed := macro.TrimTrailingPresses(seq); len(trimmed) != len(seq) {
		log.Printf("Dropped %d unreleased trailing step(s)", len(seq)-len(trimmed))
		seq = trimmed
	}

	if err := macro.Save(path, seq); err != nil {
		log.Fatalf("Failed to save macro: %v", err)
	}
	fmt.Printf("Recorded %d steps (%v) to %s\n", len(seq), seq.Duration().Round(time.Millisecond), path)
}

func playMacro(cfgMgr *config.Manager, path string) {
	seq, err := macro.Load(path)
	if err != nil {
		log.Fatalf("Failed to load macro: %v", err)
	}

	ch := newChannel(cfgMgr.Get())
	if !ch.Initialize() {
		log.Fatalf("Failed to play macro: %v", channel.ErrChannelUnavailable)
	}
	defer ch.Close()

	ctx, cancel := signalContext()
	defer cancel()

	log.Printf("Playing %s: %d steps (%v)", path, len(seq), seq.Duration())
	ch.SetActive(true)
	err = macro.Play(ctx, seq, ch)
	ch.SetActive(false)

	if err != nil {
		log.Printf("Playback aborted: %v", err)
		return
	}
	log.Println("Playback finished")
}
