// Command trinity runs the Trinity task orchestrator as an interactive
// session: requests are read one per line from stdin and the resulting
// replies, plan summaries, and errors are printed to stdout as each
// segment completes.
//
// # Configuration
//
// Environment variables:
//
//	ANTHROPIC_API_KEY      - Anthropic API key (required)
//	ANTHROPIC_MODEL_DEFAULT - standard-tier model (default: claude-3-5-sonnet-latest)
//	ANTHROPIC_MODEL_HIGH    - deep-tier model (default: claude-3-5-opus-latest)
//	ANTHROPIC_MODEL_SMALL   - small/classification-tier model (default: claude-3-5-haiku-latest)
//	REDIS_URL              - Redis connection address (default: localhost:6379)
//	REDIS_PASSWORD         - Redis password (optional)
//	CHECKPOINT_TTL         - checkpoint expiry (default: 24h)
//	REPLAN_LIMIT           - max replan attempts (default: 2)
//	MAX_STEP_ATTEMPTS      - max per-step reflexion attempts (default: 3)
//	SOLO_TASK_TURNS        - solo_task step bound (default: 5)
//	INPUT_TIMEOUT          - AWAITING_INPUT wait before DecideForUser (default: 20s)
//	MODE_PROFILES_FILE     - path to a mode profiles override file (optional)
//	MCP_SERVERS_FILE       - path to the MCP server catalog file (required)
//	TOOL_SCHEMAS_FILE      - path to the tool schema file (required)
//	REJECTION_REPORTS_DIR  - directory Auditor rejection reports are written to
//
// If REDIS_URL is unreachable at startup, trinity logs a warning and falls
// back to an in-memory checkpoint store rather than refusing to start:
// checkpoint durability across restarts is a convenience, not a
// requirement for any single session to complete (spec §4.9).
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"trinity.dev/orchestrator/internal/agents/auditor"
	"trinity.dev/orchestrator/internal/agents/executor"
	"trinity.dev/orchestrator/internal/agents/strategist"
	"trinity.dev/orchestrator/internal/bus"
	"trinity.dev/orchestrator/internal/config"
	"trinity.dev/orchestrator/internal/dispatch"
	"trinity.dev/orchestrator/internal/llm"
	"trinity.dev/orchestrator/internal/memory"
	"trinity.dev/orchestrator/internal/orchestrator"
	"trinity.dev/orchestrator/internal/segment"
	"trinity.dev/orchestrator/internal/sharedctx"
	"trinity.dev/orchestrator/internal/telemetry"
	"trinity.dev/orchestrator/internal/toolserver"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	if err := run(ctx); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context) error {
	settings := config.LoadSettings()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		log.Print(ctx, log.KV{K: "msg", V: "shutting down"})
		cancel()
	}()

	tel := telemetry.Set{
		Log:     telemetry.NewClueLogger(),
		Metrics: telemetry.NewClueMetrics(),
		Trace:   telemetry.NewClueTracer(),
	}

	client, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:  settings.AnthropicAPIKey,
		Default: settings.AnthropicDefaultTier,
		High:    settings.AnthropicHighTier,
		Small:   settings.AnthropicSmallTier,
	})
	if err != nil {
		return fmt.Errorf("create anthropic client: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     settings.RedisURL,
		Password: settings.RedisPassword,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "close redis"})
		}
	}()

	var checkpoints orchestrator.CheckpointStore = orchestrator.NewInMemoryCheckpointStore()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Print(ctx, log.KV{K: "msg", V: "redis unreachable, falling back to in-memory checkpoints"}, log.KV{K: "err", V: err.Error()})
	} else {
		checkpoints = orchestrator.NewRedisCheckpointStore(rdb, settings.CheckpointTTL)
	}

	modeProfiles, err := config.LoadModeProfiles(settings.ModeProfilesPath)
	if err != nil {
		return fmt.Errorf("load mode profiles: %w", err)
	}
	toolServers, err := config.LoadToolServers(settings.ToolServersPath)
	if err != nil {
		return fmt.Errorf("load tool servers: %w", err)
	}
	toolSchemas, err := config.LoadToolSchemas(settings.ToolSchemasPath)
	if err != nil {
		return fmt.Errorf("load tool schemas: %w", err)
	}

	servers := toolserver.NewManager(toolServers, tel, nil)
	defer servers.Shutdown(ctx)

	maps := sharedctx.NewMapState()
	dispatcher := dispatch.New(toolSchemas, servers, maps, tel)

	mem := memory.NewInMemory()
	messageBus := bus.New()

	classifier := segment.NewLLMClassifier(client, segment.DefaultConfig())
	segmenter := segment.New(segment.DefaultConfig(), modeProfiles, classifier)

	strategistAgent := strategist.New(client, modeProfiles, mem, toolSchemas, tel)
	executorAgent := executor.New(client, dispatcher, messageBus, tel)
	auditorAgent := auditor.New(client, dispatcher, mem, messageBus, tel,
		auditor.WithRejectionReports(fileRejectionWriter{dir: settings.RejectionDir}))

	orch := orchestrator.New(strategistAgent, executorAgent, auditorAgent, segmenter, messageBus, checkpoints, tel,
		orchestrator.WithUserChannel(stdinChannel{}),
		orchestrator.WithLimits(settings.ReplanLimit, settings.MaxStepAttempts, settings.SoloTaskTurns, settings.InputTimeout))

	return repl(ctx, orch)
}

// repl reads one request per line from stdin until EOF or cancellation,
// running each through the Orchestrator under a single session whose
// history accumulates across turns.
func repl(ctx context.Context, orch *orchestrator.Orchestrator) error {
	const sessionID = "cli"
	var history []string

	fmt.Println("trinity> ready. type a request and press enter (ctrl-d to quit).")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		request := strings.TrimSpace(scanner.Text())
		if request == "" {
			continue
		}

		results := orch.Run(ctx, sessionID, request, history)
		for _, r := range results {
			printResult(r)
		}
		history = append(history, request)
	}
	return scanner.Err()
}

func printResult(r orchestrator.SegmentResult) {
	if r.Err != nil {
		fmt.Printf("trinity> [%s] error: %v\n", r.State, r.Err)
		return
	}
	if r.Reply != "" {
		fmt.Printf("trinity> %s\n", r.Reply)
		return
	}
	fmt.Printf("trinity> [%s] %d step(s) completed\n", r.State, len(r.Results))
}

// stdinChannel is a UserChannel that prompts on stdout and blocks on stdin
// for the AWAITING_INPUT side-loop, bounded by the caller's timeout.
type stdinChannel struct{}

func (stdinChannel) AwaitResponse(ctx context.Context, _ string, prompt string, timeout time.Duration) (string, bool) {
	fmt.Printf("trinity> %s\n", prompt)

	answers := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			answers <- scanner.Text()
		}
	}()

	select {
	case answer := <-answers:
		return answer, true
	case <-time.After(timeout):
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

// fileRejectionWriter is the filesystem side of the Auditor's "write a
// structured rejection report to the filesystem as markdown" step (spec
// §4.8 step 5), one file per task/step pair under dir.
type fileRejectionWriter struct {
	dir string
}

func (w fileRejectionWriter) WriteRejectionReport(taskID, stepID, markdown string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("rejection report dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.md", taskID, stepID)
	return os.WriteFile(filepath.Join(w.dir, name), []byte(markdown), 0o644)
}
