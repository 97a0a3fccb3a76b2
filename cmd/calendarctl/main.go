// Command calendarctl drives the meeting ledger from the command line. Storage,
// archive and logging are configured through CALENDARCORE_* environment
// variables; see internal/config.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"calendarcore/internal/archive"
	"calendarcore/internal/config"
	"calendarcore/internal/core"
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	exitFunc   = os.Exit
	loadConfig = config.Load
)

const usage = `usage: calendarctl [flags] <command> [command flags]

commands:
  create      -organizer ID -participants A,B -date N -start N -end N [-agenda S] [-link URL]
  reschedule  -caller ID -id N -date N -start N -end N
  add         -caller ID -id N -participants A,B
  cancel      -caller ID -id N
  get         -id N
  list        [-who ID]
  available   -who ID -date N -start N -end N
  archive     -key KEY
  restore     -key KEY
`

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

type globalFlags struct {
	overlapWarnings bool
	metrics         bool
	trace           bool
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("calendarctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { _, _ = fmt.Fprint(stderr, usage) }
	var g globalFlags
	fs.BoolVar(&g.overlapWarnings, "overlap-warnings", false, "warn when an organizer double-books themselves")
	fs.BoolVar(&g.metrics, "metrics", false, "print operation counters to stderr on exit")
	fs.BoolVar(&g.trace, "trace", false, "write JSON trace spans to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	handler, ok := commands[cmd]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q (want one of %s)\n", cmd, strings.Join(commandNames(), ", "))
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	e, err := newEnv(ctx, cfg, g, stdout, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "startup: %v\n", err)
		return 1
	}
	defer e.close()

	if err := handler(ctx, e, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		var usageErr usageError
		if errors.As(err, &usageErr) {
			_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", cmd, describe(err))
		return 1
	}
	return 0
}

// env bundles what a command needs for one invocation.
type env struct {
	cfg      config.Config
	svc      *core.Service
	store    core.PersistentStore
	registry *prometheus.Registry
	stdout   io.Writer
	stderr   io.Writer
	metrics  bool
}

func newEnv(ctx context.Context, cfg config.Config, g globalFlags, stdout, stderr io.Writer) (*env, error) {
	logger, err := core.NewLogger(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}
	registry := prometheus.NewRegistry()
	notifications, err := core.NewMetricsSink(registry, cfg.Metrics.Namespace)
	if err != nil {
		return nil, err
	}
	recorder, err := core.NewPrometheusMetricsRecorder(registry, cfg.Metrics.Namespace)
	if err != nil {
		return nil, err
	}
	sink := domain.MultiSink{core.NewLoggingSink(logger), notifications}
	store, err := core.OpenPersistentStore(ctx, cfg, core.NewDefaultRulesEngine(), memory.WithNotificationSink(sink))
	if err != nil {
		return nil, err
	}
	opts := []core.Option{core.WithLogger(logger), core.WithMetricsRecorder(recorder)}
	if g.trace {
		opts = append(opts, core.WithTracer(core.NewSpanJournal(stderr)))
	}
	svc := core.NewService(store, opts...)
	e := &env{cfg: cfg, svc: svc, store: store, registry: registry, stdout: stdout, stderr: stderr, metrics: g.metrics}
	if g.overlapWarnings {
		if _, err := svc.InstallPlugin(core.OverlapWarningsPlugin{}); err != nil {
			e.close()
			return nil, err
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.metrics {
		e.dumpMetrics()
	}
	if closer, ok := e.store.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (e *env) dumpMetrics() {
	families, err := e.registry.Gather()
	if err != nil {
		_, _ = fmt.Fprintf(e.stderr, "gather metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			_, _ = fmt.Fprintf(e.stderr, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}

func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) printWarnings(res core.Result) {
	for _, v := range res.Violations {
		_, _ = fmt.Fprintf(e.stderr, "warning: %s: %s\n", v.Rule, v.Message)
	}
}

type usageError struct{ msg string }

func (u usageError) Error() string { return u.msg }

// parseFlags reports flag errors as usage errors; -h surfaces flag.ErrHelp.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

func missing(name string) error {
	return usageError{msg: "-" + name + " is required"}
}

// describe renders domain errors with their code so scripts can match on it.
func describe(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return fmt.Sprintf("%s (%s)", err.Error(), code)
	}
	return err.Error()
}

type command func(ctx context.Context, e *env, args []string) error

var commands = map[string]command{
	"create":     runCreate,
	"reschedule": runReschedule,
	"add":        runAdd,
	"cancel":     runCancel,
	"get":        runGet,
	"list":       runList,
	"available":  runAvailable,
	"archive":    runArchive,
	"restore":    runRestore,
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlagSet(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

type slotFlags struct {
	date, start, end int64
}

func (s *slotFlags) bind(fs *flag.FlagSet) {
	fs.Int64Var(&s.date, "date", 0, "meeting date")
	fs.Int64Var(&s.start, "start", 0, "start time (inclusive)")
	fs.Int64Var(&s.end, "end", 0, "end time (exclusive)")
}

func splitIdentities(raw string) []core.Identity {
	var out []core.Identity
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, core.Identity(p))
		}
	}
	return out
}

func runCreate(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("create", e)
	var organizer, participants, agenda, link string
	var slot slotFlags
	fs.StringVar(&organizer, "organizer", "", "organizer identity")
	fs.StringVar(&participants, "participants", "", "comma separated participant identities")
	fs.StringVar(&agenda, "agenda", "", "agenda")
	fs.StringVar(&link, "link", "", "meeting link")
	slot.bind(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if organizer == "" {
		return missing("organizer")
	}
	m, res, err := e.svc.CreateMeeting(ctx, core.Identity(organizer), core.MeetingDraft{
		Participants: splitIdentities(participants),
		Date:         slot.date,
		StartTime:    slot.start,
		EndTime:      slot.end,
		Agenda:       agenda,
		MeetLink:     link,
	})
	if err != nil {
		return err
	}
	e.printWarnings(res)
	return e.printJSON(m)
}

func runReschedule(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("reschedule", e)
	var caller string
	var id uint64
	var slot slotFlags
	fs.StringVar(&caller, "caller", "", "caller identity")
	fs.Uint64Var(&id, "id", 0, "meeting id")
	slot.bind(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if caller == "" {
		return missing("caller")
	}
	m, res, err := e.svc.RescheduleMeeting(ctx, core.Identity(caller), core.MeetingID(id), core.Slot{Date: slot.date, Start: slot.start, End: slot.end})
	if err != nil {
		return err
	}
	e.printWarnings(res)
	return e.printJSON(m)
}

func runAdd(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("add", e)
	var caller, participants string
	var id uint64
	fs.StringVar(&caller, "caller", "", "caller identity")
	fs.Uint64Var(&id, "id", 0, "meeting id")
	fs.StringVar(&participants, "participants", "", "comma separated identities to add")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if caller == "" {
		return missing("caller")
	}
	m, _, err := e.svc.AddParticipants(ctx, core.Identity(caller), core.MeetingID(id), splitIdentities(participants))
	if err != nil {
		return err
	}
	return e.printJSON(m)
}

func runCancel(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("cancel", e)
	var caller string
	var id uint64
	fs.StringVar(&caller, "caller", "", "caller identity")
	fs.Uint64Var(&id, "id", 0, "meeting id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if caller == "" {
		return missing("caller")
	}
	m, _, err := e.svc.CancelMeeting(ctx, core.Identity(caller), core.MeetingID(id))
	if err != nil {
		return err
	}
	return e.printJSON(m)
}

func runGet(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("get", e)
	var id uint64
	fs.Uint64Var(&id, "id", 0, "meeting id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	m, err := e.svc.GetMeeting(ctx, core.MeetingID(id))
	if err != nil {
		return err
	}
	return e.printJSON(m)
}

func runList(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("list", e)
	var who string
	fs.StringVar(&who, "who", "", "only meetings this identity organizes or joins")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	var (
		meetings []core.Meeting
		err      error
	)
	if who == "" {
		meetings, err = e.svc.ListMeetings(ctx)
	} else {
		meetings, err = e.svc.MeetingsByIdentity(ctx, core.Identity(who))
	}
	if err != nil {
		return err
	}
	if meetings == nil {
		meetings = []core.Meeting{}
	}
	return e.printJSON(meetings)
}

type availability struct {
	Available bool           `json:"available"`
	Conflicts []core.Meeting `json:"conflicts"`
}

func runAvailable(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("available", e)
	var who string
	var slot slotFlags
	fs.StringVar(&who, "who", "", "identity to check")
	slot.bind(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if who == "" {
		return missing("who")
	}
	free, err := e.svc.CheckAvailability(ctx, core.Identity(who), slot.date, slot.start, slot.end)
	if err != nil {
		return err
	}
	conflicts, err := e.svc.Conflicts(ctx, core.Identity(who), slot.date, slot.start, slot.end)
	if err != nil {
		return err
	}
	if conflicts == nil {
		conflicts = []core.Meeting{}
	}
	return e.printJSON(availability{Available: free, Conflicts: conflicts})
}

func runArchive(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("archive", e)
	var key string
	fs.StringVar(&key, "key", "", "archive object key")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if key == "" {
		return missing("key")
	}
	store, err := archive.Open(ctx, e.cfg.Archive)
	if err != nil {
		return err
	}
	info, err := e.svc.ArchiveSnapshot(ctx, store, key)
	if err != nil {
		return err
	}
	return e.printJSON(info)
}

func runRestore(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet("restore", e)
	var key string
	fs.StringVar(&key, "key", "", "archive object key")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if key == "" {
		return missing("key")
	}
	store, err := archive.Open(ctx, e.cfg.Archive)
	if err != nil {
		return err
	}
	snapshot, err := e.svc.RestoreSnapshot(ctx, store, key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "restored %d meetings, last id %s\n", len(snapshot.Meetings), snapshot.LastID)
	return err
}
