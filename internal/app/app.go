// Package app is the application context: it owns the registry, capture
// session and scheduler for the life of the process and maps operator
// actions onto them.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geoarkit/placer/internal/capture"
	"github.com/geoarkit/placer/internal/dispatcher"
	"github.com/geoarkit/placer/internal/geolocation"
	"github.com/geoarkit/placer/internal/places"
	"github.com/geoarkit/placer/internal/presentation"
	"github.com/geoarkit/placer/internal/scheduler"
	"github.com/geoarkit/placer/internal/storage"
)

// Operator actions.
const (
	ActionConfirmSelection = "confirm-selection"
	ActionCapturePosition  = "capture-position"
	ActionCommitPosition   = "commit-position"
	ActionSetMinDistance   = "set-min-distance"
	ActionSetMaxDistance   = "set-max-distance"
	ActionSaveBounds       = "save-distance-bounds"
	ActionExportData       = "export-data"
	ActionRebuild          = "rebuild"
)

// Actions lists every action in the order the page shows them.
var Actions = []string{
	ActionConfirmSelection,
	ActionCapturePosition,
	ActionCommitPosition,
	ActionSetMinDistance,
	ActionSetMaxDistance,
	ActionSaveBounds,
	ActionExportData,
	ActionRebuild,
}

// Status texts shown on failure.
const (
	MsgNoSelection    = "Please select a model first."
	MsgCaptureFailed  = "Unable to capture position. Please try again."
	MsgNothingPending = "No position captured to save."
	MsgInvalidRange   = "Invalid range: distances must be non-negative and min below max."
)

// ErrInvalidArgument is returned for malformed action arguments.
var ErrInvalidArgument = errors.New("invalid action argument")

const queueSize = 16

// Dependencies holds everything the application context is built from.
type Dependencies struct {
	Registry  *places.Registry
	Positions capture.Positioner
	Adapter   presentation.Adapter
	Scheduler *scheduler.Scheduler
	// Backend receives every export. Nil keeps exports page-only.
	Backend storage.Backend
	Logger  *slog.Logger
	// ActionLogger records action handling. Nil disables it.
	ActionLogger dispatcher.Logger
	// Now stamps exports; defaults to time.Now.
	Now func() time.Time
}

// App routes operator actions to the capture session, the registry and the
// scheduler, and reports every outcome on a status channel.
type App struct {
	deps       Dependencies
	session    *capture.Session
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	exports int
}

// New creates the application context and registers the actions.
func New(deps Dependencies) (*App, error) {
	if deps.Registry == nil || deps.Adapter == nil || deps.Scheduler == nil {
		return nil, errors.New("app requires a registry, an adapter and a scheduler")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	actionLog := deps.ActionLogger
	if actionLog == nil {
		actionLog = slogActionLogger{deps.Logger}
	}

	d, err := dispatcher.New(actionLog)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	a := &App{
		deps:       deps,
		session:    capture.NewSession(deps.Registry, deps.Positions),
		dispatcher: d,
		logger:     deps.Logger,
		baseCtx:    context.Background(),
	}
	a.registerActions()
	return a, nil
}

func (a *App) registerActions() {
	a.dispatcher.Register(ActionConfirmSelection, a.confirmSelection, dispatcher.Logged())
	a.dispatcher.Register(ActionCapturePosition, a.capturePosition, dispatcher.Logged(), dispatcher.Buffered(queueSize))
	a.dispatcher.Register(ActionCommitPosition, a.commitPosition, dispatcher.Logged())
	a.dispatcher.Register(ActionSetMinDistance, a.setDistance(places.BoundMin), dispatcher.Logged())
	a.dispatcher.Register(ActionSetMaxDistance, a.setDistance(places.BoundMax), dispatcher.Logged())
	a.dispatcher.Register(ActionSaveBounds, a.saveBounds, dispatcher.Logged())
	a.dispatcher.Register(ActionExportData, a.exportData, dispatcher.Logged(), dispatcher.Buffered(queueSize))
	a.dispatcher.Register(ActionRebuild, a.rebuild, dispatcher.Logged(), dispatcher.Buffered(queueSize), dispatcher.Blocking())
}

// Session returns the capture session.
func (a *App) Session() *capture.Session {
	return a.session
}

// Registry returns the place registry.
func (a *App) Registry() *places.Registry {
	return a.deps.Registry
}

// Ready reports whether every place has a position committed this session.
func (a *App) Ready() bool {
	return a.session.Ready()
}

// Exports returns how many exports completed.
func (a *App) Exports() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exports
}

// LogContext describes the capture session for log records.
func (a *App) LogContext() []slog.Attr {
	attrs := []slog.Attr{slog.String("session", a.session.State().String())}
	if name := a.session.Selected(); name != "" {
		attrs = append(attrs, slog.String("selected", name))
	}
	return attrs
}

// Start shows the pick list and renders every place. ctx bounds the render
// pass and every action handled afterwards.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.baseCtx = ctx
	a.mu.Unlock()

	a.deps.Adapter.RenderPickList(a.deps.Registry.Names())
	if err := a.deps.Scheduler.Render(ctx); err != nil {
		return fmt.Errorf("rendering places: %w", err)
	}
	a.logger.Info("Places rendered", "count", a.deps.Registry.Len(), "interval", a.deps.Scheduler.Interval())
	return nil
}

// Stop drains queued actions and tears down the render pass.
func (a *App) Stop() {
	a.dispatcher.Close()
	a.deps.Scheduler.Stop()
}

// Handlers wires the page's inbound messages. feed may be nil when positions
// do not come from the page.
func (a *App) Handlers(feed *geolocation.Feed) presentation.Handlers {
	h := presentation.Handlers{
		OnAction: func(p presentation.ActionPayload) {
			a.HandleAction(a.context(), p)
		},
	}
	if feed != nil {
		h.OnPosition = feed.Push
		h.OnDenied = feed.Deny
	}
	return h
}

func (a *App) context() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.baseCtx
}

// HandleAction runs or queues one operator action. Failures are reported on
// a status channel and never returned.
func (a *App) HandleAction(ctx context.Context, p presentation.ActionPayload) {
	_, err := a.dispatcher.Dispatch(ctx, dispatcher.Event{Action: p.Command, Args: p.Args})
	switch {
	case err == nil:
	case errors.Is(err, dispatcher.ErrUnknownAction):
		a.logger.Warn("Unknown action", "action", p.Command)
		a.deps.Adapter.ShowStatus(presentation.ChannelPosition, fmt.Sprintf("Unknown action: %s", p.Command))
	case errors.Is(err, dispatcher.ErrClosed):
		a.logger.Debug("Action after shutdown", "action", p.Command)
	default:
		a.logger.Debug("Action not completed", "action", p.Command, "error", err)
	}
}

// Do runs one action and returns its error, for callers that need the outcome.
// Queued actions return once accepted.
func (a *App) Do(ctx context.Context, action string, args ...string) error {
	_, err := a.dispatcher.Dispatch(ctx, dispatcher.Event{Action: action, Args: args})
	return err
}

func (a *App) status(ch presentation.Channel, format string, args ...any) {
	a.deps.Adapter.ShowStatus(ch, fmt.Sprintf(format, args...))
}

// fail reports err on ch and returns it for the dispatcher's bookkeeping.
func (a *App) fail(ch presentation.Channel, err error) error {
	a.deps.Adapter.ShowStatus(ch, failureText(err))
	return err
}

func failureText(err error) string {
	switch {
	case errors.Is(err, capture.ErrNoSelection):
		return MsgNoSelection
	case errors.Is(err, capture.ErrCaptureFailed):
		return MsgCaptureFailed
	case errors.Is(err, capture.ErrNothingPending):
		return MsgNothingPending
	case errors.Is(err, places.ErrInvalidRange):
		return MsgInvalidRange
	case errors.Is(err, places.ErrUnknownPlace):
		return "Unknown model. Please pick one from the list."
	default:
		return "Error: " + err.Error()
	}
}

func formatPosition(lat, lng float64) string {
	return fmt.Sprintf("Latitude: %s, Longitude: %s",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lng, 'f', -1, 64))
}

func formatRange(r places.VisibilityRange) string {
	return fmt.Sprintf("%gm - %gm", r.Min, r.Max)
}

func (a *App) confirmSelection(_ context.Context, e dispatcher.Event) (any, error) {
	name := ""
	if len(e.Args) > 0 {
		name = strings.TrimSpace(e.Args[0])
	}

	sel, err := a.session.Select(name)
	if err != nil {
		return nil, a.fail(presentation.ChannelPosition, err)
	}

	msg := "Model confirmed: " + name
	if sel.Committed {
		msg += fmt.Sprintf(" (saved position %s)", formatPosition(sel.Place.Location.Latitude, sel.Place.Location.Longitude))
	}
	a.deps.Adapter.ShowStatus(presentation.ChannelPosition, msg)

	dist := "Visibility range: " + formatRange(sel.Place.VisibilityRange)
	if sel.HasSaved {
		dist += " (saved " + formatRange(sel.Saved) + ")"
	}
	a.deps.Adapter.ShowStatus(presentation.ChannelDistance, dist)
	return sel, nil
}

func (a *App) capturePosition(ctx context.Context, _ dispatcher.Event) (any, error) {
	if a.session.Selected() == "" {
		return nil, a.fail(presentation.ChannelPosition, capture.ErrNoSelection)
	}
	a.status(presentation.ChannelPosition, "Capturing position...")

	c, err := a.session.Capture(ctx)
	if err != nil {
		return nil, a.fail(presentation.ChannelPosition, err)
	}
	a.status(presentation.ChannelPosition, "Position captured: %s", formatPosition(c.Latitude, c.Longitude))
	return c, nil
}

func (a *App) commitPosition(_ context.Context, _ dispatcher.Event) (any, error) {
	p, err := a.session.Commit()
	if err != nil {
		return nil, a.fail(presentation.ChannelPosition, err)
	}

	msg := fmt.Sprintf("Position captured: %s (Position saved)", formatPosition(p.Location.Latitude, p.Location.Longitude))
	if a.session.Ready() {
		msg += " All models positioned; rebuild or export when ready."
	}
	a.deps.Adapter.ShowStatus(presentation.ChannelPosition, msg)
	a.logger.Info("Anchor committed", "place", p.Name, "lat", p.Location.Latitude, "lng", p.Location.Longitude)
	return p, nil
}

func (a *App) setDistance(b places.Bound) dispatcher.HandlerFunc {
	return func(_ context.Context, e dispatcher.Event) (any, error) {
		if len(e.Args) == 0 {
			return nil, a.fail(presentation.ChannelDistance, fmt.Errorf("%w: missing %s distance", ErrInvalidArgument, b))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(e.Args[0]), 64)
		if err != nil {
			a.status(presentation.ChannelDistance, "Invalid %s distance: %q", b, e.Args[0])
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}

		r, err := a.session.SetDistance(b, value)
		if err != nil {
			return nil, a.fail(presentation.ChannelDistance, err)
		}
		a.status(presentation.ChannelDistance, "Visibility range for %s: %s", a.session.Selected(), formatRange(r))
		return r, nil
	}
}

func (a *App) saveBounds(_ context.Context, _ dispatcher.Event) (any, error) {
	r, err := a.session.SaveBounds()
	if err != nil {
		return nil, a.fail(presentation.ChannelDistance, err)
	}
	a.status(presentation.ChannelDistance, "Distance bounds saved for %s: %s", a.session.Selected(), formatRange(r))
	return r, nil
}

func (a *App) exportData(ctx context.Context, _ dispatcher.Event) (any, error) {
	snap := a.deps.Registry.Snapshot(a.deps.Now())
	doc, err := snap.Document()
	if err != nil {
		return nil, a.fail(presentation.ChannelPosition, err)
	}

	saveErr := a.deps.Adapter.SaveFile(presentation.ExportFileName, doc)
	if saveErr != nil {
		a.logger.Warn("Page file save failed", "error", saveErr)
		saveErr = fmt.Errorf("save file: %w", saveErr)
	}

	stored, where := false, ""
	if a.deps.Backend != nil {
		if err := a.deps.Backend.Export(ctx, snap); err != nil {
			a.logger.Error("Export failed", "error", err)
			return nil, a.fail(presentation.ChannelPosition, errors.Join(saveErr, fmt.Errorf("export: %w", err)))
		}
		stored, where = true, "storage"
		if l, ok := a.deps.Backend.(storage.Locatable); ok && l.ExportedPath() != "" {
			where = l.ExportedPath()
		}
	}

	switch {
	case saveErr != nil && !stored:
		return nil, a.fail(presentation.ChannelPosition, saveErr)
	case saveErr != nil && errors.Is(saveErr, presentation.ErrNoClients):
		a.status(presentation.ChannelPosition, "Exported %d models to %s; no page connected to save %s",
			len(snap.Places), where, presentation.ExportFileName)
	case saveErr != nil:
		a.status(presentation.ChannelPosition, "Exported %d models to %s; saving %s failed: %v",
			len(snap.Places), where, presentation.ExportFileName, errors.Unwrap(saveErr))
	case stored:
		a.status(presentation.ChannelPosition, "Exported %d models to %s and %s",
			len(snap.Places), presentation.ExportFileName, where)
	default:
		a.status(presentation.ChannelPosition, "Exported %d models to %s", len(snap.Places), presentation.ExportFileName)
	}

	a.mu.Lock()
	a.exports++
	a.mu.Unlock()
	return snap, nil
}

func (a *App) rebuild(ctx context.Context, _ dispatcher.Event) (any, error) {
	if err := a.deps.Scheduler.Rebuild(ctx); err != nil {
		return nil, a.fail(presentation.ChannelPosition, err)
	}
	a.status(presentation.ChannelPosition, "Models rebuilt from %d saved positions.", a.deps.Registry.Len())
	return nil, nil
}

// slogActionLogger adapts *slog.Logger to dispatcher.Logger.
type slogActionLogger struct {
	l *slog.Logger
}

func (s slogActionLogger) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s slogActionLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s slogActionLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }
