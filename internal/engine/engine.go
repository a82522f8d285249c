// Package engine orchestrates one conversation turn: decay, trigger
// detection, composition update, pattern selection, context assembly, and
// the commit step that records history and applies declared knowledge
// mutations. Per-conversation state is single-writer; different
// conversations are independent and processed fully in parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"counsel/internal/assembler"
	"counsel/internal/catalog"
	"counsel/internal/composition"
	"counsel/internal/config"
	"counsel/internal/knowledge"
	"counsel/internal/logging"
	"counsel/internal/selector"
	"counsel/internal/store"
	"counsel/internal/trigger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine owns the catalog, configuration, and the conversation-id-keyed
// session map. Catalogs are immutable and shared read-only; each session
// holds private mutable state guarded by its own lock.
type Engine struct {
	catalog *catalog.Catalog
	cfg     *config.Config
	store   store.SnapshotStore // optional; nil disables persistence

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one conversation's private state. Exactly one turn of one
// conversation runs at a time against it.
type session struct {
	mu      sync.Mutex
	state   *knowledge.State
	comp    composition.Vector
	history []assembler.Turn
}

// TurnResult is the engine's output for one processed turn: the ranked
// selected patterns plus the bounded payload for generation.
type TurnResult struct {
	ConversationID string
	Turn           int
	Triggers       []trigger.Match
	Selected       []selector.Selected
	FellBack       bool
	Payload        *assembler.Payload
}

// TurnInput pairs a conversation with a message for batch processing.
type TurnInput struct {
	ConversationID string
	Message        string
}

// New creates an engine over a validated catalog.
func New(cat *catalog.Catalog, cfg *config.Config, snapshots store.SnapshotStore) *Engine {
	return &Engine{
		catalog:  cat,
		cfg:      cfg,
		store:    snapshots,
		sessions: make(map[string]*session),
	}
}

// NewConversationID mints a fresh conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// ProcessTurn runs the full per-turn pipeline for one message. Knowledge
// mutations and history are committed only after a selection has been
// assembled into a usable payload; a cancelled or oversized turn leaves
// the conversation state untouched apart from per-turn decay.
func (e *Engine) ProcessTurn(ctx context.Context, conversationID, message string) (*TurnResult, error) {
	log := logging.Get(logging.CategoryEngine)

	sess, err := e.session(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	turn := sess.state.BeginTurn()
	sess.state.Decay(e.cfg.Knowledge.FrustrationDecay, e.cfg.Knowledge.ConfusionDecay)
	snap := sess.state.Snapshot()

	matches, extractions := trigger.Detect(message, snap, e.catalog, trigger.Options{
		RepetitionThreshold: e.cfg.Selector.RepetitionThreshold,
	})

	comp, err := composition.Update(sess.comp, signalsFrom(matches, e.catalog),
		e.cfg.Composition.DecayFactors, e.cfg.Composition.ReinforceCap)
	if err != nil {
		// Degrade to fallback rather than crashing the conversation.
		log.Errorw("composition update failed", "conversation", conversationID, "error", err)
		comp = sess.comp
	}

	selected, selErr := selector.Select(matches, snap, comp, e.catalog, e.cfg.Selector)
	fellBack := false
	if selErr != nil {
		if !errors.Is(selErr, selector.ErrNoEligiblePattern) {
			return nil, fmt.Errorf("selection failed: %w", selErr)
		}
		// Mandatory fallback: the conversation never stalls.
		fellBack = true
		selected = []selector.Selected{{
			Behavior: e.catalog.Fallback(),
			Priority: catalog.PriorityLow,
		}}
	}

	history := append(append([]assembler.Turn{}, sess.history...),
		assembler.Turn{Role: "user", Text: message})

	payload, err := assembler.Assemble("engine.ProcessTurn", selected, snap, history, e.cfg.Context)
	if err != nil {
		// Oversized context fails closed: abort the turn before any
		// mutation so the caller can shrink history and retry.
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		// Turn abandoned before the knowledge updater ran: no partial
		// mutation is applied.
		return nil, err
	}

	if err := e.commit(ctx, conversationID, sess, comp, turn, message, matches, extractions, selected, fellBack); err != nil {
		return nil, err
	}

	log.Infow("turn processed",
		"conversation", conversationID,
		"turn", turn,
		"triggers", len(matches),
		"selected", selectedIDs(selected),
		"fallback", fellBack,
		"payload_tokens", payload.Tokens)

	return &TurnResult{
		ConversationID: conversationID,
		Turn:           turn,
		Triggers:       matches,
		Selected:       selected,
		FellBack:       fellBack,
		Payload:        payload,
	}, nil
}

// commit applies all turn side effects at once: history push, emotional
// signal reinforcement, extracted facts, declared pattern mutations, and
// persistence.
func (e *Engine) commit(
	ctx context.Context,
	conversationID string,
	sess *session,
	comp composition.Vector,
	turn int,
	message string,
	matches []trigger.Match,
	extractions []trigger.Extraction,
	selected []selector.Selected,
	fellBack bool,
) error {
	sess.comp = comp

	for _, m := range matches {
		def, ok := e.catalog.Trigger(m.TriggerID)
		if !ok || def.Match.Signal == "" {
			continue
		}
		amount := 0.4 * m.Strength
		if m.EmotionalIntensity == trigger.IntensityExtreme {
			amount = 0.6
			sess.state.IncrementCounter("quality.extreme_intensity")
		}
		switch def.Match.Signal {
		case "frustration":
			sess.state.RaiseSignal("conversation.frustration_level", amount)
		case "confusion":
			sess.state.RaiseSignal("conversation.confusion_level", amount)
		}
	}

	for _, ex := range extractions {
		sess.state.SetFact(ex.Entity, ex.Attribute, ex.Value)
	}

	for _, sel := range selected {
		sess.state.RecordPattern(sel.Behavior.ID, turn)
		muts, declared := e.resolveMutations(sess.state, sel.Behavior)
		if len(muts) == 0 {
			continue
		}
		if err := sess.state.Apply(muts, declared); err != nil {
			// Catalog validation makes this unreachable for built-in
			// definitions; surface it rather than half-applying.
			return fmt.Errorf("pattern %s mutation rejected: %w", sel.Behavior.ID, err)
		}
	}
	if fellBack {
		sess.state.IncrementCounter("quality.fallbacks")
	}

	sess.history = append(sess.history, assembler.Turn{Role: "user", Text: message})

	if e.store != nil {
		if err := e.store.Save(ctx, conversationID, knowledge.Encode(sess.state)); err != nil {
			// Persistence is a collaborator, not the core: log and
			// continue rather than failing the turn.
			logging.Get(logging.CategoryEngine).Warnw("snapshot save failed",
				"conversation", conversationID, "error", err)
		}
	}
	return nil
}

// resolveMutations turns a behavior's declared mutation set into concrete
// values, resolving increment sentinels against current state.
func (e *Engine) resolveMutations(state *knowledge.State, b *catalog.BehaviorDef) (map[string]any, []string) {
	if len(b.Mutations) == 0 {
		return nil, nil
	}
	muts := make(map[string]any, len(b.Mutations))
	for dim, val := range b.Mutations {
		if val == catalog.MutationIncrement {
			cur, _ := state.Get(dim)
			if n, ok := cur.(int); ok {
				muts[dim] = n + 1
			}
			continue
		}
		muts[dim] = val
	}
	return muts, b.DeclaredMutations()
}

// RecordResponse appends the generated assistant response to the
// conversation history so later payloads carry it.
func (e *Engine) RecordResponse(conversationID, response string) {
	e.mu.Lock()
	sess, ok := e.sessions[conversationID]
	e.mu.Unlock()
	if !ok {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.history = append(sess.history, assembler.Turn{Role: "assistant", Text: response})
}

// ProcessBatch processes turns for independent conversations in
// parallel. Turns for the same conversation must not share a batch; the
// per-session lock serializes them if they do.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []TurnInput) ([]*TurnResult, error) {
	results := make([]*TurnResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := e.ProcessTurn(gctx, in.ConversationID, in.Message)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Restart resets a conversation to its initial composition and knowledge
// state. The only way the composition vector is ever reset.
func (e *Engine) Restart(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[conversationID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	sess.state = knowledge.New()
	sess.comp = composition.Initial()
	sess.history = nil
	sess.mu.Unlock()

	if e.store != nil {
		return e.store.Delete(ctx, conversationID)
	}
	return nil
}

// session returns the conversation's session, creating it (hydrated from
// the snapshot store when available) on first use.
func (e *Engine) session(ctx context.Context, conversationID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[conversationID]; ok {
		return sess, nil
	}

	sess := &session{
		state: knowledge.New(),
		comp:  composition.Initial(),
	}
	if e.store != nil {
		kv, ok, err := e.store.Load(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate conversation %s: %w", conversationID, err)
		}
		if ok {
			// Schema mismatches are repaired with defaults inside Decode.
			state, _ := knowledge.Decode(kv)
			sess.state = state
		}
	}
	e.sessions[conversationID] = sess
	return sess, nil
}

// Composition returns a copy of a conversation's current composition.
// Used by callers and tests to observe the mode mix.
func (e *Engine) Composition(conversationID string) (composition.Vector, bool) {
	e.mu.Lock()
	sess, ok := e.sessions[conversationID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.comp.Clone(), true
}

// Knowledge returns a defensive snapshot of a conversation's knowledge
// state.
func (e *Engine) Knowledge(conversationID string) (knowledge.Snapshot, bool) {
	e.mu.Lock()
	sess, ok := e.sessions[conversationID]
	e.mu.Unlock()
	if !ok {
		return knowledge.Snapshot{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.Snapshot(), true
}

// signalsFrom converts fired triggers into composition reinforcement
// signals: each match reinforces the dimensions of its trigger's affinity
// vector, scaled by match strength.
func signalsFrom(matches []trigger.Match, cat *catalog.Catalog) []composition.Signal {
	var signals []composition.Signal
	for _, m := range matches {
		def, ok := cat.Trigger(m.TriggerID)
		if !ok {
			continue
		}
		for dim, w := range def.Affinity {
			if w <= 0 {
				continue
			}
			signals = append(signals, composition.Signal{
				Dimension: composition.Dimension(dim),
				Strength:  m.Strength * w,
			})
		}
	}
	return signals
}

func selectedIDs(selected []selector.Selected) []string {
	out := make([]string, len(selected))
	for i, s := range selected {
		out[i] = s.Behavior.ID
	}
	return out
}
