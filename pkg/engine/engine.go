package engine

import (
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/loreweave/loreweave/pkg/errors"
	"github.com/loreweave/loreweave/pkg/logging"
	"github.com/loreweave/loreweave/pkg/lore"
	"github.com/loreweave/loreweave/pkg/tokens"
	"github.com/loreweave/loreweave/pkg/vars"
)

// MaxRecursionSteps is the hard cap on content-producing recursion passes.
// A configured limit above this is clamped down, never up.
const MaxRecursionSteps = 10

// Defaults are the engine-wide fallbacks entries inherit when their own
// tri-state fields are unset.
type Defaults struct {
	// ScanDepth is the default message window; 0 scans all messages.
	ScanDepth int
	// CaseSensitive is the default for entries without an explicit or
	// legacy case_sensitive setting.
	CaseSensitive bool
	// MatchWholeWords is the default whole-word boundary setting.
	MatchWholeWords bool
	// UseGroupScoring is the default for score-based group resolution.
	UseGroupScoring bool
}

// Engine evaluates lore books against conversation text. It is stateless
// across calls; all per-call state lives in the Request and the variable
// store.
type Engine struct {
	estimator tokens.Estimator
	defaults  Defaults
	log       *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithEstimator replaces the default heuristic token estimator.
func WithEstimator(est tokens.Estimator) Option {
	return func(e *Engine) {
		if est != nil {
			e.estimator = est
		}
	}
}

// WithDefaults sets the engine-wide entry fallbacks.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) {
		e.defaults = d
	}
}

// WithLogger routes engine logs somewhere other than the global logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an engine with a heuristic estimator and zero-value defaults.
func New(opts ...Option) *Engine {
	e := &Engine{
		estimator: tokens.NewHeuristic(),
		defaults:  Defaults{ScanDepth: 2},
		log:       logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request carries everything one evaluate call needs.
type Request struct {
	// Books to evaluate. At least one is required.
	Books []lore.Book

	// ScanText is a convenience single-blob scan input. When set it is
	// treated as the only scan message.
	ScanText string
	// ScanMessages is the conversation history, most recent first.
	ScanMessages []string
	// Context carries the opt-in context-text fields.
	Context ScanContext
	// Injections is scan-time injected text.
	Injections []ScanInjection

	// TokenBudget overrides the books' summed budgets when non-nil; a
	// non-positive value means unlimited.
	TokenBudget *int
	// Strategy orders output; empty defaults to sorted_evenly.
	Strategy InsertionStrategy
	// GenerationType gates entries via their trigger lists; empty
	// defaults to normal.
	GenerationType lore.GenerationType

	// MessageCount is the timed-effects clock: the number of messages in
	// the conversation so far.
	MessageCount int
	// VarStore persists timed-effect state; nil disables timed effects.
	VarStore vars.Store
	// TimedEffectsKey overrides DefaultTimedEffectsKey.
	TimedEffectsKey string

	// MinActivations keeps widening the scan window until at least this
	// many entries are selected. Mutually exclusive with recursive
	// scanning; recursion is force-disabled when both are configured.
	MinActivations int
	// MinActivationsDepthMax bounds the widened window; 0 means no bound
	// beyond the message count.
	MinActivationsDepthMax int

	// MaxRecursionSteps caps content-producing recursion passes; 0 or
	// anything above the hard cap means the hard cap.
	MaxRecursionSteps int

	// ForcedActivations override keyword matching for specific entries.
	ForcedActivations []ForcedActivation

	// Rand supplies probability rolls and group draws. Tests pass a
	// seeded source; nil gets a fresh time-seeded one.
	Rand Rand
}

type scanState int

const (
	scanDirect scanState = iota
	scanRecursive
	scanMinActivations
)

// evaluation is the per-call working state.
type evaluation struct {
	eng *Engine
	req *Request
	log *logging.Logger

	entries   []lore.Entry
	bookDepth map[string]*int // book name -> book-level scan depth

	buffer *scanBuffer
	timed  *TimedEffects
	forced *forcedIndex
	rng    Rand

	candidates map[string]*Candidate
	order      []string

	selectedGroups map[string]bool

	budget     *int
	used       int
	overflowed bool

	recursionEnabled bool
	recursionSteps   int
	stepCap          int
	delayLevel       int
	maxDelayLevel    int

	skew int
}

// Evaluate runs the multi-pass activation loop and returns the Result.
// It fails fast on caller misuse (no books, unknown generation type,
// strategy or selective logic) and never fails on entry-content oddities.
func (e *Engine) Evaluate(req Request) (*Result, error) {
	if len(req.Books) == 0 {
		return nil, errors.New(errors.NoBooksSupplied, "at least one book is required")
	}
	if req.GenerationType == "" {
		req.GenerationType = lore.GenNormal
	}
	if !lore.KnownGenerationTypes[req.GenerationType] {
		return nil, errors.WithFields(
			errors.New(errors.UnknownGenerationType, "unknown generation type"),
			errors.Fields{"generation_type": string(req.GenerationType)})
	}
	if req.Strategy == "" {
		req.Strategy = StrategySortedEvenly
	}
	if err := ValidateStrategy(req.Strategy); err != nil {
		return nil, err
	}

	evalID := uuid.NewString()
	log := e.log.WithFields(map[string]interface{}{"evaluation_id": evalID})

	ev := &evaluation{
		eng:            e,
		req:            &req,
		log:            log,
		bookDepth:      make(map[string]*int, len(req.Books)),
		candidates:     make(map[string]*Candidate),
		selectedGroups: make(map[string]bool),
		rng:            req.Rand,
	}
	if ev.rng == nil {
		ev.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	bookNames := make([]string, 0, len(req.Books))
	for _, book := range req.Books {
		bookNames = append(bookNames, book.Name)
		ev.bookDepth[book.Name] = book.ScanDepth
		if book.RecursiveScanning {
			ev.recursionEnabled = true
		}
		for _, entry := range book.Entries {
			if !entry.TriggersOn(req.GenerationType) {
				continue
			}
			if _, err := validLogic(entry.SelectiveLogic); err != nil {
				return nil, err
			}
			ev.entries = append(ev.entries, entry.WithAppliedDecorators(false))
		}
	}

	messages := req.ScanMessages
	if req.ScanText != "" {
		messages = []string{req.ScanText}
	}
	result := &Result{
		EvaluationID: evalID,
		Books:        bookNames,
		ScanText:     strings.Join(messages, "\n"),
		Strategy:     req.Strategy,
	}

	if len(ev.entries) == 0 {
		return result, nil
	}

	ev.budget = effectiveBudget(req.TokenBudget, req.Books)
	result.Budget = ev.budget

	// min_activations and recursion are mutually exclusive.
	if req.MinActivations > 0 && ev.recursionEnabled {
		log.Debug("min_activations configured; disabling recursive scanning")
		ev.recursionEnabled = false
	}

	ev.stepCap = MaxRecursionSteps
	if req.MaxRecursionSteps > 0 && req.MaxRecursionSteps < MaxRecursionSteps {
		ev.stepCap = req.MaxRecursionSteps
	}
	for _, entry := range ev.entries {
		if entry.DelayUntilRecursion > ev.maxDelayLevel {
			ev.maxDelayLevel = entry.DelayUntilRecursion
		}
	}
	if !ev.recursionEnabled {
		ev.maxDelayLevel = 0
	}

	ev.timed = NewTimedEffects(req.VarStore, req.TimedEffectsKey, req.MessageCount, ev.entries)
	ev.timed.Check()
	ev.forced = indexForced(req.ForcedActivations)
	ev.buffer = newScanBuffer(messages, req.Injections, req.Context)

	if err := ev.run(); err != nil {
		return nil, err
	}

	var selectedEntries []lore.Entry
	for _, key := range ev.order {
		c := ev.candidates[key]
		result.Candidates = append(result.Candidates, c)
		if c.Selected {
			selectedEntries = append(selectedEntries, c.Entry)
		}
	}
	result.UsedTokens = ev.used
	ev.timed.SetEffects(selectedEntries)

	log.Debugw("evaluation finished", map[string]interface{}{
		"candidates": len(result.Candidates),
		"selected":   len(selectedEntries),
		"tokens":     ev.used,
	})
	return result, nil
}

func validLogic(l lore.SelectiveLogic) (lore.SelectiveLogic, error) {
	switch l {
	case lore.LogicAndAny, lore.LogicAndAll, lore.LogicNotAny, lore.LogicNotAll:
		return l, nil
	}
	return "", errors.WithFields(
		errors.New(errors.UnknownSelectiveLogic, "unknown selective logic"),
		errors.Fields{"selective_logic": string(l)})
}

// effectiveBudget resolves the token budget: an explicit override wins, else
// the sum of the books' positive budgets. Non-positive means unlimited.
func effectiveBudget(override *int, books []lore.Book) *int {
	if override != nil {
		if *override <= 0 {
			return nil
		}
		v := *override
		return &v
	}
	sum := 0
	for _, b := range books {
		if b.TokenBudget != nil && *b.TokenBudget > 0 {
			sum += *b.TokenBudget
		}
	}
	if sum <= 0 {
		return nil
	}
	return &sum
}

// run is the main scan loop. Each iteration is one pass; the loop ends when
// a pass activates nothing new and no recursion or min-activation
// escalation applies, or when the budget overflows.
func (ev *evaluation) run() error {
	for {
		state := ev.passState()
		activated, anyNew := ev.scanPass(state)

		var passRecursion []string
		if len(activated) > 0 {
			ev.sortPass(activated)
			survivors := ev.resolveGroups(activated)
			passRecursion = ev.accept(survivors)
		}

		if ev.overflowed {
			return nil
		}

		if ev.recursionEnabled {
			if len(passRecursion) > 0 && ev.recursionSteps < ev.stepCap {
				ev.buffer.appendRecursion(passRecursion)
				ev.recursionSteps++
				// The delay-level clock ticks once per recursion pass,
				// so level-1 entries are eligible as soon as recursion
				// begins.
				if ev.delayLevel < ev.maxDelayLevel {
					ev.delayLevel++
				}
				continue
			}
			// Levels deeper than there were recursion passes still get
			// their chance once activations stall.
			if !anyNew && ev.delayLevel < ev.maxDelayLevel {
				ev.delayLevel++
				continue
			}
		}

		if ev.req.MinActivations > 0 && ev.selectedCount() < ev.req.MinActivations && ev.canWidenScan() {
			ev.skew++
			continue
		}

		// Without an escalation the next pass would scan the same text
		// and nothing further can change.
		return nil
	}
}

func (ev *evaluation) passState() scanState {
	if ev.recursionEnabled && (ev.buffer.hasRecursion() || ev.delayLevel > 0) {
		return scanRecursive
	}
	if ev.req.MinActivations > 0 && ev.skew > 0 {
		return scanMinActivations
	}
	return scanDirect
}

// scanPass walks every eligible entry once and records the candidates it
// activates under the current scan state. anyNew reports whether any
// candidate appeared for the first time; re-activations alone do not keep
// the scan loop alive.
func (ev *evaluation) scanPass(state scanState) (activated []*Candidate, anyNew bool) {
	recursive := state == scanRecursive
	includeRecursion := state != scanMinActivations

	before := len(ev.order)
	for _, entry := range ev.entries {
		if !entry.Enabled {
			continue
		}
		if c, ok := ev.candidates[entry.Key()]; ok {
			if c.Selected || c.DroppedReason == DropProbabilityFailed {
				continue
			}
			if ev.overflowed && !c.Entry.IgnoreBudget {
				continue
			}
		}

		stickyActive := ev.timed.StickyActive(entry)
		if ev.timed.DelayActive(entry) {
			continue
		}
		if ev.timed.CooldownActive(entry) && !stickyActive {
			continue
		}
		if recursive && entry.ExcludeRecursion && !stickyActive {
			continue
		}
		if entry.DelayUntilRecursion > 0 && (!recursive || ev.delayLevel < entry.DelayUntilRecursion) {
			continue
		}

		if rec, ok := ev.forced.lookup(entry); ok {
			forcedEntry := applyForcedOverrides(entry, rec)
			activated = append(activated, ev.record(forcedEntry, ActivationForced, nil, nil))
			continue
		}
		if entry.Constant {
			activated = append(activated, ev.record(entry, ActivationConstant, nil, nil))
			continue
		}
		if stickyActive {
			activated = append(activated, ev.record(entry, ActivationSticky, nil, nil))
			continue
		}

		c, ok := ev.keywordActivate(entry, recursive, includeRecursion)
		if ok {
			activated = append(activated, c)
		}
	}
	return activated, len(ev.order) > before
}

// keywordActivate runs the matcher against the entry's effective scan text
// and applies the keyword-activation gates.
func (ev *evaluation) keywordActivate(entry lore.Entry, recursive, includeRecursion bool) (*Candidate, bool) {
	if entry.DontActivate {
		return nil, false
	}
	if entry.ActivateOnlyAfter > 0 && ev.req.MessageCount < entry.ActivateOnlyAfter {
		return nil, false
	}
	if entry.ActivateOnlyEvery > 0 && ev.req.MessageCount%entry.ActivateOnlyEvery != 0 {
		return nil, false
	}
	if len(entry.Keys) == 0 {
		return nil, false
	}

	text := ev.buffer.textFor(entry, ev.effectiveDepth(entry), includeRecursion)
	if text == "" {
		return nil, false
	}

	caseSensitive := entry.CaseSensitiveOr(ev.eng.defaults.CaseSensitive)
	wholeWords := entry.MatchWholeWordsOr(ev.eng.defaults.MatchWholeWords)

	primary := MatchingKeys(entry.Keys, text, caseSensitive, wholeWords, entry.UseRegex)
	if len(primary) == 0 {
		return nil, false
	}
	if len(entry.ExcludeKeys) > 0 &&
		len(MatchingKeys(entry.ExcludeKeys, text, caseSensitive, wholeWords, entry.UseRegex)) > 0 {
		return nil, false
	}

	var secondary []string
	if entry.Selective && len(entry.SecondaryKeys) > 0 {
		secondary = MatchingKeys(entry.SecondaryKeys, text, caseSensitive, wholeWords, entry.UseRegex)
		if !secondaryLogicSatisfied(entry.SelectiveLogic, len(secondary), len(entry.SecondaryKeys)) {
			return nil, false
		}
	}

	activation := ActivationDirect
	final := entry
	if recursive && ev.buffer.hasRecursion() {
		activation = ActivationRecursive
		final = entry.WithAppliedDecorators(true)
	}
	return ev.record(final, activation, primary, secondary), true
}

func secondaryLogicSatisfied(logic lore.SelectiveLogic, matched, total int) bool {
	switch logic {
	case lore.LogicAndAny:
		return matched > 0
	case lore.LogicAndAll:
		return matched == total
	case lore.LogicNotAny:
		return matched == 0
	case lore.LogicNotAll:
		return matched != total
	default:
		return false
	}
}

// effectiveDepth resolves the message window for an entry: its own override
// wins untouched; otherwise the book or engine default widened by the
// min-activations skew. 0 stands for "all messages".
func (ev *evaluation) effectiveDepth(entry lore.Entry) int {
	if entry.ScanDepth != nil {
		return *entry.ScanDepth
	}
	base := 0
	if d := ev.bookDepth[entry.BookName]; d != nil {
		base = *d
	} else if ev.eng.defaults.ScanDepth > 0 {
		base = ev.eng.defaults.ScanDepth
	}
	if base <= 0 {
		base = len(ev.buffer.messages)
	}
	return base + ev.skew
}

// record creates or refreshes the candidate for an entry. Candidates are
// never duplicated; re-activation on a later pass overwrites the activation
// outcome in place.
func (ev *evaluation) record(entry lore.Entry, activation ActivationType, primary, secondary []string) *Candidate {
	key := entry.Key()
	c, ok := ev.candidates[key]
	if !ok {
		c = &Candidate{}
		ev.candidates[key] = c
		ev.order = append(ev.order, key)
	}
	c.Entry = entry
	c.ActivationType = activation
	c.MatchedPrimaryKeys = primary
	c.MatchedSecondaryKeys = secondary
	c.DroppedReason = ""
	return c
}

// sortPass orders a pass's activated candidates for acceptance: sticky
// first, then descending insertion order, then book name and uid for a
// deterministic tie-break.
func (ev *evaluation) sortPass(cands []*Candidate) {
	sticky := func(c *Candidate) int {
		if c.ActivationType == ActivationSticky || ev.timed.StickyActive(c.Entry) {
			return 0
		}
		return 1
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if sa, sb := sticky(a), sticky(b); sa != sb {
			return sa < sb
		}
		if a.Entry.InsertionOrder != b.Entry.InsertionOrder {
			return a.Entry.InsertionOrder > b.Entry.InsertionOrder
		}
		if a.Entry.BookName != b.Entry.BookName {
			return a.Entry.BookName < b.Entry.BookName
		}
		return a.Entry.UID < b.Entry.UID
	})
}

// accept runs probability rolls and budget accounting over the pass's
// group-filtered candidates, in sorted order. It returns the accepted
// entries' content destined for the recursion buffer.
func (ev *evaluation) accept(cands []*Candidate) []string {
	var recursionContent []string
	for _, c := range cands {
		if ev.overflowed && !c.Entry.IgnoreBudget {
			c.Selected = false
			c.DroppedReason = DropBudgetExhausted
			continue
		}

		if !ev.probabilityPasses(c) {
			c.Selected = false
			c.DroppedReason = DropProbabilityFailed
			ev.log.Debugw("probability roll failed", map[string]interface{}{
				"uid": c.Entry.UID, "book": c.Entry.BookName, "probability": c.Entry.Probability,
			})
			continue
		}

		c.TokenEstimate = ev.eng.estimator.Estimate(c.Entry.Content)
		if ev.budget != nil && !c.Entry.IgnoreBudget && ev.used+c.TokenEstimate > *ev.budget {
			c.Selected = false
			c.DroppedReason = DropBudgetExhausted
			ev.overflowed = true
			ev.log.Debugw("token budget exhausted", map[string]interface{}{
				"uid": c.Entry.UID, "book": c.Entry.BookName, "used": ev.used, "budget": *ev.budget,
			})
			continue
		}

		c.Selected = true
		c.DroppedReason = ""
		ev.used += c.TokenEstimate
		for _, g := range c.Entry.Groups() {
			ev.selectedGroups[g] = true
		}
		if ev.recursionEnabled && !c.Entry.PreventRecursion && strings.TrimSpace(c.Entry.Content) != "" {
			recursionContent = append(recursionContent, c.Entry.Content)
		}
	}
	return recursionContent
}

// probabilityPasses rolls uniform [0,100) against the entry's probability.
// Sticky-active entries and entries without probability configured always
// pass. A failing entry is blacklisted for the rest of the evaluation.
func (ev *evaluation) probabilityPasses(c *Candidate) bool {
	e := c.Entry
	if !e.UseProbability || e.Probability >= 100 {
		return true
	}
	if c.ActivationType == ActivationSticky || ev.timed.StickyActive(e) {
		return true
	}
	return ev.rng.Float64()*100 <= float64(e.Probability)
}

func (ev *evaluation) selectedCount() int {
	n := 0
	for _, c := range ev.candidates {
		if c.Selected {
			n++
		}
	}
	return n
}

// canWidenScan checks the min-activations escalation bounds: the next skew
// must stay within the configured depth max and the conversation length.
func (ev *evaluation) canWidenScan() bool {
	next := ev.skew + 1
	if ev.req.MinActivationsDepthMax > 0 && next > ev.req.MinActivationsDepthMax {
		return false
	}
	base := ev.minScanBase()
	if base <= 0 {
		return false // already scanning everything
	}
	return base+next <= len(ev.buffer.messages)
}

// minScanBase is the narrowest effective book window, so widening keeps
// going as long as at least one book has messages left to see. Book-level
// depths override the engine default; non-positive depths already cover
// the full conversation.
func (ev *evaluation) minScanBase() int {
	min := 0
	for _, depth := range ev.bookDepth {
		base := ev.eng.defaults.ScanDepth
		if depth != nil {
			base = *depth
		}
		if base <= 0 {
			return 0
		}
		if min == 0 || base < min {
			min = base
		}
	}
	if min == 0 {
		min = ev.eng.defaults.ScanDepth
	}
	return min
}
