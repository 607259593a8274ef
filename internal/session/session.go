package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"narrative-server/internal/generation"
	"narrative-server/internal/models"
	"narrative-server/internal/storytree"
	"narrative-server/internal/websocket"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// FallbackOptions подставляются, если генератор вариантов не справился.
var FallbackOptions = []string{"Continue forward", "Turn back"}

const (
	maxMessages     = 200
	maxTitleRunes   = 60
	sideEffectLimit = 5 * time.Second
)

// Session - одна игровая сессия: фаза, живой снимок, дерево решений и чат.
// Все изменения состояния проходят через методы-переходы под s.mu.
// Внешние генераторы вызываются без блокировки, результат применяется,
// только если номер генерации не изменился.
type Session struct {
	id     uuid.UUID
	deps   Deps
	logger *zap.Logger

	mu            sync.Mutex
	phase         models.Phase
	title         string
	initialPrompt string
	storyID       *uuid.UUID
	snapshot      models.StorySnapshot
	tree          *models.TreeNode
	pending       *models.Decision
	endingImage   string
	messages      []models.ChatMessage
	seq           uint64
	storyEpoch    uint64
	closed        bool
	stopComments  context.CancelFunc
	entropy       *rand.Rand

	// saveMu упорядочивает SaveStory: второе сохранение видит id, полученный первым.
	saveMu     sync.Mutex
	lastActive atomic.Int64
}

// New создает сессию в фазе Landing.
func New(id uuid.UUID, deps Deps) *Session {
	deps = deps.withDefaults()
	s := &Session{
		id:      id,
		deps:    deps,
		logger:  deps.Logger.Named("Session").With(zap.String("sessionID", id.String())),
		phase:   models.PhaseLanding,
		tree:    storytree.NewRoot(),
		entropy: rand.New(rand.NewSource(deps.Now().UnixNano())),
	}
	s.snapshot = emptySnapshot()
	s.touch()
	return s
}

func emptySnapshot() models.StorySnapshot {
	return models.StorySnapshot{FullHistory: []string{}, Decisions: []models.Decision{}}
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() uuid.UUID { return s.id }

// LastActive возвращает время последнего обращения к сессии.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(s.deps.Now().UnixNano())
}

// StartStory начинает новую историю с завязки prompt. Допустима в любой фазе.
func (s *Session) StartStory(ctx context.Context, prompt string) (err error) {
	defer func() { recordAction("start", err) }()
	prompt = strings.TrimSpace(prompt)

	s.mu.Lock()
	if err := s.checkLocked("start a story"); err != nil {
		s.mu.Unlock()
		return err
	}
	if prompt == "" {
		s.mu.Unlock()
		return s.reject(fmt.Errorf("%w: prompt is required", models.ErrInvalidInput))
	}
	s.cancelCommentsLocked()
	released := s.snapshot.NarrationHandle
	s.phase = models.PhaseStory
	s.title = ""
	s.initialPrompt = prompt
	s.storyID = nil
	s.storyEpoch++
	s.snapshot = emptySnapshot()
	s.tree = storytree.NewRoot()
	s.pending = nil
	s.endingImage = ""
	s.messages = nil
	s.addMessageLocked(models.MessageUser, prompt)
	seq := s.nextSeqLocked()
	s.mu.Unlock()

	s.release(released)
	s.publish(ctx, models.StoryEvent{Type: models.EventStoryStarted})
	s.notify("phase_changed", map[string]interface{}{"phase": models.PhaseStory})

	return s.generateOpening(ctx, seq, prompt)
}

// MakeDecision записывает решение читателя и генерирует следующий сегмент.
// availableOptions - варианты, показанные читателю; пусто - берутся варианты снимка.
// Пока сегмент не получен, решение остается ожидающим: повторный вызов заменяет
// его, а RetryDecision повторяет генерацию для него же.
func (s *Session) MakeDecision(ctx context.Context, text string, availableOptions []string) (err error) {
	defer func() { recordAction("decision", err) }()
	text = strings.TrimSpace(text)

	s.mu.Lock()
	if err := s.requirePhaseLocked("make a decision", models.PhaseStory); err != nil {
		s.mu.Unlock()
		return err
	}
	if text == "" {
		s.mu.Unlock()
		return s.reject(fmt.Errorf("%w: decision text is required", models.ErrInvalidInput))
	}
	if len(s.snapshot.FullHistory) == 0 {
		s.mu.Unlock()
		return s.reject(fmt.Errorf("%w: the opening segment has not been generated yet", models.ErrInvalidInput))
	}

	options := availableOptions
	if len(options) == 0 {
		options = s.snapshot.AvailableOptions
	}
	preceding := storytree.CloneSnapshot(s.snapshot)
	preceding.AvailableOptions = withFreeForm(options)
	preceding.NarrationHandle = ""
	decision := models.Decision{
		ID:                ulid.MustNew(ulid.Timestamp(s.deps.Now()), s.entropy).String(),
		Text:              text,
		Timestamp:         s.deps.Now().UnixMilli(),
		PrecedingSnapshot: &preceding,
	}
	s.pending = &decision
	s.addMessageLocked(models.MessageUser, text)
	seq := s.nextSeqLocked()
	s.mu.Unlock()

	return s.advance(ctx, seq, decision)
}

// RetryDecision повторяет генерацию для ожидающего решения или для
// открывающего сегмента, если его получить не удалось.
func (s *Session) RetryDecision(ctx context.Context) (err error) {
	defer func() { recordAction("retry", err) }()

	s.mu.Lock()
	if err := s.requirePhaseLocked("retry", models.PhaseStory); err != nil {
		s.mu.Unlock()
		return err
	}
	switch {
	case s.pending != nil:
		decision := *s.pending
		seq := s.nextSeqLocked()
		s.addMessageLocked(models.MessageSystem, "Retrying: "+decision.Text)
		s.mu.Unlock()
		return s.advance(ctx, seq, decision)

	case len(s.snapshot.FullHistory) == 0 && s.initialPrompt != "":
		prompt := s.initialPrompt
		seq := s.nextSeqLocked()
		s.addMessageLocked(models.MessageSystem, "Retrying the opening")
		s.mu.Unlock()
		return s.generateOpening(ctx, seq, prompt)

	default:
		s.mu.Unlock()
		return s.reject(models.ErrNoPendingDecision)
	}
}

// EndStory замораживает дерево и переводит сессию в фазу Ending.
// Ошибка финальной иллюстрации не мешает переходу.
func (s *Session) EndStory(ctx context.Context) (err error) {
	defer func() { recordAction("end", err) }()

	s.mu.Lock()
	if err := s.requirePhaseLocked("end the story", models.PhaseStory); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cancelCommentsLocked()
	s.phase = models.PhaseEnding
	s.pending = nil
	s.endingImage = ""
	s.addMessageLocked(models.MessageSystem, "The story has ended")
	seq := s.nextSeqLocked()
	prompt := generation.EndingImagePrompt(s.initialPrompt, s.snapshot.FullHistory)
	depth := s.snapshot.Depth
	s.mu.Unlock()

	s.publish(ctx, models.StoryEvent{Type: models.EventStoryEnded, Depth: depth})
	s.notify("phase_changed", map[string]interface{}{"phase": models.PhaseEnding})

	if s.deps.Imaginer == nil {
		return nil
	}
	image, imgErr := s.deps.Imaginer.Imagine(ctx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		staleGenerationsTotal.Inc()
		return nil
	}
	if imgErr != nil {
		s.logger.Warn("Ending image generation failed", zap.Error(imgErr))
		s.addMessageLocked(models.MessageWarning, "The ending illustration could not be drawn")
		return nil
	}
	s.endingImage = image
	s.notifyLocked("ending_image", map[string]interface{}{"ready": true})
	return nil
}

// ReplayFromNode продолжает игру со снимка узла дерева. Дерево не меняется.
func (s *Session) ReplayFromNode(ctx context.Context, nodeID string) (err error) {
	defer func() { recordAction("replay", err) }()

	s.mu.Lock()
	if err := s.requirePhaseLocked("replay", models.PhaseEnding); err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot, err := storytree.ReplayFrom(s.tree, nodeID)
	if err != nil {
		s.logger.Warn("Replay rejected", zap.String("nodeID", nodeID), zap.Error(err))
		s.addMessageLocked(models.MessageWarning, replayWarning(err))
		s.mu.Unlock()
		return err
	}
	released := s.snapshot.NarrationHandle
	snapshot.NarrationHandle = ""
	s.snapshot = snapshot
	s.phase = models.PhaseStory
	s.pending = nil
	s.endingImage = ""
	s.addMessageLocked(models.MessageSystem, fmt.Sprintf("Resuming from depth %d", snapshot.Depth))
	seq := s.nextSeqLocked()
	s.mu.Unlock()

	s.release(released)
	s.publish(ctx, models.StoryEvent{Type: models.EventStoryReplayed, Depth: snapshot.Depth, NodeID: nodeID})
	s.notify("phase_changed", map[string]interface{}{"phase": models.PhaseStory})

	return s.resumeLive(ctx, seq)
}

// LoadStory загружает сохраненную историю. При ошибке сессия не меняется.
func (s *Session) LoadStory(ctx context.Context, storyID uuid.UUID) (err error) {
	defer func() { recordAction("load", err) }()

	s.mu.Lock()
	if err := s.requirePhaseLocked("load a story", models.PhaseLanding, models.PhaseEnding); err != nil {
		s.mu.Unlock()
		return err
	}
	seq := s.seq
	s.mu.Unlock()

	if s.deps.Stories == nil {
		return s.reject(fmt.Errorf("%w: %w: story storage", models.ErrPersistenceFailed, models.ErrMissingConfiguration))
	}
	story, err := s.deps.Stories.Get(ctx, storyID)
	if err == nil {
		var restored storytree.RestoredStory
		restored, err = storytree.FromPersisted(*story)
		if err == nil {
			return s.applyLoaded(ctx, seq, story, restored)
		}
	}
	s.logger.Error("Failed to load story", zap.String("storyID", storyID.String()), zap.Error(err))
	return s.reject(fmt.Errorf("%w: load story %s: %w", models.ErrPersistenceFailed, storyID, err))
}

func (s *Session) applyLoaded(ctx context.Context, seq uint64, story *models.PersistedStory, restored storytree.RestoredStory) error {
	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		staleGenerationsTotal.Inc()
		return models.ErrStaleGeneration
	}
	s.cancelCommentsLocked()
	released := s.snapshot.NarrationHandle
	id := story.ID
	s.phase = models.PhaseStory
	s.title = story.Title
	s.initialPrompt = story.InitialPrompt
	s.storyID = &id
	s.storyEpoch++
	s.snapshot = restored.Snapshot
	s.tree = restored.Tree
	s.pending = nil
	s.endingImage = ""
	s.messages = nil
	s.addMessageLocked(models.MessageSystem, fmt.Sprintf("Loaded %q", story.Title))
	if restored.TreeRebuilt {
		s.logger.Warn("Stored tree is corrupt, rebuilt from the decision log", zap.String("storyID", id.String()))
		s.addMessageLocked(models.MessageWarning, "The saved tree was damaged and has been rebuilt")
	}
	s.addMessageLocked(models.MessageStory, restored.Snapshot.CurrentSegment)
	next := s.nextSeqLocked()
	depth := restored.Snapshot.Depth
	s.mu.Unlock()

	s.release(released)
	s.publish(ctx, models.StoryEvent{Type: models.EventStoryLoaded, StoryID: &id, Depth: depth})
	s.notify("phase_changed", map[string]interface{}{"phase": models.PhaseStory})

	return s.resumeLive(ctx, next)
}

// SaveStory сохраняет историю: первый раз создает документ, потом обновляет его.
// При ошибке состояние сессии не меняется. Если за время записи сессия перешла
// к другой истории, id и название к ней не привязываются (ErrStaleGeneration).
func (s *Session) SaveStory(ctx context.Context, title string) (id uuid.UUID, err error) {
	defer func() { recordAction("save", err) }()
	title = strings.TrimSpace(title)

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if err := s.requirePhaseLocked("save", models.PhaseStory, models.PhaseEnding); err != nil {
		s.mu.Unlock()
		return uuid.Nil, err
	}
	if len(s.snapshot.FullHistory) == 0 {
		s.mu.Unlock()
		return uuid.Nil, s.reject(fmt.Errorf("%w: nothing to save yet", models.ErrInvalidInput))
	}
	if title == "" {
		title = s.title
	}
	if title == "" {
		title = defaultTitle(s.initialPrompt)
	}
	persisted, err := storytree.ToPersisted(title, s.initialPrompt, s.snapshot, s.tree, s.deps.Now())
	var existing *uuid.UUID
	if s.storyID != nil {
		existingID := *s.storyID
		existing = &existingID
	}
	depth := s.snapshot.Depth
	epoch := s.storyEpoch
	s.mu.Unlock()

	if err == nil {
		id, err = s.store(ctx, existing, &persisted)
	}
	if err != nil {
		s.logger.Error("Failed to save story", zap.Error(err))
		return uuid.Nil, s.reject(fmt.Errorf("%w: save story: %w", models.ErrPersistenceFailed, err))
	}

	s.mu.Lock()
	if s.storyEpoch != epoch {
		s.mu.Unlock()
		staleGenerationsTotal.Inc()
		s.logger.Warn("Session moved to another story while saving", zap.String("storyID", id.String()))
		s.publish(ctx, models.StoryEvent{Type: models.EventStorySaved, StoryID: &id, Depth: depth})
		return uuid.Nil, fmt.Errorf("%w: story %s was saved after the session switched stories", models.ErrStaleGeneration, id)
	}
	s.storyID = &id
	s.title = title
	s.addMessageLocked(models.MessageSystem, fmt.Sprintf("Saved %q", title))
	s.mu.Unlock()

	s.publish(ctx, models.StoryEvent{Type: models.EventStorySaved, StoryID: &id, Depth: depth})
	return id, nil
}

func (s *Session) store(ctx context.Context, existing *uuid.UUID, persisted *models.PersistedStory) (uuid.UUID, error) {
	if s.deps.Stories == nil {
		return uuid.Nil, fmt.Errorf("story storage: %w", models.ErrMissingConfiguration)
	}
	if existing != nil {
		err := s.deps.Stories.Update(ctx, *existing, models.StoryUpdate{
			Title:          &persisted.Title,
			FullHistory:    persisted.FullHistory,
			Decisions:      persisted.Decisions,
			SerializedTree: persisted.SerializedTree,
		})
		if err == nil {
			return *existing, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return uuid.Nil, err
		}
		// Документ удалили снаружи: сохраняем заново.
		s.logger.Info("Saved story is gone, creating a new one", zap.String("storyID", existing.String()))
	}
	return s.deps.Stories.Save(ctx, persisted)
}

// View возвращает read-only проекцию состояния.
func (s *Session) View() models.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() models.SessionView {
	view := models.SessionView{
		ID:            s.id,
		Phase:         s.phase,
		Title:         s.title,
		InitialPrompt: s.initialPrompt,
		Snapshot: models.SnapshotView{
			CurrentSegment:   s.snapshot.CurrentSegment,
			FullHistory:      append([]string{}, s.snapshot.FullHistory...),
			Decisions:        storytree.Flatten(s.snapshot.Decisions),
			Depth:            s.snapshot.Depth,
			AvailableOptions: append([]string(nil), s.snapshot.AvailableOptions...),
			NarrationHandle:  s.snapshot.NarrationHandle,
		},
		EndingImage: s.endingImage,
		Messages:    append([]models.ChatMessage{}, s.messages...),
	}
	if s.storyID != nil {
		id := *s.storyID
		view.StoryID = &id
	}
	if s.pending != nil {
		flat := storytree.FlattenDecision(*s.pending, s.snapshot.Depth)
		view.PendingDecision = &flat
	}
	return view
}

// Tree возвращает копию дерева решений.
func (s *Session) Tree() *models.TreeNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return storytree.Clone(s.tree)
}

// Phase возвращает текущую фазу.
func (s *Session) Phase() models.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Close останавливает реплики, отменяет незавершенные генерации и освобождает озвучку.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelCommentsLocked()
	s.nextSeqLocked()
	released := s.snapshot.NarrationHandle
	s.snapshot.NarrationHandle = ""
	s.mu.Unlock()

	s.release(released)
	s.logger.Debug("Session closed")
}

// generateOpening получает открывающий сегмент.
func (s *Session) generateOpening(ctx context.Context, seq uint64, prompt string) error {
	segment, err := s.collectSegment(ctx, seq, prompt, "")
	if err != nil {
		return s.generationFailed(seq, err, "The story could not begin. Try again.")
	}
	options, handle := s.prepareSegment(ctx, segment)

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return s.discard(handle)
	}
	s.snapshot = models.StorySnapshot{
		CurrentSegment:   segment,
		FullHistory:      []string{segment},
		Decisions:        []models.Decision{},
		AvailableOptions: options.values,
		NarrationHandle:  handle.value,
	}
	s.tree = storytree.Merge(s.tree, storytree.BuildTree(nil, s.snapshot.FullHistory, &s.snapshot))
	s.applySegmentLocked(segment, options, handle)
	s.mu.Unlock()
	return nil
}

// advance генерирует сегмент для решения и перестраивает дерево из полного журнала.
func (s *Session) advance(ctx context.Context, seq uint64, decision models.Decision) error {
	preceding := decision.PrecedingSnapshot
	segment, err := s.collectSegment(ctx, seq, decision.Text, preceding.CurrentSegment)
	if err != nil {
		return s.generationFailed(seq, err, "The story could not continue. Retry to regenerate this part.")
	}
	options, handle := s.prepareSegment(ctx, segment)

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return s.discard(handle)
	}
	decisions := append(append([]models.Decision{}, preceding.Decisions...), decision)
	history := append(append([]string{}, preceding.FullHistory...), segment)
	released := s.snapshot.NarrationHandle
	s.snapshot = models.StorySnapshot{
		CurrentSegment:   segment,
		FullHistory:      history,
		Decisions:        decisions,
		Depth:            len(decisions),
		AvailableOptions: options.values,
		NarrationHandle:  handle.value,
	}
	s.tree = storytree.Merge(s.tree, storytree.BuildTree(decisions, history, &s.snapshot))
	s.pending = nil
	s.applySegmentLocked(segment, options, handle)
	depth := s.snapshot.Depth
	s.mu.Unlock()

	s.release(released)
	s.publish(ctx, models.StoryEvent{Type: models.EventDecisionMade, Depth: depth, DecisionText: decision.Text})
	return nil
}

// resumeLive дозапрашивает озвучку и, при необходимости, варианты для
// восстановленного снимка после повтора или загрузки.
func (s *Session) resumeLive(ctx context.Context, seq uint64) error {
	s.mu.Lock()
	segment := s.snapshot.CurrentSegment
	needOptions := len(s.snapshot.AvailableOptions) == 0
	s.mu.Unlock()

	var options optionSet
	if needOptions {
		options = s.nextOptions(ctx, segment)
	}
	handle := s.narrate(ctx, segment)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		_ = s.discardLocked(handle)
		return models.ErrStaleGeneration
	}
	if needOptions {
		s.snapshot.AvailableOptions = options.values
		if options.fallback {
			s.addMessageLocked(models.MessageWarning, "Could not suggest options, showing defaults")
		}
	}
	s.snapshot.NarrationHandle = handle.value
	if handle.err != nil {
		s.addMessageLocked(models.MessageWarning, "Narration is unavailable for this part")
	}
	s.startCommentsLocked()
	s.notifyLocked("session_updated", s.viewLocked())
	return nil
}

// applySegmentLocked завершает применение нового сегмента: чат, реплики, push.
func (s *Session) applySegmentLocked(segment string, options optionSet, handle narration) {
	s.addMessageLocked(models.MessageStory, segment)
	if options.fallback {
		s.addMessageLocked(models.MessageWarning, "Could not suggest options, showing defaults")
	}
	if handle.err != nil {
		s.addMessageLocked(models.MessageWarning, "Narration is unavailable for this part")
	}
	s.startCommentsLocked()
	s.notifyLocked("session_updated", s.viewLocked())
}

func (s *Session) collectSegment(ctx context.Context, seq uint64, prompt, precedingText string) (string, error) {
	if s.deps.Narrative == nil {
		return "", fmt.Errorf("%w: %w: narrative generator", models.ErrGenerationFailed, models.ErrMissingConfiguration)
	}
	var b strings.Builder
	for chunk, err := range s.deps.Narrative.Generate(ctx, prompt, precedingText) {
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
		s.notify("segment_chunk", map[string]interface{}{"seq": seq, "text": chunk})
	}
	segment := strings.TrimSpace(b.String())
	if segment == "" {
		return "", fmt.Errorf("%w: empty segment", models.ErrGenerationFailed)
	}
	return segment, nil
}

type optionSet struct {
	values   []string
	fallback bool
}

// nextOptions возвращает два варианта и FreeFormOption, при ошибке - FallbackOptions.
func (s *Session) nextOptions(ctx context.Context, segment string) optionSet {
	if s.deps.Options != nil {
		options, err := s.deps.Options.GenerateOptions(ctx, segment)
		if err == nil && len(options) > 0 {
			return optionSet{values: withFreeForm(options)}
		}
		s.logger.Warn("Option generation failed, using fallback", zap.Error(err))
	}
	optionFallbacksTotal.Inc()
	return optionSet{values: withFreeForm(FallbackOptions), fallback: true}
}

type narration struct {
	value string
	err   error
}

func (s *Session) narrate(ctx context.Context, segment string) narration {
	if s.deps.Narrator == nil {
		return narration{err: models.ErrMissingConfiguration}
	}
	handle, err := s.deps.Narrator.Narrate(ctx, segment)
	if err != nil {
		s.logger.Warn("Narration failed, continuing text-only", zap.Error(err))
		return narration{err: err}
	}
	return narration{value: handle}
}

func (s *Session) prepareSegment(ctx context.Context, segment string) (optionSet, narration) {
	return s.nextOptions(ctx, segment), s.narrate(ctx, segment)
}

func (s *Session) generationFailed(seq uint64, err error, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq {
		staleGenerationsTotal.Inc()
		return models.ErrStaleGeneration
	}
	s.logger.Error("Generation failed", zap.Error(err))
	if errors.Is(err, models.ErrMissingConfiguration) {
		message = "Story generation is not configured on this server"
	}
	s.addMessageLocked(models.MessageError, message)
	return err
}

// discard освобождает ресурсы устаревшего результата генерации.
func (s *Session) discard(h narration) error {
	s.logger.Info("Discarding stale generation result")
	staleGenerationsTotal.Inc()
	s.release(h.value)
	return models.ErrStaleGeneration
}

func (s *Session) discardLocked(h narration) error {
	staleGenerationsTotal.Inc()
	if h.value != "" {
		go s.release(h.value)
	}
	return models.ErrStaleGeneration
}

func (s *Session) release(handle string) {
	if handle == "" || s.deps.Narrator == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectLimit)
	defer cancel()
	if err := s.deps.Narrator.Release(ctx, handle); err != nil {
		s.logger.Warn("Failed to release narration", zap.String("handle", handle), zap.Error(err))
	}
}

// publish отправляет событие. Ошибка публикации только логируется.
func (s *Session) publish(ctx context.Context, event models.StoryEvent) {
	if s.deps.Events == nil {
		return
	}
	event.SessionID = s.id
	event.OccurredAt = s.deps.Now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectLimit)
	defer cancel()
	if err := s.deps.Events.PublishStoryEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish story event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (s *Session) notify(messageType string, payload interface{}) {
	if s.deps.Notifier == nil {
		return
	}
	s.deps.Notifier.SendToUser(s.id.String(), messageType, websocket.TopicSession, payload)
}

// notifyLocked - то же под s.mu. Notifier не должен блокироваться.
func (s *Session) notifyLocked(messageType string, payload interface{}) {
	s.notify(messageType, payload)
}

func (s *Session) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}

func (s *Session) addMessageLocked(kind models.MessageKind, text string) {
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		CreatedAt: s.deps.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	if len(s.messages) > maxMessages {
		s.messages = append([]models.ChatMessage(nil), s.messages[len(s.messages)-maxMessages:]...)
	}
	s.notifyLocked("message", msg)
}

// reject сообщает об ошибке действия в чат и возвращает ее.
func (s *Session) reject(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addMessageLocked(models.MessageError, err.Error())
	return err
}

func (s *Session) checkLocked(action string) error {
	s.touch()
	if s.closed {
		return fmt.Errorf("%w: cannot %s", models.ErrSessionNotFound, action)
	}
	return nil
}

func (s *Session) requirePhaseLocked(action string, phases ...models.Phase) error {
	if err := s.checkLocked(action); err != nil {
		return err
	}
	for _, p := range phases {
		if s.phase == p {
			return nil
		}
	}
	err := fmt.Errorf("%w: cannot %s during %s", models.ErrInvalidPhase, action, s.phase)
	s.addMessageLocked(models.MessageError, err.Error())
	return err
}

func withFreeForm(options []string) []string {
	out := make([]string, 0, len(options)+1)
	for _, o := range options {
		if o != models.FreeFormOption {
			out = append(out, o)
		}
	}
	return append(out, models.FreeFormOption)
}

func replayWarning(err error) string {
	if errors.Is(err, models.ErrNodeHasNoSnapshot) {
		return "That path was never taken, so there is nothing to replay"
	}
	return "That point of the story no longer exists"
}

func defaultTitle(prompt string) string {
	r := []rune(strings.TrimSpace(prompt))
	if len(r) == 0 {
		return "Untitled story"
	}
	if len(r) > maxTitleRunes {
		return strings.TrimSpace(string(r[:maxTitleRunes])) + "..."
	}
	return string(r)
}
