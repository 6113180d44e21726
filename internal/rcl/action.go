package rcl

import (
	"context"
	"fmt"
	"sync"
)

// GoalEvent drives a goal through its state machine.
type GoalEvent int

const (
	GoalEventExecute GoalEvent = iota
	GoalEventCancelGoal
	GoalEventSucceed
	GoalEventAbort
	GoalEventCanceled
)

// String returns the event name.
func (e GoalEvent) String() string {
	switch e {
	case GoalEventExecute:
		return "EXECUTE"
	case GoalEventCancelGoal:
		return "CANCEL_GOAL"
	case GoalEventSucceed:
		return "SUCCEED"
	case GoalEventAbort:
		return "ABORT"
	case GoalEventCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// GoalStatus is the state of a goal. Values match action_msgs/GoalStatus.
type GoalStatus int

const (
	GoalStatusUnknown GoalStatus = iota
	GoalStatusAccepted
	GoalStatusExecuting
	GoalStatusCanceling
	GoalStatusSucceeded
	GoalStatusCanceled
	GoalStatusAborted
)

// String returns the status name.
func (s GoalStatus) String() string {
	switch s {
	case GoalStatusAccepted:
		return "ACCEPTED"
	case GoalStatusExecuting:
		return "EXECUTING"
	case GoalStatusCanceling:
		return "CANCELING"
	case GoalStatusSucceeded:
		return "SUCCEEDED"
	case GoalStatusCanceled:
		return "CANCELED"
	case GoalStatusAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s GoalStatus) IsTerminal() bool {
	return s == GoalStatusSucceeded || s == GoalStatusCanceled || s == GoalStatusAborted
}

// TransitionGoalState applies event to status.
//
//	ACCEPTED  --EXECUTE-->     EXECUTING
//	ACCEPTED  --CANCEL_GOAL--> CANCELING
//	EXECUTING --CANCEL_GOAL--> CANCELING
//	EXECUTING --SUCCEED-->     SUCCEEDED
//	EXECUTING --ABORT-->       ABORTED
//	CANCELING --SUCCEED-->     SUCCEEDED
//	CANCELING --ABORT-->       ABORTED
//	CANCELING --CANCELED-->    CANCELED
func TransitionGoalState(status GoalStatus, event GoalEvent) (GoalStatus, error) {
	switch status {
	case GoalStatusAccepted:
		switch event {
		case GoalEventExecute:
			return GoalStatusExecuting, nil
		case GoalEventCancelGoal:
			return GoalStatusCanceling, nil
		}
	case GoalStatusExecuting:
		switch event {
		case GoalEventCancelGoal:
			return GoalStatusCanceling, nil
		case GoalEventSucceed:
			return GoalStatusSucceeded, nil
		case GoalEventAbort:
			return GoalStatusAborted, nil
		}
	case GoalStatusCanceling:
		switch event {
		case GoalEventSucceed:
			return GoalStatusSucceeded, nil
		case GoalEventAbort:
			return GoalStatusAborted, nil
		case GoalEventCanceled:
			return GoalStatusCanceled, nil
		}
	}
	return status, newError(ErrCodeGoalEventInvalid, "event %s is not valid in state %s", event, status)
}

// ActionServerCallbacks are the user callbacks of an action server.
type ActionServerCallbacks struct {
	// Goal decides whether to accept a new goal. Nil accepts every goal.
	Goal func(ctx context.Context, goal any) bool
	// Cancel decides whether to accept a cancel request. Nil rejects all.
	Cancel func(ctx context.Context, gh *ServerGoalHandle) bool
	// Execute runs an accepted goal and returns its result. It should end
	// the goal with Succeed, Abort or Canceled; otherwise the goal is
	// aborted when Execute returns.
	Execute func(ctx context.Context, gh *ServerGoalHandle) (any, error)
}

type actionServerItemKind int

const (
	itemGoalRequest actionServerItemKind = iota
	itemCancelRequest
	itemExecute
)

type actionServerItem struct {
	kind   actionServerItemKind
	client *ActionClient
	goalID GoalID
	goal   any
}

// ActionServer dispatches goal requests, cancel requests and goal execution.
type ActionServer struct {
	entity
	typeName  string
	callbacks ActionServerCallbacks

	mu    sync.Mutex
	queue []actionServerItem
	goals map[GoalID]*ServerGoalHandle
}

// CreateActionServer creates an action server. callbacks.Execute is required.
func (n *Node) CreateActionServer(name, typeName string, callbacks ActionServerCallbacks, opts ...EntityOption) (*ActionServer, error) {
	if callbacks.Execute == nil {
		return nil, newError(ErrCodeInvalidArgument, "action server needs an execute callback")
	}
	resolved, err := n.ResolveTopicName(name, false)
	if err != nil {
		return nil, err
	}
	base, _, err := n.newEntity(KindActionServer, resolved, opts)
	if err != nil {
		return nil, err
	}
	s := &ActionServer{
		entity:    base,
		typeName:  typeName,
		callbacks: callbacks,
		goals:     make(map[GoalID]*ServerGoalHandle),
	}
	s.name = resolved
	if err := n.addEntity(s); err != nil {
		return nil, err
	}
	n.ctx.Graph().addActionServer(s)
	return s, nil
}

func (s *ActionServer) enqueue(item actionServerItem) {
	s.mu.Lock()
	s.queue = append(s.queue, item)
	s.mu.Unlock()
	s.handle.Signal()
}

// IsReady reports whether any request or execution is queued.
func (s *ActionServer) IsReady() bool {
	if s.IsDestroyed() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0
}

// Goal returns the handle of a known goal.
func (s *ActionServer) Goal(id GoalID) (*ServerGoalHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gh, ok := s.goals[id]
	return gh, ok
}

// Take pops the oldest queued item.
func (s *ActionServer) Take() (Task, bool) {
	if s.IsDestroyed() {
		return nil, false
	}
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return nil, false
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	switch item.kind {
	case itemGoalRequest:
		return func(ctx context.Context) error { return s.handleGoal(ctx, item) }, true
	case itemCancelRequest:
		return func(ctx context.Context) error { return s.handleCancel(ctx, item) }, true
	default:
		return func(ctx context.Context) error { return s.handleExecute(ctx, item) }, true
	}
}

func (s *ActionServer) handleGoal(ctx context.Context, item actionServerItem) error {
	accepted := true
	if s.callbacks.Goal != nil {
		accepted = s.callbacks.Goal(ctx, item.goal)
	}
	if !accepted {
		item.client.deliver(actionClientItem{kind: itemGoalResponse, goalID: item.goalID, accepted: false})
		return nil
	}

	gh := &ServerGoalHandle{server: s, id: item.goalID, goal: item.goal, client: item.client, status: GoalStatusAccepted}
	s.mu.Lock()
	s.goals[item.goalID] = gh
	s.mu.Unlock()

	item.client.deliver(actionClientItem{kind: itemGoalResponse, goalID: item.goalID, accepted: true})
	return gh.Execute()
}

func (s *ActionServer) handleCancel(ctx context.Context, item actionServerItem) error {
	gh, ok := s.Goal(item.goalID)
	accepted := false
	if ok && !gh.Status().IsTerminal() && s.callbacks.Cancel != nil && s.callbacks.Cancel(ctx, gh) {
		if err := gh.update(GoalEventCancelGoal); err == nil {
			accepted = true
		}
	}
	item.client.deliver(actionClientItem{kind: itemCancelResponse, goalID: item.goalID, accepted: accepted})
	return nil
}

func (s *ActionServer) handleExecute(ctx context.Context, item actionServerItem) error {
	gh, ok := s.Goal(item.goalID)
	if !ok {
		return nil
	}
	result, err := s.callbacks.Execute(ctx, gh)
	if !gh.Status().IsTerminal() {
		if err == nil {
			s.node.Logger().Warn("goal state not set, assuming aborted", "goal_id", gh.id.String())
		}
		_ = gh.update(GoalEventAbort)
	}
	gh.client.deliver(actionClientItem{
		kind:   itemResult,
		goalID: gh.id,
		result: &GoalResult{Status: gh.Status(), Result: result},
	})
	if err != nil {
		return fmt.Errorf("action %s goal %s: %w", s.name, gh.id, err)
	}
	return nil
}

// Destroy removes the server and aborts goals still in progress.
func (s *ActionServer) Destroy() error {
	if s.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "action server already destroyed")
	}
	s.mu.Lock()
	goals := make([]*ServerGoalHandle, 0, len(s.goals))
	for _, gh := range s.goals {
		goals = append(goals, gh)
	}
	s.mu.Unlock()
	for _, gh := range goals {
		if !gh.Status().IsTerminal() {
			_ = gh.update(GoalEventAbort)
		}
	}
	s.node.removeEntity(s)
	if g := s.node.ctx.Graph(); g != nil {
		g.removeActionServer(s)
	}
	return nil
}

// ServerGoalHandle is the server side of one goal.
type ServerGoalHandle struct {
	server *ActionServer
	id     GoalID
	goal   any
	client *ActionClient

	mu     sync.Mutex
	status GoalStatus
}

// ID returns the goal id.
func (gh *ServerGoalHandle) ID() GoalID { return gh.id }

// Goal returns the goal request.
func (gh *ServerGoalHandle) Goal() any { return gh.goal }

// Status returns the current state.
func (gh *ServerGoalHandle) Status() GoalStatus {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	return gh.status
}

// IsCancelRequested reports whether a cancel request was accepted.
func (gh *ServerGoalHandle) IsCancelRequested() bool {
	return gh.Status() == GoalStatusCanceling
}

// IsActive reports whether the goal has not reached a terminal state.
func (gh *ServerGoalHandle) IsActive() bool {
	return !gh.Status().IsTerminal()
}

func (gh *ServerGoalHandle) update(event GoalEvent) error {
	gh.mu.Lock()
	defer gh.mu.Unlock()
	next, err := TransitionGoalState(gh.status, event)
	if err != nil {
		return err
	}
	gh.status = next
	return nil
}

// Execute moves the goal to EXECUTING and schedules the execute callback on
// the server's executor.
func (gh *ServerGoalHandle) Execute() error {
	if err := gh.update(GoalEventExecute); err != nil {
		return err
	}
	gh.server.enqueue(actionServerItem{kind: itemExecute, goalID: gh.id})
	return nil
}

// Succeed ends the goal as SUCCEEDED.
func (gh *ServerGoalHandle) Succeed() error { return gh.update(GoalEventSucceed) }

// Abort ends the goal as ABORTED.
func (gh *ServerGoalHandle) Abort() error { return gh.update(GoalEventAbort) }

// Canceled ends a canceling goal as CANCELED.
func (gh *ServerGoalHandle) Canceled() error { return gh.update(GoalEventCanceled) }

// PublishFeedback sends feedback to the client that sent the goal.
func (gh *ServerGoalHandle) PublishFeedback(feedback any) error {
	if gh.Status().IsTerminal() {
		return newError(ErrCodeGoalEventInvalid, "cannot publish feedback for a goal in state %s", gh.Status())
	}
	gh.client.deliver(actionClientItem{kind: itemFeedback, goalID: gh.id, feedback: feedback})
	return nil
}

// GoalResult is the outcome of a goal delivered to the client.
type GoalResult struct {
	Status GoalStatus
	Result any
}

type actionClientItemKind int

const (
	itemGoalResponse actionClientItemKind = iota
	itemFeedback
	itemResult
	itemCancelResponse
)

type actionClientItem struct {
	kind     actionClientItemKind
	goalID   GoalID
	accepted bool
	feedback any
	result   *GoalResult
}

// ActionClient sends goals and dispatches responses, feedback and results.
type ActionClient struct {
	entity
	typeName string

	mu            sync.Mutex
	queue         []actionClientItem
	goalFutures   map[GoalID]*Future
	resultFutures map[GoalID]*Future
	cancelFutures map[GoalID][]*Future
	feedback      map[GoalID]func(any)
}

// CreateActionClient creates an action client for the named action.
func (n *Node) CreateActionClient(name, typeName string, opts ...EntityOption) (*ActionClient, error) {
	resolved, err := n.ResolveTopicName(name, false)
	if err != nil {
		return nil, err
	}
	base, _, err := n.newEntity(KindActionClient, resolved, opts)
	if err != nil {
		return nil, err
	}
	c := &ActionClient{
		entity:        base,
		typeName:      typeName,
		goalFutures:   make(map[GoalID]*Future),
		resultFutures: make(map[GoalID]*Future),
		cancelFutures: make(map[GoalID][]*Future),
		feedback:      make(map[GoalID]func(any)),
	}
	c.name = resolved
	if err := n.addEntity(c); err != nil {
		return nil, err
	}
	n.ctx.Graph().addActionClient(c)
	return c, nil
}

// ServerIsReady reports whether a matching action server exists.
func (c *ActionClient) ServerIsReady() bool {
	return c.node.ctx.Graph().findActionServer(c.name, c.typeName) != nil
}

// SendGoalAsync sends goal. The returned future completes with a
// *ClientGoalHandle once the server accepts or rejects it. feedback may be
// nil.
func (c *ActionClient) SendGoalAsync(goal any, feedback func(any)) (*Future, error) {
	if c.IsDestroyed() {
		return nil, newError(ErrCodeInvalidHandle, "action client %s is destroyed", c.name)
	}
	server := c.node.ctx.Graph().findActionServer(c.name, c.typeName)
	if server == nil {
		return nil, fmt.Errorf("send goal to %s: %w", c.name, ErrServiceUnavailable)
	}

	id := NewGoalID()
	f := NewFuture()
	c.mu.Lock()
	c.goalFutures[id] = f
	c.resultFutures[id] = NewFuture()
	if feedback != nil {
		c.feedback[id] = feedback
	}
	c.mu.Unlock()

	server.enqueue(actionServerItem{kind: itemGoalRequest, client: c, goalID: id, goal: goal})
	return f, nil
}

func (c *ActionClient) cancelGoalAsync(id GoalID) (*Future, error) {
	server := c.node.ctx.Graph().findActionServer(c.name, c.typeName)
	if server == nil {
		return nil, fmt.Errorf("cancel goal on %s: %w", c.name, ErrServiceUnavailable)
	}
	f := NewFuture()
	c.mu.Lock()
	c.cancelFutures[id] = append(c.cancelFutures[id], f)
	c.mu.Unlock()
	server.enqueue(actionServerItem{kind: itemCancelRequest, client: c, goalID: id})
	return f, nil
}

func (c *ActionClient) deliver(item actionClientItem) {
	if c.IsDestroyed() {
		return
	}
	c.mu.Lock()
	c.queue = append(c.queue, item)
	c.mu.Unlock()
	c.handle.Signal()
}

// IsReady reports whether anything is queued.
func (c *ActionClient) IsReady() bool {
	if c.IsDestroyed() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// Take pops the oldest item and returns the task handling it.
func (c *ActionClient) Take() (Task, bool) {
	if c.IsDestroyed() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	item := c.queue[0]
	c.queue = c.queue[1:]

	switch item.kind {
	case itemGoalResponse:
		f := c.goalFutures[item.goalID]
		delete(c.goalFutures, item.goalID)
		if !item.accepted {
			delete(c.resultFutures, item.goalID)
			delete(c.feedback, item.goalID)
		}
		gh := &ClientGoalHandle{client: c, id: item.goalID, accepted: item.accepted, result: c.resultFutures[item.goalID]}
		return func(context.Context) error {
			if f != nil {
				f.SetResult(gh)
			}
			return nil
		}, true
	case itemFeedback:
		cb := c.feedback[item.goalID]
		return func(context.Context) error {
			if cb != nil {
				cb(item.feedback)
			}
			return nil
		}, true
	case itemResult:
		f := c.resultFutures[item.goalID]
		delete(c.resultFutures, item.goalID)
		delete(c.feedback, item.goalID)
		return func(context.Context) error {
			if f != nil {
				f.SetResult(item.result)
			}
			return nil
		}, true
	default:
		futures := c.cancelFutures[item.goalID]
		delete(c.cancelFutures, item.goalID)
		return func(context.Context) error {
			for _, f := range futures {
				f.SetResult(item.accepted)
			}
			return nil
		}, true
	}
}

// Destroy removes the client and cancels its pending futures.
func (c *ActionClient) Destroy() error {
	if c.destroyed.Swap(true) {
		return newError(ErrCodeInvalidHandle, "action client already destroyed")
	}
	c.mu.Lock()
	var pending []*Future
	for _, f := range c.goalFutures {
		pending = append(pending, f)
	}
	for _, f := range c.resultFutures {
		pending = append(pending, f)
	}
	for _, fs := range c.cancelFutures {
		pending = append(pending, fs...)
	}
	c.mu.Unlock()
	for _, f := range pending {
		f.Cancel()
	}
	c.node.removeEntity(c)
	if g := c.node.ctx.Graph(); g != nil {
		g.removeActionClient(c)
	}
	return nil
}

// ClientGoalHandle is the client side of one goal.
type ClientGoalHandle struct {
	client   *ActionClient
	id       GoalID
	accepted bool
	result   *Future
}

// GoalID returns the goal id.
func (h *ClientGoalHandle) GoalID() GoalID { return h.id }

// Accepted reports whether the server accepted the goal.
func (h *ClientGoalHandle) Accepted() bool { return h.accepted }

// ResultFuture returns a future completing with a *GoalResult. It is nil for
// rejected goals.
func (h *ClientGoalHandle) ResultFuture() *Future { return h.result }

// CancelGoalAsync asks the server to cancel the goal. The future completes
// with true if the server accepted the request.
func (h *ClientGoalHandle) CancelGoalAsync() (*Future, error) {
	if !h.accepted {
		return nil, newError(ErrCodeInvalidArgument, "goal %s was not accepted", h.id)
	}
	return h.client.cancelGoalAsync(h.id)
}
