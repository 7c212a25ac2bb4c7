package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/registry"
	"github.com/roach88/setcode/internal/store"
)

// Engine runs program instances.
//
// Thread-safety model:
//   - Deploy, Instantiate, Call: safe from any goroutine; serialized by mu
//   - Submit: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Inspect, History: safe from any goroutine (read-only)
type Engine struct {
	store    *store.Store
	registry *registry.Registry
	catalog  *program.Catalog
	clock    *Clock
	ids      IDGenerator
	logger   *slog.Logger
	queue    *callQueue

	mu sync.Mutex // Serializes every write path
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the logical clock. The clock is advanced to the store's
// highest seq if it is behind.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the instance id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine over s. The clock resumes after the highest seq
// already stored.
func New(ctx context.Context, s *store.Store, reg *registry.Registry, catalog *program.Catalog, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    s,
		registry: reg,
		catalog:  catalog,
		ids:      UUIDv7Generator{},
		logger:   slog.Default(),
		queue:    newCallQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}

	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume clock: %w", err)
	}
	if e.clock == nil {
		e.clock = NewClockAt(maxSeq)
	} else {
		e.clock.advanceTo(maxSeq)
	}
	return e, nil
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// Deploy registers a code image. Deploying identical bytes again returns
// the image stored the first time.
func (e *Engine) Deploy(ctx context.Context, filename string, src []byte) (ir.CodeImage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	img, err := e.registry.Upload(ctx, filename, src, e.clock.Next())
	if err != nil {
		return ir.CodeImage{}, fmt.Errorf("deploy image: %w", err)
	}
	return img, nil
}

// Instantiate creates an instance running the image named by hash, owned
// by caller. args are passed to the program's initializer, if it has one.
func (e *Engine) Instantiate(ctx context.Context, hash ir.CodeHash, caller ir.Caller, args ir.Object) (ir.Instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if args == nil {
		args = ir.Object{}
	}
	if caller.Identity == "" {
		return ir.Instance{}, errors.New("instantiate: caller identity is required")
	}
	caller = normalizeCaller(caller)
	seq := e.clock.Next()

	var inst ir.Instance
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		img, err := tx.ReadImage(ctx, hash)
		if store.IsNotFound(err) {
			return &Error{Code: ErrCodeCodeNotFound, Message: fmt.Sprintf("no image %s", hash), Err: err}
		}
		if err != nil {
			return err
		}

		p, err := e.catalog.Load(img.Manifest)
		if err != nil {
			return &Error{Code: ErrCodeIncompatibleCode, Message: err.Error(), Err: err}
		}

		inst = ir.Instance{
			ID:       e.ids.Generate(),
			CodeHash: hash,
			Owner:    caller.Identity,
			State:    ir.Object{},
			Seq:      seq,
		}
		env := newTxEnv(e, tx, inst, caller, seq)
		if initializer, ok := p.(program.Initializer); ok {
			if err := runGuarded(func() error { return initializer.Init(ctx, env, args) }); err != nil {
				return fmt.Errorf("init %s: %w", img.Manifest.Key(), err)
			}
		} else if len(args) > 0 {
			return &program.ArgError{Arg: args.SortedKeys()[0], Message: img.Manifest.Key() + " takes no init arguments"}
		}
		inst.State = env.state
		return tx.CreateInstance(ctx, inst)
	})
	if err != nil {
		return ir.Instance{}, err
	}

	e.logger.Info("instance created",
		"instance", inst.ID,
		"code_hash", hash.String(),
		"owner", inst.Owner,
		"seq", seq,
	)
	return inst, nil
}

// Request is a message addressed to an instance.
type Request struct {
	InstanceID string
	Message    string
	Args       ir.Object
	Caller     ir.Caller
}

// Result is a journaled call and its receipt.
type Result struct {
	Call    ir.Call    `json:"call"`
	Receipt ir.Receipt `json:"receipt"`
}

// Call executes req atomically.
//
// On success the state, any code pointer change, and the call record are
// committed together. If the handler fails the state and code pointer are
// untouched, the call is journaled with a failure receipt, and Call
// returns that Result along with the handler's error (errors.Is/As work on
// it). Host-level failures such as an unknown instance return an *Error
// and journal nothing.
func (e *Engine) Call(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.call(ctx, req)
}

func (e *Engine) call(ctx context.Context, req Request) (Result, error) {
	if req.Args == nil {
		req.Args = ir.Object{}
	}
	req.Caller = normalizeCaller(req.Caller)
	seq := e.clock.Next()

	callID, err := ir.CallID(req.InstanceID, req.Message, req.Args, seq)
	if err != nil {
		return Result{}, &program.ArgError{Arg: "args", Message: err.Error()}
	}

	var (
		res        Result
		dispatched bool
		handlerErr error
		before     ir.CodeHash
	)
	txErr := e.store.InTx(ctx, func(tx *store.Tx) error {
		inst, img, p, err := e.load(ctx, tx, req.InstanceID)
		if err != nil {
			return err
		}
		before = inst.CodeHash

		res.Call = ir.Call{
			ID:         callID,
			InstanceID: inst.ID,
			Message:    req.Message,
			Args:       req.Args,
			Seq:        seq,
			Caller:     req.Caller,
			CodeHash:   inst.CodeHash,
		}
		dispatched = true

		env := newTxEnv(e, tx, inst, req.Caller, seq)
		result, err := e.dispatch(ctx, p, img.Manifest, env, req)
		if err == nil && env.registryErr != nil {
			err = env.registryErr
		}
		if err != nil {
			handlerErr = err
			return err
		}

		if env.dirty {
			if err := tx.UpdateState(ctx, inst.ID, env.state, seq); err != nil {
				return err
			}
		}

		res.Receipt, err = e.receipt(callID, ir.OutcomeSuccess, result, "", env.pointer)
		if err != nil {
			return err
		}
		return tx.WriteCall(ctx, res.Call, res.Receipt)
	})

	switch {
	case txErr == nil:
		e.logCall(res)
		return res, nil
	case !dispatched:
		return Result{}, txErr
	case handlerErr == nil:
		return Result{}, fmt.Errorf("commit call %s: %w", callID, txErr)
	}

	outcome := OutcomeFor(handlerErr)
	receipt, err := e.receipt(callID, outcome, ir.Object{}, handlerErr.Error(), before)
	if err != nil {
		return Result{}, errors.Join(handlerErr, err)
	}
	res.Receipt = receipt
	if err := e.store.WriteCall(ctx, res.Call, res.Receipt); err != nil {
		return Result{}, errors.Join(handlerErr, fmt.Errorf("journal failed call: %w", err))
	}
	e.logCall(res)
	return res, fmt.Errorf("%s.%s: %w", req.InstanceID, req.Message, handlerErr)
}

// load reads the instance, its current image, and the program for it.
func (e *Engine) load(ctx context.Context, tx *store.Tx, instanceID string) (ir.Instance, ir.CodeImage, program.Program, error) {
	inst, err := tx.ReadInstance(ctx, instanceID)
	if store.IsNotFound(err) {
		return ir.Instance{}, ir.CodeImage{}, nil, &Error{Code: ErrCodeInstanceNotFound, Message: "no such instance", InstanceID: instanceID, Err: err}
	}
	if err != nil {
		return ir.Instance{}, ir.CodeImage{}, nil, err
	}

	img, err := tx.ReadImage(ctx, inst.CodeHash)
	if store.IsNotFound(err) {
		return ir.Instance{}, ir.CodeImage{}, nil, &Error{Code: ErrCodeCodeNotFound, Message: fmt.Sprintf("no image %s", inst.CodeHash), InstanceID: instanceID, Err: err}
	}
	if err != nil {
		return ir.Instance{}, ir.CodeImage{}, nil, err
	}

	p, err := e.catalog.Load(img.Manifest)
	if err != nil {
		return ir.Instance{}, ir.CodeImage{}, nil, &Error{Code: ErrCodeIncompatibleCode, Message: err.Error(), InstanceID: instanceID, Err: err}
	}
	return inst, img, p, nil
}

// dispatch checks req against the manifest and runs the handler.
func (e *Engine) dispatch(ctx context.Context, p program.Program, m ir.Manifest, env *txEnv, req Request) (ir.Object, error) {
	sig, ok := m.Message(req.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no message %q", program.ErrUnknownMessage, m.Key(), req.Message)
	}
	for _, perm := range sig.Requires {
		if !req.Caller.Has(perm) {
			return nil, fmt.Errorf("%w: %s requires permission %q", program.ErrUnauthorized, req.Message, perm)
		}
	}
	if err := program.CheckArgs(sig, req.Args); err != nil {
		return nil, err
	}

	var result ir.Object
	err := runGuarded(func() error {
		var err error
		result, err = p.Handle(ctx, env, req.Message, req.Args.Clone())
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = ir.Object{}
	}
	return result, nil
}

func (e *Engine) receipt(callID, outcome string, result ir.Object, msg string, code ir.CodeHash) (ir.Receipt, error) {
	seq := e.clock.Next()
	id, err := ir.ReceiptID(callID, outcome, result, code, seq)
	if err != nil {
		return ir.Receipt{}, &TrapError{Value: err}
	}
	return ir.Receipt{
		ID:       id,
		CallID:   callID,
		Outcome:  outcome,
		Result:   result,
		Error:    msg,
		CodeHash: code,
		Seq:      seq,
	}, nil
}

func (e *Engine) logCall(res Result) {
	attrs := []any{
		"instance", res.Call.InstanceID,
		"message", res.Call.Message,
		"outcome", res.Receipt.Outcome,
		"seq", res.Call.Seq,
	}
	if res.Receipt.CodeHash != res.Call.CodeHash {
		attrs = append(attrs, "code_from", res.Call.CodeHash.Short(), "code_to", res.Receipt.CodeHash.Short())
	}
	if res.Receipt.Succeeded() {
		e.logger.Info("call committed", attrs...)
		return
	}
	e.logger.Warn("call reverted", append(attrs, "error", res.Receipt.Error)...)
}

// runGuarded runs fn, converting a panic into a TrapError.
func runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TrapError{Value: r}
		}
	}()
	return fn()
}

func normalizeCaller(c ir.Caller) ir.Caller {
	if c.Permissions == nil {
		c.Permissions = []string{}
	}
	return c
}

// Snapshot is an instance together with the image its pointer names.
type Snapshot struct {
	Instance ir.Instance  `json:"instance"`
	Image    ir.CodeImage `json:"image"`
}

// Inspect returns the committed state of an instance.
func (e *Engine) Inspect(ctx context.Context, instanceID string) (Snapshot, error) {
	inst, err := e.store.ReadInstance(ctx, instanceID)
	if store.IsNotFound(err) {
		return Snapshot{}, &Error{Code: ErrCodeInstanceNotFound, Message: "no such instance", InstanceID: instanceID, Err: err}
	}
	if err != nil {
		return Snapshot{}, err
	}
	img, err := e.registry.Lookup(ctx, inst.CodeHash)
	if err != nil {
		return Snapshot{}, &Error{Code: ErrCodeCodeNotFound, Message: err.Error(), InstanceID: instanceID, Err: err}
	}
	return Snapshot{Instance: inst, Image: img}, nil
}

// Instances lists every instance ordered by id.
func (e *Engine) Instances(ctx context.Context) ([]ir.Instance, error) {
	return e.store.ListInstances(ctx)
}

// History returns every call journaled for an instance, in seq order,
// paired with its receipt.
func (e *Engine) History(ctx context.Context, instanceID string) ([]Result, error) {
	if _, err := e.store.ReadInstance(ctx, instanceID); err != nil {
		if store.IsNotFound(err) {
			return nil, &Error{Code: ErrCodeInstanceNotFound, Message: "no such instance", InstanceID: instanceID, Err: err}
		}
		return nil, err
	}

	calls, receipts, err := e.store.ReadHistory(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	byCall := make(map[string]ir.Receipt, len(receipts))
	for _, r := range receipts {
		byCall[r.CallID] = r
	}

	out := make([]Result, 0, len(calls))
	for _, c := range calls {
		r, ok := byCall[c.ID]
		if !ok {
			return nil, fmt.Errorf("history %s: call %s has no receipt", instanceID, c.ID)
		}
		out = append(out, Result{Call: c, Receipt: r})
	}
	return out, nil
}
