package core

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	NoopActionKind   = "noop"
	ScriptActionKind = "script"
)

// Action is the side effect a succeeded proposal triggers. It is opaque to the governor,
// only its success or failure matters.
type Action interface {
	Execute(ctx context.Context) ([]byte, error)
}

type ActionFunc func(ctx context.Context) ([]byte, error)

func (f ActionFunc) Execute(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// ActionDescriptor is what a proposal stores: enough data to rebuild the action later.
type ActionDescriptor struct {
	Kind    string
	Target  string
	Payload []byte `json:",omitempty"`
}

// Hash is keccak256(kind || 0x00 || target || 0x00 || payload).
func (d ActionDescriptor) Hash() common.Hash {
	return crypto.Keccak256Hash([]byte(d.Kind), []byte{0}, []byte(d.Target), []byte{0}, d.Payload)
}

type ActionResolver interface {
	Resolve(desc ActionDescriptor) (Action, error)
}

type ActionFactory func(desc ActionDescriptor) (Action, error)

// ActionRegistry resolves descriptors by kind.
type ActionRegistry struct {
	mu        sync.RWMutex
	factories map[string]ActionFactory
}

// NewActionRegistry returns a registry that already knows the noop kind.
func NewActionRegistry() *ActionRegistry {
	r := &ActionRegistry{factories: make(map[string]ActionFactory)}
	r.Register(NoopActionKind, func(ActionDescriptor) (Action, error) {
		return ActionFunc(func(context.Context) ([]byte, error) { return nil, nil }), nil
	})
	return r
}

func (r *ActionRegistry) Register(kind string, factory ActionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

func (r *ActionRegistry) Resolve(desc ActionDescriptor) (Action, error) {
	r.mu.RLock()
	factory, ok := r.factories[desc.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown action kind %q", desc.Kind)
	}
	return factory(desc)
}

// ScriptAction runs a bash script located in Dir. Payload, if any, is passed as arguments
// split on whitespace.
type ScriptAction struct {
	Dir    string
	Script string
	Args   []string
}

// ScriptActionFactory builds script actions rooted at dir. Targets may not escape dir.
func ScriptActionFactory(dir string) ActionFactory {
	return func(desc ActionDescriptor) (Action, error) {
		script := filepath.Clean(desc.Target)
		if script == "." || filepath.IsAbs(script) || strings.HasPrefix(script, "..") {
			return nil, errors.Errorf("invalid script target %q", desc.Target)
		}
		return &ScriptAction{
			Dir:    dir,
			Script: script,
			Args:   strings.Fields(string(desc.Payload)),
		}, nil
	}
}

func (a *ScriptAction) Execute(ctx context.Context) ([]byte, error) {
	// check script existence
	if _, err := os.Stat(filepath.Join(a.Dir, a.Script)); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "bash", append([]string{a.Script}, a.Args...)...)
	cmd.Dir = a.Dir
	out, err := cmd.Output()
	if err != nil {
		return out, errors.Wrapf(err, "run script %s", a.Script)
	}
	return out, nil
}
