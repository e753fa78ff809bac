// Package plugin runs the document-store lifecycle hooks (spec.md §4
// Plugin system): in-process callbacks invoked before/after insert,
// update, and delete, each bounded by a timeout and either aborting the
// operation (strict mode) or merely logging (default mode).
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Hook names, matching the collection lifecycle points spec.md §4 lists.
const (
	BeforeInsert = "beforeInsert"
	AfterInsert  = "afterInsert"
	BeforeUpdate = "beforeUpdate"
	AfterUpdate  = "afterUpdate"
	BeforeDelete = "beforeDelete"
	AfterDelete  = "afterDelete"
)

// Context is passed to every hook callback.
type Context struct {
	Collection string
	Hook       string
	Document   map[string]any
	Previous   map[string]any // set for update/delete hooks
}

// Plugin is a named bundle of hook callbacks. A plugin only needs to
// populate the hooks it cares about; nil callbacks are skipped.
type Plugin struct {
	Name          string
	BeforeInsert  func(ctx context.Context, hc Context) error
	AfterInsert   func(ctx context.Context, hc Context) error
	BeforeUpdate  func(ctx context.Context, hc Context) error
	AfterUpdate   func(ctx context.Context, hc Context) error
	BeforeDelete  func(ctx context.Context, hc Context) error
	AfterDelete   func(ctx context.Context, hc Context) error
}

func (p Plugin) callbackFor(hook string) func(context.Context, Context) error {
	switch hook {
	case BeforeInsert:
		return p.BeforeInsert
	case AfterInsert:
		return p.AfterInsert
	case BeforeUpdate:
		return p.BeforeUpdate
	case AfterUpdate:
		return p.AfterUpdate
	case BeforeDelete:
		return p.BeforeDelete
	case AfterDelete:
		return p.AfterDelete
	default:
		return nil
	}
}

// Manager runs the registered plugins' hooks in registration order.
type Manager struct {
	plugins []Plugin
	timeout time.Duration
	strict  bool
	log     *slog.Logger
}

// NewManager creates a Manager. strict controls whether a hook error
// aborts the triggering operation (true) or is logged and swallowed
// (false), per spec.md §4's plugin error-handling modes.
func NewManager(strict bool, timeout time.Duration, log *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{timeout: timeout, strict: strict, log: log}
}

// Register adds a plugin. Plugins run in the order they were registered.
func (m *Manager) Register(p Plugin) {
	m.plugins = append(m.plugins, p)
}

// Run executes every registered plugin's callback for hook, in order. In
// strict mode the first error stops execution and is returned; otherwise
// every plugin runs regardless of earlier failures, each failure logged.
func (m *Manager) Run(ctx context.Context, hc Context) error {
	for _, p := range m.plugins {
		cb := p.callbackFor(hc.Hook)
		if cb == nil {
			continue
		}
		if err := m.executeHookSafe(ctx, p.Name, cb, hc); err != nil {
			if m.strict {
				return fmt.Errorf("plugin %q hook %q: %w", p.Name, hc.Hook, err)
			}
			m.log.Warn("plugin hook failed", "plugin", p.Name, "hook", hc.Hook, "collection", hc.Collection, "error", err)
		}
	}
	return nil
}

func (m *Manager) executeHookSafe(ctx context.Context, name string, cb func(context.Context, Context) error, hc Context) error {
	hookCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic: %v", r)
			}
		}()
		result <- cb(hookCtx, hc)
	}()

	select {
	case err := <-result:
		return err
	case <-hookCtx.Done():
		return fmt.Errorf("hook %q timed out after %s", name, m.timeout)
	}
}
