package transcript

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tiroq/scribed/internal/store"
)

// Policy selects how the final artifact is written.
type Policy string

const (
	// PolicyCreateOnly writes directly to the final key and treats an
	// existing artifact as a duplicate trigger: the write is a no-op.
	PolicyCreateOnly Policy = "create-only"
	// PolicyPromote replaces any stale artifact through the temp-then-promote
	// protocol. Readers still never observe a partial object.
	PolicyPromote Policy = "promote"
)

// Config is the writer section of the application config.
type Config struct {
	Policy string `mapstructure:"policy"`
}

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyCreateOnly, PolicyPromote:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("transcript: unknown write policy %q (want %q or %q)", s, PolicyCreateOnly, PolicyPromote)
	}
}

// Writer persists the final transcript text exactly once per input.
type Writer struct {
	store  store.Store
	policy Policy
	logger zerolog.Logger
}

func NewWriter(s store.Store, policy Policy, logger zerolog.Logger) *Writer {
	return &Writer{store: s, policy: policy, logger: logger}
}

// Write stores text at key under the configured policy. It reports whether
// this call produced the artifact; false with a nil error means a duplicate
// trigger lost the create race and the existing artifact stands.
func (w *Writer) Write(ctx context.Context, key, text string) (bool, error) {
	switch w.policy {
	case PolicyCreateOnly:
		err := store.PutText(ctx, w.store, key, text, store.PutOptions{CreateOnly: true})
		if errors.Is(err, store.ErrAlreadyExists) {
			w.logger.Debug().Str("key", key).Msg("transcript already written, skipping")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	case PolicyPromote:
		p := newPromotion(w.store, key)
		if err := p.run(ctx, text); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("transcript: unknown write policy %q", w.policy)
	}
}

// promoteState tracks how far a promotion got, mostly for tests and logs.
type promoteState string

const (
	stateAbsent      promoteState = "absent"
	stateTempWritten promoteState = "temp-written"
	statePromoted    promoteState = "promoted"
	stateTempCleaned promoteState = "temp-cleaned"
)

// promotion walks one artifact through the temp-then-promote protocol:
// create the temp object, delete any stale final, copy the temp over the
// final key, delete the temp. The copy is atomic on the store side, so a
// reader sees the old complete artifact, nothing, or the new complete
// artifact, never a torn one.
type promotion struct {
	store   store.Store
	key     string
	tempKey string
	state   promoteState
}

func newPromotion(s store.Store, key string) *promotion {
	return &promotion{
		store:   s,
		key:     key,
		tempKey: key + ".tmp-" + uuid.NewString(),
		state:   stateAbsent,
	}
}

func (p *promotion) run(ctx context.Context, text string) error {
	err := store.PutText(ctx, p.store, p.tempKey, text, store.PutOptions{CreateOnly: true})
	if err != nil {
		return fmt.Errorf("write temp %s: %w", p.tempKey, err)
	}
	p.state = stateTempWritten

	promoteErr := p.promote(ctx)
	p.cleanup(ctx)
	return promoteErr
}

func (p *promotion) promote(ctx context.Context) error {
	// A missing final is the common case, not an error.
	if err := p.store.Delete(ctx, p.key); err != nil {
		return fmt.Errorf("delete stale %s: %w", p.key, err)
	}
	if err := p.store.Copy(ctx, p.tempKey, p.key); err != nil {
		return fmt.Errorf("promote %s: %w", p.key, err)
	}
	p.state = statePromoted
	return nil
}

// cleanup removes the temp object on success and failure alike. A leaked
// temp costs storage but never correctness, so a failed delete only leaves
// the state short of temp-cleaned.
func (p *promotion) cleanup(ctx context.Context) {
	if err := p.store.Delete(ctx, p.tempKey); err == nil {
		p.state = stateTempCleaned
	}
}
