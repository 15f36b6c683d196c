// Verification engine polling target state until an expected subset matches
package verify

import (
	"context"
	"fmt"
	"time"

	"homeops-driver/internal/logging"
	"homeops-driver/internal/target"
)

const pollInterval = 200 * time.Millisecond

// DefaultTimeout applies when a verify event carries no timeout_ms.
const DefaultTimeout = 5 * time.Second

// Verify polls the target's state endpoint until the expected state and
// attribute subset match or the timeout elapses. Extra live attributes are
// ignored; only the keys named in expectedAttrs are compared. Transport
// errors during a poll count as a non-match and are retried on the next tick.
// Verify never returns an error: a timeout logs expected and last-observed
// values and yields false.
func Verify(ctx context.Context, t *target.Target, entityID string, expectedState *string, expectedAttrs map[string]any, timeout time.Duration) bool {
	log := logging.FromContext(ctx)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)

	var last *target.LiveState
	for {
		live, err := t.GetState(ctx, entityID)
		if err == nil {
			last = live
			if matches(live, expectedState, expectedAttrs) {
				log.Info("verify PASS", "target", t.Name, "entity_id", entityID, "state", live.State)
				return true
			}
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}

	observed := "<never observed>"
	if last != nil {
		observed = fmt.Sprintf("state=%q attrs=%v", last.State, last.Attributes)
	}
	expected := ""
	if expectedState != nil {
		expected = fmt.Sprintf("state=%q ", *expectedState)
	}
	if len(expectedAttrs) > 0 {
		expected += fmt.Sprintf("attrs=%v", expectedAttrs)
	}
	log.Warn("verify FAIL", "target", t.Name, "entity_id", entityID,
		"expected", expected, "observed", observed, "timeout", timeout)
	return false
}

// matches applies the subset-match condition.
func matches(live *target.LiveState, expectedState *string, expectedAttrs map[string]any) bool {
	if expectedState != nil && live.State != *expectedState {
		return false
	}
	for k, want := range expectedAttrs {
		got, ok := live.Attributes[k]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// looseEqual compares attribute values across JSON decodings, where the same
// number may arrive as float64 on one side and int on the other.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
