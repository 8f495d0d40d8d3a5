package workflow

import "encoding/json"

// Build adapts a typed Workflow[I,R] into the byte-in/byte-out dispatch
// shape the engine driver needs (spec §9 "dynamic dispatch over
// activity and workflow"), alongside the version/signal/query handlers
// the driver registers it under. Mirrors internal/activity.Register's
// adapter shape one layer up.
func Build[I any, R any](w Workflow[I, R]) (invoke func(ctx Context, input []byte) ([]byte, error), version Version, signals map[string]SignalHandler, queries map[string]QueryHandler) {
	invoke = func(ctx Context, raw []byte) ([]byte, error) {
		var input I
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return nil, &SerializationError{Cause: err}
			}
		}
		result, err := w.Execute(ctx, input)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, &SerializationError{Cause: err}
		}
		return out, nil
	}
	return invoke, w.Version(), w.SignalHandlers(), w.QueryHandlers()
}
