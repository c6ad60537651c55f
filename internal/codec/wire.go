package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-names
const (
	ServiceName = "dbn.v1.Network"

	MethodInfer   = "/" + ServiceName + "/Infer"
	MethodUpdate  = "/" + ServiceName + "/Update"
	MethodParents = "/" + ServiceName + "/Parents"
	MethodUnroll  = "/" + ServiceName + "/Unroll"
)

// #endregion service-names

// MaxUnrollSlices caps the slice count an Unroll request may ask for.
const MaxUnrollSlices = 10000

// ErrMalformed reports a message that does not have the expected shape.
var ErrMalformed = errors.New("malformed message")

// #region messages
// InferRequest asks for P(Variable_Time | parents) under Evidence.
type InferRequest struct {
	Variable string
	Time     int
	Evidence dbn.Evidence
}

// UpdateRequest is one observation for the online learner.
type UpdateRequest struct {
	Variable     string
	Parents      dbn.Tuple
	Value        string
	LearningRate *float64 // nil means the server default
}

// UpdateReply reports what the learner did.
type UpdateReply struct {
	Action    string
	Reason    string
	Shift     float64
	VersionID string // version the update was logged against, if persisted
}

// #endregion messages

// #region encode
func EncodeInferRequest(r InferRequest) (*structpb.Struct, error) {
	ev := make([]any, 0, len(r.Evidence))
	for k, v := range r.Evidence {
		ev = append(ev, map[string]any{"variable": k.Variable, "t": k.Time, "value": v})
	}
	return structpb.NewStruct(map[string]any{
		"variable": r.Variable,
		"t":        r.Time,
		"evidence": ev,
	})
}

func EncodeDistribution(d dbn.Distribution) (*structpb.Struct, error) {
	out := make([]any, len(d))
	for i, o := range d {
		out[i] = map[string]any{"value": o.Value, "p": o.P}
	}
	return structpb.NewStruct(map[string]any{"distribution": out})
}

func EncodeUpdateRequest(r UpdateRequest) (*structpb.Struct, error) {
	m := map[string]any{
		"variable": r.Variable,
		"parents":  stringsToList(r.Parents),
		"value":    r.Value,
	}
	if r.LearningRate != nil {
		m["lr"] = *r.LearningRate
	}
	return structpb.NewStruct(m)
}

func EncodeUpdateReply(r UpdateReply) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"action":     r.Action,
		"reason":     r.Reason,
		"shift":      r.Shift,
		"version_id": r.VersionID,
	})
}

func EncodeParentsRequest(variable string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"variable": variable})
}

func EncodeParents(parents []dbn.Parent) (*structpb.Struct, error) {
	out := make([]any, len(parents))
	for i, p := range parents {
		out[i] = map[string]any{"name": p.Name, "offset": p.Offset}
	}
	return structpb.NewStruct(map[string]any{"parents": out})
}

func EncodeUnrollRequest(slices int) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"slices": slices})
}

func EncodeUnroll(slices [][]dbn.TimeKey) (*structpb.Struct, error) {
	out := make([]any, len(slices))
	for i, slice := range slices {
		nodes := make([]any, len(slice))
		for j, k := range slice {
			nodes[j] = map[string]any{"variable": k.Variable, "t": k.Time}
		}
		out[i] = nodes
	}
	return structpb.NewStruct(map[string]any{"slices": out})
}

// #endregion encode

// #region decode
func DecodeInferRequest(s *structpb.Struct) (InferRequest, error) {
	m := s.AsMap()
	var r InferRequest
	var err error
	if r.Variable, err = str(m, "variable"); err != nil {
		return r, err
	}
	if r.Time, err = integer(m, "t"); err != nil {
		return r, err
	}
	items, err := list(m, "evidence", true)
	if err != nil {
		return r, err
	}
	r.Evidence = make(dbn.Evidence, len(items))
	for i, item := range items {
		em, ok := item.(map[string]any)
		if !ok {
			return r, fmt.Errorf("%w: evidence[%d] is not an object", ErrMalformed, i)
		}
		v, err := str(em, "variable")
		if err != nil {
			return r, fmt.Errorf("evidence[%d]: %w", i, err)
		}
		t, err := integer(em, "t")
		if err != nil {
			return r, fmt.Errorf("evidence[%d]: %w", i, err)
		}
		value, err := str(em, "value")
		if err != nil {
			return r, fmt.Errorf("evidence[%d]: %w", i, err)
		}
		r.Evidence[dbn.TimeKey{Variable: v, Time: t}] = value
	}
	return r, nil
}

func DecodeDistribution(s *structpb.Struct) (dbn.Distribution, error) {
	items, err := list(s.AsMap(), "distribution", false)
	if err != nil {
		return nil, err
	}
	d := make(dbn.Distribution, len(items))
	for i, item := range items {
		om, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: distribution[%d] is not an object", ErrMalformed, i)
		}
		if d[i].Value, err = str(om, "value"); err != nil {
			return nil, err
		}
		if d[i].P, err = number(om, "p"); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func DecodeUpdateRequest(s *structpb.Struct) (UpdateRequest, error) {
	m := s.AsMap()
	var r UpdateRequest
	var err error
	if r.Variable, err = str(m, "variable"); err != nil {
		return r, err
	}
	if r.Value, err = str(m, "value"); err != nil {
		return r, err
	}
	items, err := list(m, "parents", true)
	if err != nil {
		return r, err
	}
	r.Parents = make(dbn.Tuple, len(items))
	for i, item := range items {
		v, ok := item.(string)
		if !ok {
			return r, fmt.Errorf("%w: parents[%d] is not a string", ErrMalformed, i)
		}
		r.Parents[i] = v
	}
	if _, ok := m["lr"]; ok {
		lr, err := number(m, "lr")
		if err != nil {
			return r, err
		}
		r.LearningRate = &lr
	}
	return r, nil
}

func DecodeUpdateReply(s *structpb.Struct) (UpdateReply, error) {
	m := s.AsMap()
	var r UpdateReply
	var err error
	if r.Action, err = str(m, "action"); err != nil {
		return r, err
	}
	r.Reason, _ = m["reason"].(string)
	r.VersionID, _ = m["version_id"].(string)
	if r.Shift, err = number(m, "shift"); err != nil {
		return r, err
	}
	return r, nil
}

func DecodeParentsRequest(s *structpb.Struct) (string, error) {
	return str(s.AsMap(), "variable")
}

func DecodeParents(s *structpb.Struct) ([]dbn.Parent, error) {
	items, err := list(s.AsMap(), "parents", true)
	if err != nil {
		return nil, err
	}
	out := make([]dbn.Parent, len(items))
	for i, item := range items {
		pm, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: parents[%d] is not an object", ErrMalformed, i)
		}
		if out[i].Name, err = str(pm, "name"); err != nil {
			return nil, err
		}
		if out[i].Offset, err = integer(pm, "offset"); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func DecodeUnrollRequest(s *structpb.Struct) (int, error) {
	n, err := integer(s.AsMap(), "slices")
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: slices %d is negative", ErrMalformed, n)
	}
	if n > MaxUnrollSlices {
		return 0, fmt.Errorf("%w: slices %d exceeds %d", ErrMalformed, n, MaxUnrollSlices)
	}
	return n, nil
}

func DecodeUnroll(s *structpb.Struct) ([][]dbn.TimeKey, error) {
	items, err := list(s.AsMap(), "slices", true)
	if err != nil {
		return nil, err
	}
	out := make([][]dbn.TimeKey, len(items))
	for i, item := range items {
		nodes, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: slices[%d] is not a list", ErrMalformed, i)
		}
		out[i] = make([]dbn.TimeKey, len(nodes))
		for j, node := range nodes {
			nm, ok := node.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: slices[%d][%d] is not an object", ErrMalformed, i, j)
			}
			if out[i][j].Variable, err = str(nm, "variable"); err != nil {
				return nil, err
			}
			if out[i][j].Time, err = integer(nm, "t"); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// #endregion decode

// #region helpers
func str(m map[string]any, key string) (string, error) {
	v, ok := m[key].(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrMalformed, key)
	}
	return v, nil
}

func number(m map[string]any, key string) (float64, error) {
	v, ok := m[key].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %q must be a number", ErrMalformed, key)
	}
	return v, nil
}

// integer reads a number field that must hold a whole value; JSON-style
// structs carry every number as a double.
func integer(m map[string]any, key string) (int, error) {
	f, err := number(m, key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%w: %q must be an integer, got %v", ErrMalformed, key, f)
	}
	return int(f), nil
}

// list reads a list field. A missing field is an empty list when optional.
func list(m map[string]any, key string, optional bool) ([]any, error) {
	raw, present := m[key]
	if !present && optional {
		return nil, nil
	}
	v, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q must be a list", ErrMalformed, key)
	}
	return v, nil
}

func stringsToList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// #endregion helpers
