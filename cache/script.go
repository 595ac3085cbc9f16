package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Op is a comparison operator applied to a hash field. String operators
// compare the raw field bytes; numeric operators treat a missing field as 0.
type Op string

const (
	OpEq Op = "=="
	OpNe Op = "!="
	OpGt Op = ">"
	OpGe Op = ">="
	OpLt Op = "<"
	OpLe Op = "<="
)

// ActionOp mutates the hash (or the key itself) after a step's conditions
// have been evaluated.
type ActionOp string

const (
	ActSet     ActionOp = "hset"
	ActIncr    ActionOp = "hincr"
	ActExpire  ActionOp = "expire"  // value is seconds
	ActPersist ActionOp = "persist" // value ignored
	ActDel     ActionOp = "del"     // deletes the whole key; value ignored
)

// Condition compares one hash field against a literal. A missing field reads
// as the empty string, so {Field, OpNe, ""} doubles as an existence probe.
type Condition struct {
	Field string `json:"field"`
	Op    Op     `json:"operator"`
	Value string `json:"value"`
}

// Action is one mutation applied when a step passes or fails.
type Action struct {
	Field string   `json:"field"`
	Op    ActionOp `json:"action"`
	Value string   `json:"value"`
}

// Step couples a set of conditions (AND semantics) with the actions to run
// on each outcome. When Halt is set and the conditions fail, later steps are
// skipped; their results read as failed.
type Step struct {
	Conditions []Condition `json:"conditions"`
	OnSuccess  []Action    `json:"success"`
	OnFailure  []Action    `json:"failure"`
	Halt       bool        `json:"halt,omitempty"`
}

// UpdateResult reports the per-step outcomes of a ConditionalUpdate and the
// requested field values as they stood after all actions ran.
type UpdateResult struct {
	ok     []bool
	Fields map[string]string
}

// Passed reports whether step i's conditions held. Steps skipped by an
// earlier Halt read as not passed.
func (r *UpdateResult) Passed(i int) bool {
	return i >= 0 && i < len(r.ok) && r.ok[i]
}

// Field returns the post-update value of a requested field. found is false
// when the field was absent from the hash and no action wrote it.
func (r *UpdateResult) Field(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// conditionalScript evaluates every step against a snapshot of the hash
// taken once at the top, so a step's actions never feed a later step's
// conditions. Output values DO reflect actions, which is what callers
// reading back a counter they just bumped expect.
var conditionalScript = redis.NewScript(`
local key = KEYS[1]
local fields = cjson.decode(ARGV[1])
local want = cjson.decode(ARGV[2])
local steps = cjson.decode(ARGV[3])

local current = {}
if #fields > 0 then
	local raw = redis.call("HMGET", key, unpack(fields))
	for i = 1, #fields do
		if raw[i] then current[fields[i]] = raw[i] end
	end
end

local written = {}

local function evaluate(conds)
	for _, c in ipairs(conds) do
		local op = c["operator"]
		local cur = current[c["field"]]
		if op == "==" then
			if (cur or "") ~= c["value"] then return false end
		elseif op == "!=" then
			if (cur or "") == c["value"] then return false end
		else
			local n = tonumber(cur) or 0
			local v = tonumber(c["value"])
			if op == ">" and not (n > v) then return false end
			if op == ">=" and not (n >= v) then return false end
			if op == "<" and not (n < v) then return false end
			if op == "<=" and not (n <= v) then return false end
		end
	end
	return true
end

local function apply(actions)
	for _, a in ipairs(actions) do
		local op = a["action"]
		if op == "hset" then
			redis.call("HSET", key, a["field"], a["value"])
			written[a["field"]] = a["value"]
		elseif op == "hincr" then
			local v = redis.call("HINCRBY", key, a["field"], tonumber(a["value"]))
			written[a["field"]] = tostring(v)
		elseif op == "expire" then
			redis.call("EXPIRE", key, tonumber(a["value"]))
		elseif op == "persist" then
			redis.call("PERSIST", key)
		elseif op == "del" then
			redis.call("DEL", key)
		end
	end
end

local outcomes = {}
for i = 1, #steps do
	if evaluate(steps[i]["conditions"]) then
		apply(steps[i]["success"])
		outcomes[i] = 1
	else
		apply(steps[i]["failure"])
		outcomes[i] = 0
		if steps[i]["halt"] then break end
	end
end

local out = {}
for _, f in ipairs(want) do
	if written[f] ~= nil then
		out[f] = written[f]
	elseif current[f] ~= nil then
		out[f] = current[f]
	end
end

return {cjson.encode(out), unpack(outcomes)}
`)

// ConditionalUpdate runs steps against the hash at key as one atomic script
// and returns each step's outcome plus the requested field values. All
// conditions read the hash as it stood on entry; all action effects are
// visible in the returned fields.
func (c *Cache) ConditionalUpdate(ctx context.Context, key string, steps []Step, returnFields ...string) (*UpdateResult, error) {
	fields := collectFields(steps, returnFields)

	// cjson decodes a JSON null into a sentinel the script's ipairs loops
	// choke on, so nil slices must encode as empty arrays.
	if returnFields == nil {
		returnFields = []string{}
	}
	encSteps := make([]Step, len(steps))
	for i, s := range steps {
		if s.Conditions == nil {
			s.Conditions = []Condition{}
		}
		if s.OnSuccess == nil {
			s.OnSuccess = []Action{}
		}
		if s.OnFailure == nil {
			s.OnFailure = []Action{}
		}
		encSteps[i] = s
	}

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	wantJSON, err := json.Marshal(returnFields)
	if err != nil {
		return nil, fmt.Errorf("encode return fields: %w", err)
	}
	stepsJSON, err := json.Marshal(encSteps)
	if err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	raw, err := conditionalScript.Run(ctx, c.rdb, []string{key},
		string(fieldsJSON), string(wantJSON), string(stepsJSON)).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) < 1 {
		return nil, fmt.Errorf("%w: empty script reply", ErrUnavailable)
	}

	encoded, ok := raw[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected script reply %T", ErrUnavailable, raw[0])
	}

	res := &UpdateResult{
		ok:     make([]bool, 0, len(raw)-1),
		Fields: map[string]string{},
	}
	if err := decodeFieldMap(encoded, res.Fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, v := range raw[1:] {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected step outcome %T", ErrUnavailable, v)
		}
		res.ok = append(res.ok, n == 1)
	}
	return res, nil
}

// collectFields returns every field named by a condition or requested back,
// deduplicated, preserving first-seen order.
func collectFields(steps []Step, returnFields []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(returnFields))
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, s := range steps {
		for _, c := range s.Conditions {
			add(c.Field)
		}
	}
	for _, f := range returnFields {
		add(f)
	}
	return out
}

// decodeFieldMap tolerates both spellings of an empty cjson table ("{}" and
// "[]") and numeric values emitted for counters.
func decodeFieldMap(encoded string, dst map[string]string) error {
	if encoded == "{}" || encoded == "[]" || encoded == "" {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal([]byte(encoded), &generic); err != nil {
		return err
	}
	for k, v := range generic {
		switch t := v.(type) {
		case string:
			dst[k] = t
		case float64:
			dst[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			dst[k] = fmt.Sprint(t)
		}
	}
	return nil
}
