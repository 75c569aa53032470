package constraint

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jellydator/ttlcache/v3"
)

// patternCacheSize bounds the number of compiled regex patterns kept in memory.
const patternCacheSize = 512

var versionPattern = regexp.MustCompile(`^\d+(\.\d+)*$`)

type compiledPattern struct {
	re *regexp.Regexp
}

var patterns = ttlcache.New[string, compiledPattern](
	ttlcache.WithCapacity[string, compiledPattern](patternCacheSize),
	ttlcache.WithDisableTouchOnHit[string, compiledPattern](),
)

// Evaluate reports whether ctx satisfies rs. A nil rule set or one without
// rules always passes.
func Evaluate(rs *RuleSet, ctx Context) bool {
	if rs == nil || len(rs.Rules) == 0 {
		return true
	}
	if rs.Combinator == And {
		for _, rule := range rs.Rules {
			if !evaluateRule(rule, ctx) {
				return false
			}
		}
		return true
	}
	for _, rule := range rs.Rules {
		if evaluateRule(rule, ctx) {
			return true
		}
	}
	return false
}

func evaluateRule(rule Rule, ctx Context) bool {
	actual, ok := ctx[rule.Field]
	if !ok {
		// An absent attribute is not equal to anything.
		return rule.Operator == OpNeq || rule.Operator == OpNin
	}
	actual = normalize(actual)
	expected := normalize(rule.Value)

	switch rule.Operator {
	case OpEq:
		return strictEqual(actual, expected)
	case OpNeq:
		return !strictEqual(actual, expected)
	case OpIn:
		list, ok := asList(expected)
		if !ok {
			return false
		}
		return includes(list, actual)
	case OpNin:
		list, ok := asList(expected)
		if !ok {
			return true
		}
		return !includes(list, actual)
	case OpGt:
		return compare(actual, expected) > 0
	case OpGte:
		return compare(actual, expected) >= 0
	case OpLt:
		return compare(actual, expected) < 0
	case OpLte:
		return compare(actual, expected) <= 0
	case OpContains:
		if s, ok := actual.(string); ok {
			sub, ok := expected.(string)
			return ok && strings.Contains(s, sub)
		}
		if list, ok := asList(actual); ok {
			return includes(list, expected)
		}
		return false
	case OpRegex:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		pattern, ok := expected.(string)
		if !ok {
			return false
		}
		re := compilePattern(pattern)
		return re != nil && re.MatchString(s)
	default:
		return false
	}
}

func compilePattern(pattern string) *regexp.Regexp {
	if item := patterns.Get(pattern); item != nil {
		return item.Value().re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	patterns.Set(pattern, compiledPattern{re: re}, ttlcache.NoTTL)
	return re
}

// compare orders a and b: numerically when both are numbers, component-wise
// when both are dotted versions, lexicographically otherwise. A nil operand
// sorts first.
func compare(a, b any) int {
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	numA, okA := toNumber(a)
	numB, okB := toNumber(b)
	if okA && okB {
		switch {
		case numA > numB:
			return 1
		case numA < numB:
			return -1
		default:
			return 0
		}
	}

	strA, strB := stringify(a), stringify(b)
	if versionPattern.MatchString(strA) && versionPattern.MatchString(strB) {
		return compareVersions(strA, strB)
	}
	return strings.Compare(strA, strB)
}

func compareVersions(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")
	n := max(len(partsA), len(partsB))
	for i := 0; i < n; i++ {
		pa, pb := "0", "0"
		if i < len(partsA) {
			pa = partsA[i]
		}
		if i < len(partsB) {
			pb = partsB[i]
		}
		if c := compareDigits(pa, pb); c != 0 {
			return c
		}
	}
	return 0
}

// compareDigits compares two unsigned decimal strings of any length.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) > len(b) {
			return 1
		}
		return -1
	}
	return strings.Compare(a, b)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}

// strictEqual compares scalar values by type and value. Lists and objects are
// never equal to each other.
func strictEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func includes(list []any, v any) bool {
	for _, item := range list {
		if strictEqual(normalize(item), v) {
			return true
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// normalize folds Go numeric types into float64 so that values decoded from
// JSON and values built in code compare the same way.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}
