package dynamotest

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a stored DynamoDB item.
type Item = map[string]types.AttributeValue

type exprCtx struct {
	names  map[string]string
	values map[string]types.AttributeValue
}

func (e exprCtx) attr(tok string) string {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "#") {
		return e.names[tok]
	}
	return tok
}

// splitTop splits s on sep outside parentheses.
func splitTop(s, sep string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, strings.TrimSpace(s[start:i]))
			i += len(sep) - 1
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func call(s, fn string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, fn+"(") || !strings.HasSuffix(s, ")") {
		return nil, false
	}
	return splitTop(s[len(fn)+1:len(s)-1], ","), true
}

func (e exprCtx) operand(item Item, s string) (types.AttributeValue, error) {
	s = strings.TrimSpace(s)
	for _, op := range []string{" + ", " - "} {
		if parts := splitTop(s, op); len(parts) == 2 {
			l, err := e.operand(item, parts[0])
			if err != nil {
				return nil, err
			}
			r, err := e.operand(item, parts[1])
			if err != nil {
				return nil, err
			}
			return arith(l, r, op == " - ")
		}
	}
	if args, ok := call(s, "if_not_exists"); ok && len(args) == 2 {
		if v, ok := item[e.attr(args[0])]; ok {
			return v, nil
		}
		return e.operand(item, args[1])
	}
	if args, ok := call(s, "list_append"); ok && len(args) == 2 {
		l, err := e.operand(item, args[0])
		if err != nil {
			return nil, err
		}
		r, err := e.operand(item, args[1])
		if err != nil {
			return nil, err
		}
		ll, lok := l.(*types.AttributeValueMemberL)
		rl, rok := r.(*types.AttributeValueMemberL)
		if !lok || !rok {
			return nil, fmt.Errorf("list_append on non-list operands")
		}
		out := append(append([]types.AttributeValue{}, ll.Value...), rl.Value...)
		return &types.AttributeValueMemberL{Value: out}, nil
	}
	if strings.HasPrefix(s, ":") {
		v, ok := e.values[s]
		if !ok {
			return nil, fmt.Errorf("missing value %s", s)
		}
		return v, nil
	}
	v, ok := item[e.attr(s)]
	if !ok {
		return nil, fmt.Errorf("attribute %s does not exist", e.attr(s))
	}
	return v, nil
}

func num(av types.AttributeValue) (*big.Float, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return nil, false
	}
	f, _, err := big.ParseFloat(n.Value, 10, 128, big.ToNearestEven)
	return f, err == nil
}

func arith(l, r types.AttributeValue, sub bool) (types.AttributeValue, error) {
	a, ok1 := num(l)
	b, ok2 := num(r)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("arithmetic on non-number")
	}
	if sub {
		a.Sub(a, b)
	} else {
		a.Add(a, b)
	}
	return &types.AttributeValueMemberN{Value: a.Text('f', -1)}, nil
}

// applyUpdate evaluates an UpdateExpression against item in place and
// returns the names of the attributes it touched.
func (e exprCtx) applyUpdate(item Item, expr string) ([]string, error) {
	clauses := map[string]string{}
	var cur string
	for _, word := range strings.Fields(expr) {
		switch word {
		case "SET", "ADD", "REMOVE", "DELETE":
			cur = word
			continue
		}
		clauses[cur] += word + " "
	}

	var touched []string
	if body, ok := clauses["SET"]; ok {
		type assign struct {
			name string
			v    types.AttributeValue
		}
		var pending []assign
		for _, action := range splitTop(body, ",") {
			lr := strings.SplitN(action, "=", 2)
			if len(lr) != 2 {
				return nil, fmt.Errorf("bad SET action %q", action)
			}
			v, err := e.operand(item, lr[1])
			if err != nil {
				return nil, err
			}
			pending = append(pending, assign{e.attr(lr[0]), v})
		}
		for _, a := range pending {
			item[a.name] = a.v
			touched = append(touched, a.name)
		}
	}
	if body, ok := clauses["ADD"]; ok {
		for _, action := range splitTop(body, ",") {
			f := strings.Fields(action)
			if len(f) != 2 {
				return nil, fmt.Errorf("bad ADD action %q", action)
			}
			name := e.attr(f[0])
			v, err := e.operand(item, f[1])
			if err != nil {
				return nil, err
			}
			switch add := v.(type) {
			case *types.AttributeValueMemberN:
				old, ok := item[name]
				if !ok {
					old = &types.AttributeValueMemberN{Value: "0"}
				}
				sum, err := arith(old, add, false)
				if err != nil {
					return nil, err
				}
				item[name] = sum
			case *types.AttributeValueMemberSS:
				set := map[string]bool{}
				var out []string
				if old, ok := item[name].(*types.AttributeValueMemberSS); ok {
					for _, s := range old.Value {
						set[s] = true
						out = append(out, s)
					}
				}
				for _, s := range add.Value {
					if !set[s] {
						set[s] = true
						out = append(out, s)
					}
				}
				item[name] = &types.AttributeValueMemberSS{Value: out}
			default:
				return nil, fmt.Errorf("ADD on unsupported type %T", v)
			}
			touched = append(touched, name)
		}
	}
	if body, ok := clauses["DELETE"]; ok {
		for _, action := range splitTop(body, ",") {
			f := strings.Fields(action)
			if len(f) != 2 {
				return nil, fmt.Errorf("bad DELETE action %q", action)
			}
			name := e.attr(f[0])
			v, err := e.operand(item, f[1])
			if err != nil {
				return nil, err
			}
			del, ok := v.(*types.AttributeValueMemberSS)
			if !ok {
				return nil, fmt.Errorf("DELETE on unsupported type %T", v)
			}
			old, ok := item[name].(*types.AttributeValueMemberSS)
			if !ok {
				continue
			}
			drop := map[string]bool{}
			for _, s := range del.Value {
				drop[s] = true
			}
			var out []string
			for _, s := range old.Value {
				if !drop[s] {
					out = append(out, s)
				}
			}
			if len(out) == 0 {
				delete(item, name)
			} else {
				item[name] = &types.AttributeValueMemberSS{Value: out}
			}
			touched = append(touched, name)
		}
	}
	if body, ok := clauses["REMOVE"]; ok {
		for _, path := range splitTop(body, ",") {
			delete(item, e.attr(path))
		}
	}
	return touched, nil
}

// check evaluates a ConditionExpression of comparisons and
// attribute_exists / attribute_not_exists calls joined by OR and AND, with
// parentheses for grouping. A nil item is absent.
func (e exprCtx) check(item Item, expr string) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true, nil
	}
	if terms := splitTop(expr, " OR "); len(terms) > 1 {
		for _, term := range terms {
			ok, err := e.check(item, term)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if terms := splitTop(expr, " AND "); len(terms) > 1 {
		for _, term := range terms {
			ok, err := e.check(item, term)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		return e.check(item, expr[1:len(expr)-1])
	}
	if args, ok := call(expr, "attribute_exists"); ok {
		_, found := item[e.attr(args[0])]
		return found, nil
	}
	if args, ok := call(expr, "attribute_not_exists"); ok {
		_, found := item[e.attr(args[0])]
		return !found, nil
	}
	return e.compare(item, expr)
}

func (e exprCtx) compare(item Item, term string) (bool, error) {
	for _, op := range []string{"<>", ">=", "<=", "=", ">", "<"} {
		parts := splitTop(term, " "+op+" ")
		if len(parts) != 2 {
			continue
		}
		l, err := e.operand(item, parts[0])
		if err != nil {
			// a missing attribute fails every comparison
			return false, nil
		}
		r, err := e.operand(item, parts[1])
		if err != nil {
			if strings.HasPrefix(strings.TrimSpace(parts[1]), ":") {
				return false, err
			}
			return false, nil
		}
		c, ok := order(l, r)
		switch op {
		case "=":
			return ok && c == 0, nil
		case "<>":
			return !ok || c != 0, nil
		case ">=":
			return ok && c >= 0, nil
		case "<=":
			return ok && c <= 0, nil
		case ">":
			return ok && c > 0, nil
		case "<":
			return ok && c < 0, nil
		}
	}
	return false, fmt.Errorf("unsupported condition %q", term)
}

func order(l, r types.AttributeValue) (int, bool) {
	if a, ok := num(l); ok {
		b, ok := num(r)
		if !ok {
			return 0, false
		}
		return a.Cmp(b), true
	}
	switch lv := l.(type) {
	case *types.AttributeValueMemberS:
		rv, ok := r.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(lv.Value, rv.Value), true
	case *types.AttributeValueMemberBOOL:
		rv, ok := r.(*types.AttributeValueMemberBOOL)
		if !ok || lv.Value != rv.Value {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}
