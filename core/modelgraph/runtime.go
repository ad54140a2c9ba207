package modelgraph

import (
	"context"
	"fmt"
	"math"

	"quote-engine/internal/errors"
)

// GraphRuntime is the built-in Runtime: it interprets a parsed model document
// directly. Compilation validates the graph once and fixes a topological node
// order; Infer is then read-only and safe for concurrent use.
type GraphRuntime struct {
	doc   *Document
	order []int
}

// Compile prepares a parsed document for execution
func Compile(doc *Document) (*GraphRuntime, error) {
	order, err := topoOrder(&doc.Graph)
	if err != nil {
		return nil, err
	}
	for i, n := range doc.Graph.Nodes {
		if len(n.Outputs) != 1 {
			return nil, errors.Schemaf(fmt.Sprintf("model.graph.nodes[%d]", i),
				"operator %q must produce exactly one output", n.Op)
		}
	}
	return &GraphRuntime{doc: doc, order: order}, nil
}

// InputNames returns the declared input slots in order
func (r *GraphRuntime) InputNames() []string {
	names := make([]string, len(r.doc.Graph.Inputs))
	for i, p := range r.doc.Graph.Inputs {
		names[i] = p.Name
	}
	return names
}

// OutputNames returns the declared outputs in order
func (r *GraphRuntime) OutputNames() []string {
	names := make([]string, len(r.doc.Graph.Outputs))
	for i, p := range r.doc.Graph.Outputs {
		names[i] = p.Name
	}
	return names
}

// GraphName returns the graph's declared name, for error reporting
func (r *GraphRuntime) GraphName() string {
	return r.doc.Graph.Name
}

// Infer executes the graph against a feature vector carrying one scalar per
// declared input slot.
func (r *GraphRuntime) Infer(ctx context.Context, vector []float64) ([]Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g := &r.doc.Graph
	if len(vector) != len(g.Inputs) {
		return nil, fmt.Errorf("model %q expects %d inputs, feature vector has %d",
			g.Name, len(g.Inputs), len(vector))
	}

	values := make(map[string]*tensor, len(g.Inputs)+len(g.Initializers)+len(g.Nodes))
	for i, p := range g.Inputs {
		values[p.Name] = scalar(vector[i])
	}
	for _, t := range g.Initializers {
		values[t.Name] = fromTensor(t)
	}

	for _, idx := range r.order {
		node := g.Nodes[idx]
		op := operators[node.Op]
		args := make([]*tensor, len(node.Inputs))
		for i, name := range node.Inputs {
			args[i] = values[name]
		}
		out, err := op(node, args)
		if err != nil {
			return nil, fmt.Errorf("model %q node %q (%s): %w", g.Name, node.Name, node.Op, err)
		}
		values[node.Outputs[0]] = out
	}

	outputs := make([]Output, len(g.Outputs))
	for i, p := range g.Outputs {
		outputs[i] = Output{Name: p.Name, Values: values[p.Name].data}
	}
	return outputs, nil
}

// topoOrder computes an execution order for the nodes (Kahn). Serialized
// graphs are usually already topologically sorted but this is not assumed.
func topoOrder(g *Graph) ([]int, error) {
	producerOf := make(map[string]int) // value name -> node index
	for i, n := range g.Nodes {
		for _, out := range n.Outputs {
			producerOf[out] = i
		}
	}

	indegree := make([]int, len(g.Nodes))
	dependents := make(map[int][]int)
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			if p, ok := producerOf[in]; ok {
				indegree[i]++
				dependents[p] = append(dependents[p], i)
			}
		}
	}

	var queue []int
	for i := range g.Nodes {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(g.Nodes))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(order) != len(g.Nodes) {
		return nil, errors.Schema("model.graph.nodes", "model graph contains a cycle")
	}
	return order, nil
}

// tensor is a row-major matrix. Scalars are 1x1, vectors are 1xN.
type tensor struct {
	rows, cols int
	data       []float64
}

func scalar(v float64) *tensor {
	return &tensor{rows: 1, cols: 1, data: []float64{v}}
}

func fromTensor(t Tensor) *tensor {
	switch len(t.Dims) {
	case 0:
		return &tensor{rows: 1, cols: 1, data: t.Values}
	case 1:
		return &tensor{rows: 1, cols: t.Dims[0], data: t.Values}
	default:
		return &tensor{rows: t.Dims[0], cols: dimProduct(t.Dims) / t.Dims[0], data: t.Values}
	}
}

func (t *tensor) len() int { return len(t.data) }

type opFunc func(node Node, args []*tensor) (*tensor, error)

// operators is the supported operator set. Kept deliberately small: the
// models produced for quote estimation are regressions and shallow networks.
var operators = map[string]opFunc{
	"MatMul":   opMatMul,
	"Gemm":     opGemm,
	"Add":      elementwise2(func(a, b float64) float64 { return a + b }),
	"Sub":      elementwise2(func(a, b float64) float64 { return a - b }),
	"Mul":      elementwise2(func(a, b float64) float64 { return a * b }),
	"Div":      elementwise2(func(a, b float64) float64 { return a / b }),
	"Relu":     elementwise1(func(a float64) float64 { return math.Max(a, 0) }),
	"Sigmoid":  elementwise1(func(a float64) float64 { return 1 / (1 + math.Exp(-a)) }),
	"Tanh":     elementwise1(math.Tanh),
	"Exp":      elementwise1(math.Exp),
	"Log":      elementwise1(math.Log),
	"Sqrt":     elementwise1(math.Sqrt),
	"Abs":      elementwise1(math.Abs),
	"Neg":      elementwise1(func(a float64) float64 { return -a }),
	"Identity": elementwise1(func(a float64) float64 { return a }),
	"Clip":     opClip,
}

func opMatMul(node Node, args []*tensor) (*tensor, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("MatMul expects 2 inputs, got %d", len(args))
	}
	return matMul(args[0], args[1])
}

// opGemm computes alpha*A*B + beta*C (C optional); alpha and beta default to 1.
func opGemm(node Node, args []*tensor) (*tensor, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, fmt.Errorf("Gemm expects 2 or 3 inputs, got %d", len(args))
	}
	alpha, beta := 1.0, 1.0
	if v, ok := node.Attrs["alpha"]; ok {
		alpha = v
	}
	if v, ok := node.Attrs["beta"]; ok {
		beta = v
	}

	product, err := matMul(args[0], args[1])
	if err != nil {
		return nil, err
	}
	for i := range product.data {
		product.data[i] *= alpha
	}
	if len(args) == 2 {
		return product, nil
	}

	bias := args[2]
	if bias.len() != product.len() && bias.len() != 1 {
		return nil, fmt.Errorf("Gemm bias has %d values, expected %d or 1", bias.len(), product.len())
	}
	for i := range product.data {
		b := bias.data[0]
		if bias.len() > 1 {
			b = bias.data[i]
		}
		product.data[i] += beta * b
	}
	return product, nil
}

func opClip(node Node, args []*tensor) (*tensor, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("Clip expects 1 input, got %d", len(args))
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	if v, ok := node.Attrs["min"]; ok {
		lo = v
	}
	if v, ok := node.Attrs["max"]; ok {
		hi = v
	}
	out := &tensor{rows: args[0].rows, cols: args[0].cols, data: make([]float64, args[0].len())}
	for i, v := range args[0].data {
		out.data[i] = math.Min(math.Max(v, lo), hi)
	}
	return out, nil
}

func matMul(a, b *tensor) (*tensor, error) {
	if a.cols != b.rows {
		// A 1xN row vector against a 1xN weight row is a common way to
		// serialize a dot product; accept it by transposing the right side.
		if a.rows == 1 && b.rows == 1 && a.cols == b.cols {
			b = &tensor{rows: b.cols, cols: 1, data: b.data}
		} else {
			return nil, fmt.Errorf("shape mismatch: %dx%d x %dx%d", a.rows, a.cols, b.rows, b.cols)
		}
	}
	out := &tensor{rows: a.rows, cols: b.cols, data: make([]float64, a.rows*b.cols)}
	for i := 0; i < a.rows; i++ {
		for j := 0; j < b.cols; j++ {
			sum := 0.0
			for k := 0; k < a.cols; k++ {
				sum += a.data[i*a.cols+k] * b.data[k*b.cols+j]
			}
			out.data[i*b.cols+j] = sum
		}
	}
	return out, nil
}

func elementwise1(fn func(float64) float64) opFunc {
	return func(node Node, args []*tensor) (*tensor, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s expects 1 input, got %d", node.Op, len(args))
		}
		out := &tensor{rows: args[0].rows, cols: args[0].cols, data: make([]float64, args[0].len())}
		for i, v := range args[0].data {
			out.data[i] = fn(v)
		}
		return out, nil
	}
}

func elementwise2(fn func(a, b float64) float64) opFunc {
	return func(node Node, args []*tensor) (*tensor, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s expects 2 inputs, got %d", node.Op, len(args))
		}
		a, b := args[0], args[1]
		switch {
		case a.len() == b.len():
			out := &tensor{rows: a.rows, cols: a.cols, data: make([]float64, a.len())}
			for i := range a.data {
				out.data[i] = fn(a.data[i], b.data[i])
			}
			return out, nil
		case b.len() == 1:
			out := &tensor{rows: a.rows, cols: a.cols, data: make([]float64, a.len())}
			for i := range a.data {
				out.data[i] = fn(a.data[i], b.data[0])
			}
			return out, nil
		case a.len() == 1:
			out := &tensor{rows: b.rows, cols: b.cols, data: make([]float64, b.len())}
			for i := range b.data {
				out.data[i] = fn(a.data[0], b.data[i])
			}
			return out, nil
		default:
			return nil, fmt.Errorf("%s operands have %d and %d values", node.Op, a.len(), b.len())
		}
	}
}
