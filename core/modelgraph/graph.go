// Package modelgraph loads and executes predictive model graphs.
// A model is a JSON-serializable graph document (declared inputs and outputs,
// named operator nodes, constant initializers, producer metadata). The engine
// treats execution as an opaque capability behind the Runtime interface so an
// alternative inference backend can be substituted without touching the
// aggregation logic.
package modelgraph

import (
	"context"
	"encoding/json"
	"fmt"

	"quote-engine/internal/errors"
)

// Output is one named result tensor produced by an inference run
type Output struct {
	Name   string
	Values []float64
}

// Runtime executes a model graph against an assembled feature vector.
// Infer is a pure function of the vector; implementations must be safe for
// concurrent use.
type Runtime interface {
	// InputNames returns the model's declared input slots, in order
	InputNames() []string

	// OutputNames returns the model's declared outputs, in order
	OutputNames() []string

	// Infer executes the graph; the vector carries one scalar per input slot
	Infer(ctx context.Context, vector []float64) ([]Output, error)
}

// Document is the serialized form of a model graph
type Document struct {
	// Version is the document format version
	Version int `json:"version,omitempty"`

	// Producer identifies the tool that emitted the model
	Producer *Producer `json:"producer,omitempty"`

	// Graph is the computation graph
	Graph Graph `json:"graph"`
}

// Producer carries model provenance metadata
type Producer struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Graph is a computation graph: named ports, operator nodes, and constants
type Graph struct {
	// Name identifies the graph in error messages
	Name string `json:"name,omitempty"`

	// Inputs are the declared input ports, in slot order
	Inputs []Port `json:"inputs"`

	// Outputs are the declared output ports, in slot order
	Outputs []Port `json:"outputs"`

	// Nodes are the operator nodes
	Nodes []Node `json:"nodes"`

	// Initializers are constant tensors referenced by nodes
	Initializers []Tensor `json:"initializers,omitempty"`
}

// Port declares a graph input or output
type Port struct {
	Name string `json:"name"`
	Dims []int  `json:"dims,omitempty"`
}

// Node is one operator application
type Node struct {
	// Name identifies the node in error messages
	Name string `json:"name,omitempty"`

	// Op is the operator type (MatMul, Gemm, Add, Mul, Relu, ...)
	Op string `json:"op"`

	// Inputs and Outputs name the value edges this node consumes and produces
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`

	// Attrs carries scalar operator attributes (e.g. Gemm alpha/beta)
	Attrs map[string]float64 `json:"attrs,omitempty"`
}

// Tensor is a constant value embedded in the graph
type Tensor struct {
	Name   string    `json:"name"`
	Dims   []int     `json:"dims,omitempty"`
	Values []float64 `json:"values"`
}

// Parse decodes and validates a serialized model document
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.TypeSchema, "model document is not valid JSON", err).WithField("model")
	}
	if err := doc.Graph.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (g *Graph) validate() error {
	if len(g.Inputs) == 0 {
		return errors.Schema("model.graph.inputs", "model graph declares no inputs")
	}
	if len(g.Outputs) == 0 {
		return errors.Schema("model.graph.outputs", "model graph declares no outputs")
	}

	// Every value edge must have exactly one producer.
	producers := make(map[string]string)
	for _, p := range g.Inputs {
		if p.Name == "" {
			return errors.Schema("model.graph.inputs", "input port without a name")
		}
		if _, dup := producers[p.Name]; dup {
			return errors.Schemaf("model.graph.inputs", "duplicate value name %q", p.Name)
		}
		producers[p.Name] = "input"
	}
	for _, t := range g.Initializers {
		if t.Name == "" {
			return errors.Schema("model.graph.initializers", "initializer without a name")
		}
		if _, dup := producers[t.Name]; dup {
			return errors.Schemaf("model.graph.initializers", "duplicate value name %q", t.Name)
		}
		for _, d := range t.Dims {
			if d <= 0 {
				return errors.Schemaf("model.graph.initializers", "initializer %q has non-positive dim %d", t.Name, d)
			}
		}
		if expected := dimProduct(t.Dims); expected != len(t.Values) {
			return errors.Schemaf("model.graph.initializers",
				"initializer %q declares dims %v but carries %d values", t.Name, t.Dims, len(t.Values))
		}
		producers[t.Name] = "initializer"
	}
	for i, n := range g.Nodes {
		if _, known := operators[n.Op]; !known {
			return errors.Schemaf(fmt.Sprintf("model.graph.nodes[%d]", i), "unknown operator %q", n.Op)
		}
		if len(n.Outputs) == 0 {
			return errors.Schemaf(fmt.Sprintf("model.graph.nodes[%d]", i), "node %q produces no outputs", n.Name)
		}
		for _, out := range n.Outputs {
			if _, dup := producers[out]; dup {
				return errors.Schemaf(fmt.Sprintf("model.graph.nodes[%d]", i), "duplicate value name %q", out)
			}
			producers[out] = "node"
		}
	}

	// Every consumed edge must be produced somewhere.
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			if _, ok := producers[in]; !ok {
				return errors.Schemaf(fmt.Sprintf("model.graph.nodes[%d]", i),
					"node %q consumes undeclared value %q", n.Name, in)
			}
		}
	}
	for _, p := range g.Outputs {
		if _, ok := producers[p.Name]; !ok {
			return errors.Schemaf("model.graph.outputs", "output %q is never produced", p.Name)
		}
	}
	return nil
}

func dimProduct(dims []int) int {
	if len(dims) == 0 {
		return 1
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}
